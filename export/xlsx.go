// Package export serializes a run's ResultTable to a downloadable .xlsx
// workbook and reads such workbooks back, so a previous export can be
// re-loaded for question answering.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/resulthound/resulthound/models"
)

const (
	// ResultsSheet holds one row per parsed subject result.
	ResultsSheet = "Results"

	// FailuresSheet lists the students that were skipped.
	FailuresSheet = "Failed Lookups"
)

var failureHeader = []string{"Register Number", "Date of Birth", "Code", "Reason"}

// Write renders the table (and, when present, the failures) as an .xlsx
// workbook. Row order is the table's insertion order, and the header row
// matches models.ResultRowHeader, so the structural content is a pure
// function of the inputs.
func Write(w io.Writer, table *models.ResultTable, failures []models.FetchFailure) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	if err := setRow(f, ResultsSheet, 1, models.ResultRowHeader); err != nil {
		return err
	}
	for i, row := range table.Rows() {
		if err := setRow(f, ResultsSheet, i+2, row.Fields()); err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		if _, err := f.NewSheet(FailuresSheet); err != nil {
			return fmt.Errorf("export: add failures sheet: %w", err)
		}
		if err := setRow(f, FailuresSheet, 1, failureHeader); err != nil {
			return err
		}
		for i, failure := range failures {
			cells := []string{failure.RegisterNumber, failure.DateOfBirth, failure.Code, failure.Reason}
			if err := setRow(f, FailuresSheet, i+2, cells); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// setRow writes one row of string cells starting at column A.
func setRow(f *excelize.File, sheet string, rowNum int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("export: row %d: %w", rowNum, err)
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("export: row %d: %w", rowNum, err)
	}
	return nil
}

// Read loads a previously exported workbook back into a ResultTable.
// It accepts the Results sheet by name, falling back to the first sheet so
// hand-edited exports still load. Fails with FORMAT_ERROR when the header
// does not match.
func Read(r io.Reader) (*models.ResultTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "file is not a readable .xlsx workbook", err)
	}
	defer f.Close()

	sheet := ResultsSheet
	if idx, _ := f.GetSheetIndex(ResultsSheet); idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, models.NewHarvestError(models.ErrCodeFormat, "workbook has no sheets", nil)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "failed to read sheet rows", err)
	}
	if len(rows) == 0 {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "results sheet is empty", nil)
	}

	index, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	table := &models.ResultTable{}
	for _, row := range rows[1:] {
		table.Append(models.ResultRow{
			RegisterNumber: cellAt(row, index["Register Number"]),
			StudentName:    cellAt(row, index["Student Name"]),
			SubjectCode:    cellAt(row, index["Subject Code"]),
			SubjectName:    cellAt(row, index["Subject Name"]),
			Marks:          cellAt(row, index["Marks"]),
			Status:         cellAt(row, index["Status"]),
		})
	}
	return table, nil
}

// headerIndex maps each expected column name to its position.
func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(models.ResultRowHeader))
	for i, cell := range header {
		index[strings.TrimSpace(cell)] = i
	}
	for _, want := range models.ResultRowHeader {
		if _, ok := index[want]; !ok {
			return nil, models.NewHarvestError(
				models.ErrCodeFormat,
				fmt.Sprintf("results sheet is missing column %q", want),
				nil,
			)
		}
	}
	return index, nil
}

// cellAt returns the trimmed cell value, tolerating short rows.
func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
