// Package roster loads the uploaded student roster into an ordered list of
// lookup queries. It accepts .xlsx and .csv files with two recognized
// columns, "Register Number" and "Date of Birth"; anything else in the sheet
// is ignored.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/resulthound/resulthound/models"
)

const (
	colRegisterNumber = "register number"
	colDateOfBirth    = "date of birth"
)

// dobPattern matches the DD/MM/YYYY format the portal form expects.
var dobPattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// Load reads a roster file and returns one StudentQuery per data row, in
// sheet order. The filename only selects the parser (.csv vs .xlsx).
//
// It fails with a FORMAT_ERROR when the file is not parseable as tabular
// data, a required column is missing, or any row has an empty cell or a
// date of birth not in DD/MM/YYYY.
func Load(r io.Reader, filename string) ([]models.StudentQuery, error) {
	var records [][]string
	var err error

	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		records, err = readCSV(r)
	} else {
		records, err = readXLSX(r)
	}
	if err != nil {
		return nil, err
	}

	return buildQueries(records)
}

// readXLSX extracts all rows of the workbook's first sheet.
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "file is not a readable .xlsx workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "failed to read sheet rows", err)
	}
	return rows, nil
}

// readCSV extracts all records, tolerating ragged rows.
func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "file is not readable CSV", err)
	}
	return records, nil
}

// buildQueries locates the two required columns in the header row and
// validates every data row.
func buildQueries(records [][]string) ([]models.StudentQuery, error) {
	if len(records) == 0 {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "roster is empty", nil)
	}

	regIdx, dobIdx := -1, -1
	for i, cell := range records[0] {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case colRegisterNumber:
			regIdx = i
		case colDateOfBirth:
			dobIdx = i
		}
	}

	var missing []string
	if regIdx < 0 {
		missing = append(missing, "Register Number")
	}
	if dobIdx < 0 {
		missing = append(missing, "Date of Birth")
	}
	if len(missing) > 0 {
		return nil, models.NewHarvestError(
			models.ErrCodeFormat,
			"missing required columns: "+strings.Join(missing, ", "),
			nil,
		)
	}

	queries := make([]models.StudentQuery, 0, len(records)-1)
	for i, row := range records[1:] {
		// Excel row numbering: header is row 1.
		rowNum := i + 2

		reg := cellAt(row, regIdx)
		dob := cellAt(row, dobIdx)

		if reg == "" {
			return nil, models.NewHarvestError(
				models.ErrCodeFormat,
				fmt.Sprintf("row %d: register number is missing", rowNum),
				nil,
			)
		}
		if dob == "" {
			return nil, models.NewHarvestError(
				models.ErrCodeFormat,
				fmt.Sprintf("row %d: date of birth is missing", rowNum),
				nil,
			)
		}
		if !dobPattern.MatchString(dob) {
			return nil, models.NewHarvestError(
				models.ErrCodeFormat,
				fmt.Sprintf("row %d: date of birth %q is not in DD/MM/YYYY format", rowNum, dob),
				nil,
			)
		}

		queries = append(queries, models.StudentQuery{
			RegisterNumber: reg,
			DateOfBirth:    dob,
		})
	}

	if len(queries) == 0 {
		return nil, models.NewHarvestError(models.ErrCodeFormat, "roster has a header but no data rows", nil)
	}

	return queries, nil
}

// cellAt returns the trimmed cell value, tolerating short rows.
func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
