package roster

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/resulthound/resulthound/models"
)

// buildWorkbook renders rows into an in-memory .xlsx for Load.
func buildWorkbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		values := make([]interface{}, len(row))
		for j, c := range row {
			values[j] = c
		}
		if err := f.SetSheetRow("Sheet1", cell, &values); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func formatError(t *testing.T, err error) *models.HarvestError {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var harvestErr *models.HarvestError
	if !errors.As(err, &harvestErr) {
		t.Fatalf("expected *models.HarvestError, got %T: %v", err, err)
	}
	if harvestErr.Code != models.ErrCodeFormat {
		t.Fatalf("expected code %s, got %s", models.ErrCodeFormat, harvestErr.Code)
	}
	return harvestErr
}

func TestLoad_XLSX(t *testing.T) {
	buf := buildWorkbook(t, [][]string{
		{"Register Number", "Date of Birth", "Name"},
		{"311519104001", "14/05/2001", "Student One"},
		{"311519104002", "02/11/2000", "Student Two"},
		{"311519104003", "23/01/2002", "Student Three"},
	})

	queries, err := Load(buf, "roster.xlsx")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(queries))
	}
	if queries[0].RegisterNumber != "311519104001" || queries[0].DateOfBirth != "14/05/2001" {
		t.Errorf("unexpected first query: %+v", queries[0])
	}
	// Roster order must survive loading.
	if queries[2].RegisterNumber != "311519104003" {
		t.Errorf("expected sheet order to be preserved, got %+v", queries)
	}
}

func TestLoad_CSV(t *testing.T) {
	csvData := "Register Number,Date of Birth\n311519104001,14/05/2001\n311519104002,02/11/2000\n"

	queries, err := Load(strings.NewReader(csvData), "roster.csv")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[1].RegisterNumber != "311519104002" {
		t.Errorf("unexpected second query: %+v", queries[1])
	}
}

func TestLoad_HeaderCaseInsensitive(t *testing.T) {
	csvData := "REGISTER NUMBER,date of birth\n311519104001,14/05/2001\n"

	queries, err := Load(strings.NewReader(csvData), "roster.csv")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
}

func TestLoad_ExtraColumnsIgnored(t *testing.T) {
	csvData := "Name,Register Number,Department,Date of Birth\nA,311519104001,CSE,14/05/2001\n"

	queries, err := Load(strings.NewReader(csvData), "roster.csv")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if queries[0].RegisterNumber != "311519104001" || queries[0].DateOfBirth != "14/05/2001" {
		t.Errorf("columns not located by header: %+v", queries[0])
	}
}

func TestLoad_MissingColumns(t *testing.T) {
	csvData := "Roll No,DOB\n311519104001,14/05/2001\n"

	_, err := Load(strings.NewReader(csvData), "roster.csv")
	harvestErr := formatError(t, err)

	if !strings.Contains(harvestErr.Message, "Register Number") || !strings.Contains(harvestErr.Message, "Date of Birth") {
		t.Errorf("error should name both missing columns, got: %s", harvestErr.Message)
	}
}

func TestLoad_BadDateFormat(t *testing.T) {
	cases := []string{"2001-05-14", "14-05-2001", "5/14/01", "14/5/2001"}
	for _, dob := range cases {
		csvData := "Register Number,Date of Birth\n311519104001," + dob + "\n"
		_, err := Load(strings.NewReader(csvData), "roster.csv")
		harvestErr := formatError(t, err)
		if !strings.Contains(harvestErr.Message, "row 2") {
			t.Errorf("dob %q: error should name the offending row, got: %s", dob, harvestErr.Message)
		}
	}
}

func TestLoad_EmptyCell(t *testing.T) {
	csvData := "Register Number,Date of Birth\n311519104001,14/05/2001\n,02/11/2000\n"

	_, err := Load(strings.NewReader(csvData), "roster.csv")
	harvestErr := formatError(t, err)
	if !strings.Contains(harvestErr.Message, "row 3") {
		t.Errorf("error should name row 3, got: %s", harvestErr.Message)
	}
}

func TestLoad_HeaderOnly(t *testing.T) {
	csvData := "Register Number,Date of Birth\n"
	_, err := Load(strings.NewReader(csvData), "roster.csv")
	formatError(t, err)
}

func TestLoad_NotAWorkbook(t *testing.T) {
	_, err := Load(strings.NewReader("this is not a zip archive"), "roster.xlsx")
	formatError(t, err)
}
