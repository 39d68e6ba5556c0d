package portal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/resulthound/resulthound/models"
)

// subjectCodePattern matches the short alphanumeric paper codes in the
// first column of the marks table.
var subjectCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{2,15}$`)

// statusPattern matches the portal's pass/fail vocabulary, including the
// reappear ("RA") and absent markers.
var statusPattern = regexp.MustCompile(`(?i)^(pass|fail|p|f|ra|ab|absent|withheld)$`)

// institutionWords disqualify a cell from being a candidate name; the page
// header repeats the university and college names in the same table shapes.
var institutionWords = []string{"university", "madras", "institution", "college"}

// headerWords disqualify a table row from being a subject row.
var headerWords = []string{"subject", "code", "title", "paper", "marks", "result"}

// parseResultPage reads the rendered result page into a LookupResult.
// Every returned row carries the query's register number, never one read
// off the page, so a portal mixup cannot fabricate students.
//
// A page with no recognizable subject rows is a parse failure even when it
// contains tables; the caller decides whether that skips the student.
func parseResultPage(rawHTML, registerNumber string) (*LookupResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	name := extractStudentName(doc)
	rows := extractSubjectRows(doc, registerNumber, name)
	if len(rows) == 0 {
		return nil, fmt.Errorf("no subject rows found in result page")
	}

	return &LookupResult{
		StudentName: name,
		Rows:        rows,
		RawHTML:     rawHTML,
	}, nil
}

// extractStudentName scans label/value table rows for the candidate name,
// then falls back to bold elements. Best-effort: "" when nothing plausible
// is found.
func extractStudentName(doc *goquery.Document) string {
	var name string

	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return true
		}
		label := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		if !strings.Contains(label, "name") &&
			!strings.Contains(label, "student") &&
			!strings.Contains(label, "candidate") {
			return true
		}
		candidate := strings.TrimSpace(cells.Eq(1).Text())
		if plausibleName(candidate) {
			name = candidate
			return false
		}
		return true
	})
	if name != "" {
		return name
	}

	// Result pages often print the candidate name in bold above the table.
	doc.Find("b, strong").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.TrimSpace(el.Text())
		if strings.Contains(text, ":") {
			return true
		}
		if plausibleName(text) {
			name = text
			return false
		}
		return true
	})
	return name
}

// plausibleName filters out institution strings and junk cells.
func plausibleName(text string) bool {
	if len(text) <= 3 {
		return false
	}
	lower := strings.ToLower(text)
	for _, word := range institutionWords {
		if strings.Contains(lower, word) {
			return false
		}
	}
	return true
}

// extractSubjectRows walks every table row with at least three cells and
// reads the ones whose first cell looks like a paper code.
func extractSubjectRows(doc *goquery.Document, registerNumber, studentName string) []models.ResultRow {
	var rows []models.ResultRow

	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		code := strings.TrimSpace(cells.Eq(0).Text())
		if !subjectCodePattern.MatchString(code) || isHeaderWord(code) {
			return
		}

		subject := strings.TrimSpace(cells.Eq(1).Text())
		if isHeaderWord(subject) {
			return
		}

		rest := make([]string, 0, cells.Length()-2)
		for i := 2; i < cells.Length(); i++ {
			if v := strings.TrimSpace(cells.Eq(i).Text()); v != "" {
				rest = append(rest, v)
			}
		}

		var status string
		if n := len(rest); n > 0 && statusPattern.MatchString(rest[n-1]) {
			status = rest[n-1]
			rest = rest[:n-1]
		}

		rows = append(rows, models.ResultRow{
			RegisterNumber: registerNumber,
			StudentName:    studentName,
			SubjectCode:    code,
			SubjectName:    subject,
			Marks:          strings.Join(rest, " "),
			Status:         status,
		})
	})

	return rows
}

// isHeaderWord reports whether the cell is part of the table's own header
// rendered with td instead of th.
func isHeaderWord(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range headerWords {
		if lower == word {
			return true
		}
	}
	return false
}
