package models

// StudentQuery is one roster entry: the lookup key pair the portal form
// wants. DateOfBirth stays the DD/MM/YYYY string from the roster because
// that is exactly what gets typed into the form.
type StudentQuery struct {
	RegisterNumber string `json:"register_number"`
	DateOfBirth    string `json:"date_of_birth"`
}

// ResultRow is one subject-level outcome parsed from a student's result page.
// Marks is kept as the portal prints it (some papers report grades, some
// numeric marks, some "AAA" for absent).
type ResultRow struct {
	RegisterNumber string `json:"register_number"`
	StudentName    string `json:"student_name"`
	SubjectCode    string `json:"subject_code"`
	SubjectName    string `json:"subject_name"`
	Marks          string `json:"marks"`
	Status         string `json:"status"`
}

// ResultRowHeader is the canonical column order for exports and prompts.
// It mirrors the ResultRow field names.
var ResultRowHeader = []string{
	"Register Number", "Student Name", "Subject Code", "Subject Name", "Marks", "Status",
}

// Fields returns the row's values in ResultRowHeader order.
func (r ResultRow) Fields() []string {
	return []string{r.RegisterNumber, r.StudentName, r.SubjectCode, r.SubjectName, r.Marks, r.Status}
}

// ResultTable is the single aggregate of a run: an append-only, ordered
// sequence of ResultRow. Insertion order is scrape order. It is owned by
// one run's control flow and is not safe for concurrent mutation.
type ResultTable struct {
	rows []ResultRow
}

// Append adds rows to the end of the table.
func (t *ResultTable) Append(rows ...ResultRow) {
	t.rows = append(t.rows, rows...)
}

// Rows returns the underlying rows in insertion order.
func (t *ResultTable) Rows() []ResultRow {
	return t.rows
}

// Len returns the number of rows.
func (t *ResultTable) Len() int {
	return len(t.rows)
}

// RegisterNumbers returns the set of register numbers present in the table.
func (t *ResultTable) RegisterNumbers() map[string]struct{} {
	set := make(map[string]struct{}, len(t.rows))
	for _, r := range t.rows {
		set[r.RegisterNumber] = struct{}{}
	}
	return set
}

// FetchFailure records a student whose lookup did not yield rows.
// Snapshot holds a markdown rendering of the page the portal served at the
// moment of failure, for offline diagnosis; it is never exported to the
// results sheet.
type FetchFailure struct {
	RegisterNumber string `json:"register_number"`
	DateOfBirth    string `json:"date_of_birth"`
	Code           string `json:"code"`
	Reason         string `json:"reason"`
	Snapshot       string `json:"snapshot,omitempty"`
}
