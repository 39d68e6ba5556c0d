package portal

import (
	"testing"
)

func TestDiscoverForm(t *testing.T) {
	page := `
<html><body>
<form action="ugresult.asp" method="post">
  <input type="hidden" name="exam" value="NOV2025">
  <input type="text" name="regno">
  <input type="text" name="dob">
  <input type="submit" name="submit" value="Submit">
</form>
</body></html>`

	action, fields, err := discoverForm(page, "https://egovernance.unom.ac.in/results/ugresult.asp")
	if err != nil {
		t.Fatalf("discoverForm failed: %v", err)
	}

	if action != "https://egovernance.unom.ac.in/results/ugresult.asp" {
		t.Errorf("unexpected action: %s", action)
	}
	if fields.regno != "regno" || fields.dob != "dob" {
		t.Errorf("unexpected field names: %+v", fields)
	}
	if fields.hidden["exam"] != "NOV2025" {
		t.Errorf("hidden field not carried: %+v", fields.hidden)
	}
}

func TestDiscoverForm_UnnamedDOBInput(t *testing.T) {
	// The DOB input carries no recognizable name; the next unclaimed text
	// input after the register number should be assumed.
	page := `
<form action="/results/check.asp">
  <input type="text" name="txtRegNo">
  <input type="text" name="txtField2">
</form>`

	action, fields, err := discoverForm(page, "https://egovernance.unom.ac.in/results/ugresult.asp")
	if err != nil {
		t.Fatalf("discoverForm failed: %v", err)
	}
	if fields.regno != "txtRegNo" {
		t.Errorf("expected txtRegNo, got %q", fields.regno)
	}
	if fields.dob != "txtField2" {
		t.Errorf("expected fallback dob txtField2, got %q", fields.dob)
	}
	if action != "https://egovernance.unom.ac.in/results/check.asp" {
		t.Errorf("relative action not resolved: %s", action)
	}
}

func TestDiscoverForm_SkipsUnrelatedForms(t *testing.T) {
	page := `
<form action="/search"><input type="text" name="q"></form>
<form action="/results/ugresult.asp">
  <input type="text" name="regno">
  <input type="text" name="dob">
</form>`

	_, fields, err := discoverForm(page, "https://egovernance.unom.ac.in/results/")
	if err != nil {
		t.Fatalf("discoverForm failed: %v", err)
	}
	if fields.regno != "regno" {
		t.Errorf("picked the wrong form: %+v", fields)
	}
}

func TestDiscoverForm_NoForm(t *testing.T) {
	if _, _, err := discoverForm("<html><body><p>maintenance</p></body></html>", "https://example.com/"); err == nil {
		t.Fatal("expected an error when no usable form exists")
	}
}
