package portal

import "strings"

// Everything in this file mirrors the markup of the university's result
// page as observed. The portal versions none of it, so treat each list as
// an ordered set of guesses: first match wins, and a portal redesign means
// updating these before anything else.

// regnoSelectors locate the register-number input, most specific first.
var regnoSelectors = []string{
	`input[name="regno"]`,
	`#regno`,
	`input[name*="reg"]`,
	`input[id*="reg"]`,
	`input[type="text"]`,
}

// dobSelectors locate the date-of-birth input.
var dobSelectors = []string{
	`input[name="dob"]`,
	`#dob`,
	`input[placeholder*="date"]`,
	`input[placeholder*="birth"]`,
	`input[placeholder*="dob"]`,
	`input[type="text"]:nth-of-type(2)`,
}

// submitSelectors locate the form's submit control.
var submitSelectors = []string{
	`input[type="submit"]`,
	`button[type="submit"]`,
	`input[value="Submit"]`,
	`input[value="Get"]`,
	`form input[type="button"]`,
	`form button`,
	`.btn`,
}

// portalErrorBanners are the literal rejection messages the portal prints
// in place of a result table.
var portalErrorBanners = []string{
	"Invalid Register Number",
	"Invalid Date of Birth",
	"No Results Found",
	"Record not found",
}

// findErrorBanner returns the first rejection message present in the page,
// or "" when the page carries none.
func findErrorBanner(rawHTML string) string {
	lower := strings.ToLower(rawHTML)
	for _, banner := range portalErrorBanners {
		if strings.Contains(lower, strings.ToLower(banner)) {
			return banner
		}
	}
	return ""
}
