package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/resulthound/resulthound/models"
)

// fetchBrowser drives one lookup through a real browser tab.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard     – hard deadline on the entire lookup
//  2. Acquire page      – borrow a tab from the pool (or create one)
//  3. DEFER: cleanup    – about:blank + return to pool (leak prevention)
//  4. Stealth injection – mask navigator.webdriver etc. (before navigation!)
//  5. Hijack mount      – block images/CSS/fonts/media (before navigation!)
//  6. Context binding   – propagate timeout to all Rod operations
//  7. Navigate          – load the lookup form
//  8. Fill & submit     – type register number + DOB, click submit
//  9. Wait              – let the response page settle
//  10. Extract          – rendered HTML out
//
// Steps 4-5 must happen before step 7: stealth JS and resource blocking only
// take effect for navigations installed ahead of them. Step 3's about:blank
// uses the ORIGINAL page reference (without request context), so cleanup
// succeeds even if the request context has expired.
func (s *Session) fetchBrowser(ctx context.Context, query models.StudentQuery) (string, error) {
	// ── 1. Timeout guard ─────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, s.portalCfg.RequestTimeout)
	defer cancel()

	// ── 2. Acquire page from pool ────────────────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, acquireErr := s.pagePool.Get(func() (*rod.Page, error) {
		return s.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		return "", models.NewHarvestError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	// ── 3. CRITICAL DEFER: reset tab + guarantee pool return ─────────
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank",
				"error", navErr,
			)
		}
		s.pagePool.Put(page)
	}()

	// ── 4. Stealth injection ─────────────────────────────────────────
	if s.portalCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	// ── 4b. Referer: look like we came from the portal's own site ────
	if u, parseErr := url.Parse(s.portalCfg.ResultURL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": u.Scheme + "://" + u.Host + "/",
			}),
		}.Call(page)
	}

	// ── 5. Mount hijack router (blocks Image/Stylesheet/Font/Media) ──
	router := setupHijack(page, s.portalCfg.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 6. Bind request context to page ──────────────────────────────
	p := page.Context(ctx)

	// ── 7. Navigate to the lookup form ───────────────────────────────
	navCtx, navCancel := context.WithTimeout(ctx, s.portalCfg.NavigationTimeout)
	if navErr := page.Context(navCtx).Navigate(s.portalCfg.ResultURL); navErr != nil {
		navCancel()
		return "", categorizeError(navErr, "navigation to result form failed")
	}
	navCancel()

	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("form page did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}

	// ── 8. Fill and submit the form ──────────────────────────────────
	if err := s.submitForm(p, query); err != nil {
		return "", err
	}

	// ── 9. Wait for the response page to settle ──────────────────────
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("result page did not converge, proceeding with current DOM",
			"error", stableErr,
		)
	}

	// ── 10. Extract rendered HTML ────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return "", categorizeError(htmlErr, "failed to extract result page HTML")
	}

	return rawHTML, nil
}

// submitForm types the query into the lookup form and clicks submit.
func (s *Session) submitForm(p *rod.Page, query models.StudentQuery) error {
	regInput, err := firstMatch(p, regnoSelectors)
	if err != nil {
		return models.NewHarvestError(
			models.ErrCodeParseFailed,
			"could not find register number input field",
			err,
		)
	}
	if err := fillInput(regInput, query.RegisterNumber); err != nil {
		return categorizeError(err, "failed to fill register number")
	}

	dobInput, err := firstMatch(p, dobSelectors)
	if err != nil {
		return models.NewHarvestError(
			models.ErrCodeParseFailed,
			"could not find date of birth input field",
			err,
		)
	}
	// The regno fallback selectors can alias the first text input; the DOB
	// field must be a different element.
	if sameEl, _ := regInput.Equal(dobInput); sameEl {
		dobInput, err = secondTextInput(p, regInput)
		if err != nil {
			return models.NewHarvestError(
				models.ErrCodeParseFailed,
				"could not find date of birth input field",
				err,
			)
		}
	}
	if err := fillInput(dobInput, query.DateOfBirth); err != nil {
		return categorizeError(err, "failed to fill date of birth")
	}

	submitBtn, err := firstMatch(p, submitSelectors)
	if err != nil {
		return models.NewHarvestError(
			models.ErrCodeParseFailed,
			"could not find submit button",
			err,
		)
	}
	if err := submitBtn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return categorizeError(err, "failed to click submit")
	}
	return nil
}

// firstMatch tries each selector in order without waiting and returns the
// first element present in the DOM.
func firstMatch(p *rod.Page, selectors []string) (*rod.Element, error) {
	for _, sel := range selectors {
		el, err := p.Sleeper(rod.NotFoundSleeper).Element(sel)
		if err == nil && el != nil {
			return el, nil
		}
	}
	return nil, fmt.Errorf("no element matched any of %d candidate selectors", len(selectors))
}

// secondTextInput returns the first text input that is not `not`.
func secondTextInput(p *rod.Page, not *rod.Element) (*rod.Element, error) {
	els, err := p.Sleeper(rod.NotFoundSleeper).Elements(`input[type="text"]`)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if same, _ := el.Equal(not); !same {
			return el, nil
		}
	}
	return nil, fmt.Errorf("form has no second text input")
}

// fillInput clears whatever the field holds and types the value.
func fillInput(el *rod.Element, value string) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed HarvestErrors so callers can
// map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.HarvestError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewHarvestError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewHarvestError(models.ErrCodeTimeout, "lookup canceled", err)
	default:
		return models.NewHarvestError(models.ErrCodeFetchFailed, msg, err)
	}
}
