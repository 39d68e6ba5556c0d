// Package portal drives the university's result-lookup form and parses the
// rendered result page into subject rows. The exact field names and table
// layout belong to the external site, so everything selector-shaped lives in
// form.go and must be expected to break when the portal changes.
package portal

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/resulthound/resulthound/config"
	"github.com/resulthound/resulthound/models"
)

// LookupResult is one student's parsed result page.
type LookupResult struct {
	// StudentName is the candidate name as printed by the portal, best-effort.
	StudentName string

	// Rows holds one entry per subject, each tagged with the query's
	// register number.
	Rows []models.ResultRow

	// RawHTML is the rendered page the rows were parsed from.
	RawHTML string
}

// Fetcher is the narrow seam between the harvest loop and the live portal.
// Implementations submit one student's query and return the parsed rows.
// Tests substitute a deterministic stub here.
type Fetcher interface {
	Fetch(ctx context.Context, query models.StudentQuery) (*LookupResult, error)
}

// PageError carries the rendered page alongside a lookup failure so the
// caller can keep a snapshot of what the portal actually served.
type PageError struct {
	*models.HarvestError
	RawHTML string
}

// Unwrap exposes the underlying HarvestError to errors.As, ahead of the
// embedded type's own unwrapping.
func (e *PageError) Unwrap() error {
	return e.HarvestError
}

// Session owns the browser lifecycle and the page pool, and implements
// Fetcher against the live portal. It is safe for concurrent use, though
// the harvest loop drives it one student at a time.
type Session struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	browserCfg  config.BrowserConfig
	portalCfg   config.PortalConfig
	httpForm    *httpForm
	activePages atomic.Int32
	startTime   time.Time
}

// NewSession launches a headless browser and initialises the page pool.
func NewSession(browserCfg config.BrowserConfig, portalCfg config.PortalConfig) (*Session, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.Bin != "" {
		l = l.Bin(browserCfg.Bin)
	}
	if browserCfg.Proxy != "" {
		l = l.Proxy(browserCfg.Proxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), "1920,1080")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewHarvestError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewHarvestError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", browserCfg.MaxPages)

	return &Session{
		browser:    browser,
		pagePool:   pool,
		browserCfg: browserCfg,
		portalCfg:  portalCfg,
		httpForm:   newHTTPForm(portalCfg),
		startTime:  time.Now(),
	}, nil
}

// Fetch submits one student's query and parses the result page.
// The fetch mode decides whether a browser tab or a plain form POST does
// the talking; both paths end in the same parser.
func (s *Session) Fetch(ctx context.Context, query models.StudentQuery) (*LookupResult, error) {
	var rawHTML string
	var err error

	switch s.portalCfg.FetchMode {
	case "http":
		rawHTML, err = s.httpForm.submit(ctx, query)
	default:
		rawHTML, err = s.fetchBrowser(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	if banner := findErrorBanner(rawHTML); banner != "" {
		return nil, &PageError{
			HarvestError: models.NewHarvestError(
				models.ErrCodePortalReject,
				"portal returned error: "+banner,
				nil,
			),
			RawHTML: rawHTML,
		}
	}

	result, err := parseResultPage(rawHTML, query.RegisterNumber)
	if err != nil {
		return nil, &PageError{
			HarvestError: models.NewHarvestError(
				models.ErrCodeParseFailed,
				"result page layout not recognized",
				err,
			),
			RawHTML: rawHTML,
		}
	}
	return result, nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Session) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    s.browserCfg.MaxPages,
		ActivePages: int(s.activePages.Load()),
	}
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Session) Close() {
	slog.Info("portal session shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("portal session shutting down: closing browser")
	s.browser.MustClose()
	slog.Info("portal session shutdown complete")
}
