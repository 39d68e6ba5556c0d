package portal

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/resulthound/resulthound/config"
	"github.com/resulthound/resulthound/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// Should never happen with a valid utls version; the zero spec
		// makes UClient fall back to HelloChrome_Auto.
		return
	}
	// Pin ALPN to http/1.1 so the server never negotiates HTTP/2, which
	// Go's http.Transport cannot frame over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// httpForm submits the lookup form over plain HTTP with a Chrome TLS
// fingerprint. The portal is a legacy server-rendered page, so skipping the
// browser is usually safe and much faster; browser mode remains the default
// because it survives the portal growing JavaScript.
type httpForm struct {
	client    *http.Client
	portalCfg config.PortalConfig
}

func newHTTPForm(portalCfg config.PortalConfig) *httpForm {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("httpform: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return &httpForm{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		portalCfg: portalCfg,
	}
}

// submit fetches the form page, discovers the field names and action, then
// POSTs the query. Hidden inputs are carried through untouched.
func (f *httpForm) submit(ctx context.Context, query models.StudentQuery) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.portalCfg.RequestTimeout)
	defer cancel()

	formPage, err := f.get(ctx, f.portalCfg.ResultURL)
	if err != nil {
		return "", categorizeError(err, "failed to load result form")
	}

	action, fields, err := discoverForm(formPage, f.portalCfg.ResultURL)
	if err != nil {
		return "", models.NewHarvestError(models.ErrCodeParseFailed, "could not discover lookup form", err)
	}

	values := url.Values{}
	for name, value := range fields.hidden {
		values.Set(name, value)
	}
	values.Set(fields.regno, query.RegisterNumber)
	values.Set(fields.dob, query.DateOfBirth)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(values.Encode()))
	if err != nil {
		return "", categorizeError(err, "failed to build form submission")
	}
	f.browserHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", f.portalCfg.ResultURL)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", categorizeError(err, "form submission failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", models.NewHarvestError(
			models.ErrCodeFetchFailed,
			fmt.Sprintf("portal returned HTTP %d", resp.StatusCode),
			nil,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", categorizeError(err, "failed to read result page")
	}
	return string(body), nil
}

// get fetches a page with browser-like headers.
func (f *httpForm) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	f.browserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *httpForm) browserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Cache-Control", "no-cache")
}

// formFields is what discoverForm learns about the lookup form.
type formFields struct {
	regno  string
	dob    string
	hidden map[string]string
}

var (
	formSelector   = cascadia.MustCompile("form")
	inputSelector  = cascadia.MustCompile("input")
	submitTypes    = map[string]struct{}{"submit": {}, "button": {}, "image": {}}
	hiddenTypeName = "hidden"
)

// discoverForm parses the form page and returns the submit action URL plus
// the field names for the two query inputs and any hidden carry-through
// fields. The first form containing a reg-like input wins.
func discoverForm(pageHTML, pageURL string) (string, formFields, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return "", formFields{}, fmt.Errorf("parse form page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", formFields{}, fmt.Errorf("parse page url: %w", err)
	}

	for _, form := range cascadia.QueryAll(doc, formSelector) {
		fields := formFields{hidden: map[string]string{}}
		var textInputs []string

		for _, input := range cascadia.QueryAll(form, inputSelector) {
			name := attr(input, "name")
			if name == "" {
				continue
			}
			typ := strings.ToLower(attr(input, "type"))
			if _, isSubmit := submitTypes[typ]; isSubmit {
				continue
			}
			if typ == hiddenTypeName {
				fields.hidden[name] = attr(input, "value")
				continue
			}

			lower := strings.ToLower(name)
			switch {
			case strings.Contains(lower, "reg"):
				if fields.regno == "" {
					fields.regno = name
				}
			case strings.Contains(lower, "dob"), strings.Contains(lower, "birth"), strings.Contains(lower, "date"):
				if fields.dob == "" {
					fields.dob = name
				}
			default:
				textInputs = append(textInputs, name)
			}
		}

		if fields.regno == "" {
			continue
		}
		// Last resort: assume the next unclaimed text input is the DOB,
		// matching how the portal lays the form out.
		if fields.dob == "" && len(textInputs) > 0 {
			fields.dob = textInputs[0]
		}
		if fields.dob == "" {
			continue
		}

		action := attr(form, "action")
		resolved := base.String()
		if action != "" {
			if actionURL, err := base.Parse(action); err == nil {
				resolved = actionURL.String()
			}
		}
		return resolved, fields, nil
	}

	return "", formFields{}, fmt.Errorf("no form with register number and date of birth inputs")
}

// attr returns the named attribute of an HTML node, or "".
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
