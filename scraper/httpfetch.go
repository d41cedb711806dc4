package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"
	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/auctionscrape/config"
	"github.com/use-agent/auctionscrape/models"
	"golang.org/x/net/html"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// maxBodySize caps a fetched document.
const maxBodySize = 10 * 1024 * 1024

// HTTPFetcher fetches pages with a plain GET and a Chrome TLS fingerprint
// (utls). It runs no JavaScript, so it only suits pages rendered
// server-side.
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher builds a fetcher carrying the cookies of state, which may
// be nil.
func NewHTTPFetcher(cfg *config.Config, state *State) (*HTTPFetcher, error) {
	proxyAddr := cfg.Browser.DefaultProxy
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, proxyAddr)
		},
	}
	if proxyAddr != "" {
		proxyURL, err := url.Parse(proxyAddr)
		if err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	jar, err := state.cookieJar()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStateIO, "failed to load session cookies", err)
	}

	client := resty.New()
	client.SetTransport(transport)
	client.SetCookieJar(jar)
	client.SetTimeout(cfg.Navigation.HTTPTimeout)
	client.SetHeader("User-Agent", cfg.Context.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	client.SetHeader("Accept-Language", acceptLanguage(cfg.Context.Locale))
	client.SetHeader("Cache-Control", "no-cache")

	return &HTTPFetcher{
		client:  client,
		limiter: newLimiter(cfg.Navigation.RequestsPerSecond),
	}, nil
}

// Fetch retrieves targetURL and returns the body as a string.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return "", models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("invalid URL %q", targetURL), err)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", categorizeError(err, "rate limiter wait aborted")
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(targetURL)
	if err != nil {
		return "", categorizeError(err, "http request failed")
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		return "", models.NewScrapeError(models.ErrCodeNavigation,
			fmt.Sprintf("HTTP %d for %s", resp.StatusCode(), targetURL), nil)
	}

	data, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return "", categorizeError(err, "failed to read response body")
	}

	if looksClientRendered(data) {
		slog.Warn("page looks client-rendered, fields may be missing; try browser fetch mode",
			"url", targetURL)
	}
	return string(data), nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() {
	f.client.GetClient().CloseIdleConnections()
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr, proxyAddr string) (net.Conn, error) {
	rawConn, err := dialRaw(ctx, network, addr, proxyAddr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
	}, tls2.HelloCustom)

	helloSpec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		rawConn.Close()
		return nil, err
	}
	// net/http cannot speak h2 over a custom dialer, so advertise
	// HTTP/1.1 only.
	for _, ext := range helloSpec.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	if err := tlsConn.ApplyPreset(&helloSpec); err != nil {
		rawConn.Close()
		return nil, err
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// dialRaw opens the TCP connection under the TLS layer, tunnelling through
// a SOCKS5 proxy when one is configured. HTTP proxies are handled by the
// transport itself.
func dialRaw(ctx context.Context, network, addr, proxyAddr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if proxyAddr == "" {
		return dialer.DialContext(ctx, network, addr)
	}
	proxyURL, err := url.Parse(proxyAddr)
	if err != nil || (proxyURL.Scheme != "socks5" && proxyURL.Scheme != "socks5h") {
		return dialer.DialContext(ctx, network, addr)
	}

	d, err := proxy.FromURL(proxyURL, dialer)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}
	var conn net.Conn
	if cd, ok := d.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, network, addr)
	} else {
		conn, err = d.Dial(network, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("socks5 dial: %w", err)
	}
	return conn, nil
}

var reNoscript = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// looksClientRendered uses heuristics to decide whether the HTML is an
// application shell whose content is rendered by JavaScript.
func looksClientRendered(body []byte) bool {
	bodyText := extractVisibleText(body)

	// Very little visible text in <body>.
	if len(bodyText) < 200 {
		return true
	}

	lower := strings.ToLower(string(body))

	// Empty SPA root containers.
	for _, shell := range []string{`<div id="root"></div>`, `<div id="app"></div>`, `<div id="__next"></div>`} {
		if strings.Contains(lower, shell) {
			return true
		}
	}

	if reNoscript.MatchString(lower) {
		return true
	}

	// Many <script> tags and little body text.
	return strings.Count(lower, "<script") > 10 && len(bodyText) < 500
}

// extractVisibleText extracts the visible text from within <body>, stripping
// all tags and <script>/<style> content. Used for heuristic analysis only.
func extractVisibleText(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	var buf strings.Builder
	inBody := false
	skipDepth := 0

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "body" {
				inBody = true
			}
			if tag == "script" || tag == "style" || tag == "noscript" {
				skipDepth++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if (tag == "script" || tag == "style" || tag == "noscript") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				text := strings.TrimSpace(string(tokenizer.Text()))
				if text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
