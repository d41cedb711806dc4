package scraper

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/auctionscrape/config"
	"github.com/use-agent/auctionscrape/models"
)

const serverRendered = `<html><head><title>2019 HONDA CIVIC</title></head><body>
<dl><dt>Stock #:</dt><dd>31234567</dd></dl>
<p>Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.</p>
<p>Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat.</p>
<p>Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur.</p>
</body></html>`

func TestHTTPFetcher_Fetch(t *testing.T) {
	var gotUA, gotLang, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		w.Write([]byte(serverRendered))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	state := &State{Cookies: []Cookie{{Name: "sid", Value: "abc", Domain: u.Hostname(), Path: "/"}}}

	cfg := config.Load()
	f, err := NewHTTPFetcher(cfg, state)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	body, err := f.Fetch(context.Background(), srv.URL+"/vehicle-details/31234567")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if body != serverRendered {
		t.Errorf("body mismatch: %q", body)
	}
	if gotUA != cfg.Context.UserAgent {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotLang != "en-US,en;q=0.9" {
		t.Errorf("Accept-Language = %q", gotLang)
	}
	if gotCookie != "abc" {
		t.Errorf("state cookie not sent, got %q", gotCookie)
	}
}

func TestHTTPFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(config.Load(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Fetch(context.Background(), srv.URL)
	if !models.HasCode(err, models.ErrCodeNavigation) {
		t.Fatalf("expected %s, got %v", models.ErrCodeNavigation, err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error should name the status: %v", err)
	}
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	f, err := NewHTTPFetcher(config.Load(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Fetch(context.Background(), "://bad")
	if !models.HasCode(err, models.ErrCodeInvalidInput) {
		t.Fatalf("expected %s, got %v", models.ErrCodeInvalidInput, err)
	}
}

func TestLooksClientRendered(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"server rendered", serverRendered, false},
		{"empty shell", `<html><body><div id="root"></div><script src="app.js"></script></body></html>`, true},
		{
			"noscript warning",
			`<html><body><noscript>Please enable JavaScript to continue.</noscript><p>` + strings.Repeat("text ", 60) + `</p></body></html>`,
			true,
		},
		{"script text ignored", `<html><body><script>` + strings.Repeat("var a = 1; ", 50) + `</script></body></html>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksClientRendered([]byte(tt.body)); got != tt.want {
				t.Errorf("looksClientRendered = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAcceptLanguage(t *testing.T) {
	tests := []struct {
		locale    string
		want      string
		wantLangs []string
	}{
		{"en-US", "en-US,en;q=0.9", []string{"en-US", "en"}},
		{"fr-CA", "fr-CA,fr;q=0.9", []string{"fr-CA", "fr"}},
		{"de", "de", []string{"de"}},
	}
	for _, tt := range tests {
		if got := acceptLanguage(tt.locale); got != tt.want {
			t.Errorf("acceptLanguage(%q) = %q, want %q", tt.locale, got, tt.want)
		}
		got := navigatorLanguages(tt.locale)
		if strings.Join(got, ",") != strings.Join(tt.wantLangs, ",") {
			t.Errorf("navigatorLanguages(%q) = %v, want %v", tt.locale, got, tt.wantLangs)
		}
	}
}

func TestBlockedSet(t *testing.T) {
	got := blockedSet([]string{"Image", "Font", "Bogus"})
	if len(got) != 2 {
		t.Errorf("blockedSet size: got %d, want 2", len(got))
	}
	if len(blockedSet(nil)) != 0 {
		t.Error("nil block list should be empty")
	}
}

func TestDialRaw_SOCKS5Handshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	first := make(chan byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		b := make([]byte, 1)
		if _, err := io.ReadFull(conn, b); err == nil {
			first <- b[0]
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := dialRaw(ctx, "tcp", "auction.example:443", "socks5://"+ln.Addr().String())
	if err == nil {
		conn.Close()
		t.Fatal("expected dial to fail against a listener that never answers the greeting")
	}

	select {
	case b := <-first:
		if b != 0x05 {
			t.Errorf("first byte at proxy = %#x, want SOCKS5 version 0x05", b)
		}
	case <-ctx.Done():
		t.Fatal("proxy never received a byte")
	}
}

func TestDialRaw_Direct(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	for _, proxyAddr := range []string{"", "http://127.0.0.1:1"} {
		conn, err := dialRaw(context.Background(), "tcp", ln.Addr().String(), proxyAddr)
		if err != nil {
			t.Fatalf("dialRaw(proxy=%q): %v", proxyAddr, err)
		}
		conn.Close()
	}
}
