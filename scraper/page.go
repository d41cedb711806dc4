package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/auctionscrape/config"
	"github.com/ysmood/gson"
)

// rodPage adapts a *rod.Page to the Page interface.
type rodPage struct {
	page *rod.Page
}

func (r *rodPage) Navigate(ctx context.Context, url string, wait WaitMode, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := r.page.Context(ctx)

	if wait == WaitDOMContentLoaded {
		// The listener must exist before Navigate or the event is missed.
		waitDOM := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
		if err := p.Navigate(url); err != nil {
			return err
		}
		waitDOM()
		return ctx.Err()
	}

	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (r *rodPage) Scroll(ctx context.Context, dy float64) error {
	return r.page.Context(ctx).Mouse.Scroll(0, dy, 1)
}

func (r *rodPage) ClickButton(ctx context.Context, pattern string, timeout time.Duration) error {
	p := r.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	el, err := p.ElementR(`button, [role="button"], input[type="button"], input[type="submit"]`, pattern)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (r *rodPage) HTML(ctx context.Context) (string, error) {
	return r.page.Context(ctx).HTML()
}

// fingerprintJS hides the usual automation tells. It complements stealth.JS
// with values consistent with the configured user agent.
const fingerprintJS = `(function () {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	Object.defineProperty(navigator, 'languages', { get: () => %s });
	Object.defineProperty(navigator, 'platform', { get: () => %s });
	window.chrome = { runtime: {} };
})();`

// configurePage applies the browser fingerprint and restores local storage.
// It must run before the first navigation.
func configurePage(page *rod.Page, cc config.ContextConfig, state *State) error {
	err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cc.ViewportWidth,
		Height:            cc.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: cc.Locale}).Call(page); err != nil {
		return fmt.Errorf("set locale: %w", err)
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: cc.TimezoneID}).Call(page); err != nil {
		return fmt.Errorf("set timezone: %w", err)
	}

	acceptLang := acceptLanguage(cc.Locale)
	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      cc.UserAgent,
		AcceptLanguage: acceptLang,
		Platform:       cc.Platform,
	})
	if err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}
	err = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": acceptLang}),
	}.Call(page)
	if err != nil {
		return fmt.Errorf("set extra headers: %w", err)
	}

	script := fmt.Sprintf(fingerprintJS,
		gson.New(navigatorLanguages(cc.Locale)).JSON("", ""),
		gson.New(cc.Platform).JSON("", ""),
	)
	if _, err := page.EvalOnNewDocument(script); err != nil {
		return fmt.Errorf("install fingerprint script: %w", err)
	}

	if js := state.localStorageScript(); js != "" {
		if _, err := page.EvalOnNewDocument(js); err != nil {
			return fmt.Errorf("install local storage restore: %w", err)
		}
	}
	return nil
}

// navigatorLanguages returns navigator.languages for a locale:
// "en-US" gives ["en-US", "en"].
func navigatorLanguages(locale string) []string {
	langs := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok && base != "" {
		langs = append(langs, base)
	}
	return langs
}

// acceptLanguage builds the Accept-Language header for a locale.
func acceptLanguage(locale string) string {
	langs := navigatorLanguages(locale)
	if len(langs) == 1 {
		return locale
	}
	return langs[0] + "," + langs[1] + ";q=0.9"
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
