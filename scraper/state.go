package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/auctionscrape/models"
	"github.com/ysmood/gson"
)

// State is the browser session carried between runs: cookies plus the
// local storage of every origin visited. The JSON layout is the
// storage-state format used by Playwright, so existing state files load.
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Cookie is one persisted browser cookie. Expires is seconds since the
// Unix epoch, -1 for session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Origin holds the local storage entries of one origin.
type Origin struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// StorageItem is a single local storage key/value pair.
type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadState reads a state file. A missing file is not an error and yields
// a nil state.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStateIO, "failed to read session state", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeStateIO,
			fmt.Sprintf("malformed session state in %s", path), err)
	}
	return &st, nil
}

// Save writes the state as indented JSON, replacing path atomically.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStateIO, "failed to encode session state", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return models.NewScrapeError(models.ErrCodeStateIO, "failed to write session state", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return models.NewScrapeError(models.ErrCodeStateIO, "failed to write session state", err)
	}
	if err := tmp.Close(); err != nil {
		return models.NewScrapeError(models.ErrCodeStateIO, "failed to write session state", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return models.NewScrapeError(models.ErrCodeStateIO, "failed to write session state", err)
	}
	return nil
}

// setOrigin replaces the local storage of o.Origin, appending it when the
// origin is new.
func (s *State) setOrigin(o Origin) {
	for i := range s.Origins {
		if s.Origins[i].Origin == o.Origin {
			s.Origins[i] = o
			return
		}
	}
	s.Origins = append(s.Origins, o)
}

// cookieParams converts the persisted cookies for Browser.SetCookies.
func (s *State) cookieParams() []*proto.NetworkCookieParam {
	if s == nil {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

// cookiesFromBrowser converts live browser cookies into their persisted form.
func cookiesFromBrowser(cookies []*proto.NetworkCookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := float64(c.Expires)
		if c.Session {
			expires = -1
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// cookieJar builds a jar holding the persisted cookies, for the plain
// HTTP fetch mode.
func (s *State) cookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return jar, nil
	}
	for _, c := range s.Cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		// A leading dot marks a domain cookie; without one the cookie is
		// host-only.
		if strings.HasPrefix(c.Domain, ".") {
			hc.Domain = host
		}
		jar.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: path}, []*http.Cookie{hc})
	}
	return jar, nil
}

// localStorageScript returns a script that, on each new document, restores
// the saved local storage entries of the document's origin. It returns ""
// when there is nothing to restore.
func (s *State) localStorageScript() string {
	if s == nil {
		return ""
	}
	byOrigin := map[string][]StorageItem{}
	for _, o := range s.Origins {
		if len(o.LocalStorage) > 0 {
			byOrigin[o.Origin] = o.LocalStorage
		}
	}
	if len(byOrigin) == 0 {
		return ""
	}
	data := gson.New(byOrigin).JSON("", "")
	return `(function () {
	var saved = ` + data + `;
	var items = saved[window.location.origin];
	if (!items) return;
	for (var i = 0; i < items.length; i++) {
		try { window.localStorage.setItem(items[i].name, items[i].value); } catch (e) {}
	}
})();`
}

// originFromEval decodes the result of localStorageJS.
func originFromEval(v gson.JSON) Origin {
	o := Origin{Origin: v.Get("origin").Str()}
	for _, item := range v.Get("items").Arr() {
		o.LocalStorage = append(o.LocalStorage, StorageItem{
			Name:  item.Get("name").Str(),
			Value: item.Get("value").Str(),
		})
	}
	return o
}

const localStorageJS = `() => {
	const items = [];
	try {
		for (let i = 0; i < window.localStorage.length; i++) {
			const name = window.localStorage.key(i);
			items.push({name: name, value: window.localStorage.getItem(name)});
		}
	} catch (e) {}
	return {origin: window.location.origin, items: items};
}`
