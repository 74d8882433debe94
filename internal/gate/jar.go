package gate

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/xkilldash9x/consentgate/api/schemas"
)

// JarAdapter gates writes into an http.CookieJar. It satisfies
// http.CookieJar itself, so it drops in wherever the wrapped jar was used.
type JarAdapter struct {
	jar http.CookieJar

	mu   sync.RWMutex
	gate *Gate
}

var _ http.CookieJar = (*JarAdapter)(nil)
var _ Adapter = (*JarAdapter)(nil)

// NewJarAdapter wraps an existing jar.
func NewJarAdapter(jar http.CookieJar) *JarAdapter {
	return &JarAdapter{jar: jar}
}

func (a *JarAdapter) Name() string { return "cookiejar" }

func (a *JarAdapter) Install(g *Gate) error {
	a.mu.Lock()
	a.gate = g
	a.mu.Unlock()
	return nil
}

func (a *JarAdapter) Uninstall() {
	a.mu.Lock()
	a.gate = nil
	a.mu.Unlock()
}

// SetCookies stores only the cookies the gate allows. With no gate
// installed every cookie passes.
func (a *JarAdapter) SetCookies(u *url.URL, cookies []*http.Cookie) {
	a.mu.RLock()
	g := a.gate
	a.mu.RUnlock()

	if g == nil {
		a.jar.SetCookies(u, cookies)
		return
	}

	allowed := cookies[:0:0]
	for _, c := range cookies {
		if g.Write(jarRaw(c, u)) {
			allowed = append(allowed, c)
		}
	}
	if len(allowed) > 0 {
		a.jar.SetCookies(u, allowed)
	}
}

// Cookies reads pass through untouched.
func (a *JarAdapter) Cookies(u *url.URL) []*http.Cookie {
	return a.jar.Cookies(u)
}

// jarRaw renders a cookie for gate evaluation, defaulting the domain and
// path from the request URL the way a browser would.
func jarRaw(c *http.Cookie, u *url.URL) string {
	id := schemas.Identity{Name: c.Name, Domain: c.Domain, Path: c.Path}
	if id.Domain == "" && u != nil {
		id.Domain = u.Hostname()
	}
	if id.Path == "" {
		id.Path = "/"
	}
	return id.Name + "=" + c.Value + "; domain=" + id.Domain + "; path=" + id.Path
}
