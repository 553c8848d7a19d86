package portal

import (
	"context"
	"crypto/rc4"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// The portal never returns a structured success code for login. Presence of
// any of these in a payload means we are looking at the login page.
var loginMarkers = []string{
	`id="loginform"`,
	`name="login"`,
	"Please sign in",
}

func hasLoginMarker(payload string) bool {
	for _, m := range loginMarkers {
		if strings.Contains(payload, m) {
			return true
		}
	}
	return false
}

var loginErrRe = regexp.MustCompile(`(?s)<(?:div|span)[^>]*class="[^"]*error[^"]*"[^>]*>(.*?)</`)

// loginErrorText pulls the peer's literal error text out of a login page, if
// it printed one.
func loginErrorText(payload string) string {
	if m := loginErrRe.FindStringSubmatch(payload); m != nil {
		return strings.TrimSpace(stripTags(m[1]))
	}
	return ""
}

// rc4hex runs the portal's stream cipher over s keyed by key and returns
// lowercase hex, exactly as the login form's inline script does.
func rc4hex(key, s string) (string, error) {
	c, err := rc4.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}
	out := make([]byte, len(s))
	c.XORKeyStream(out, []byte(s))
	return hex.EncodeToString(out), nil
}

// singleList decodes the portal's JSON-wrapped single-element list responses.
func singleList(body string) (string, bool) {
	var l []string
	if err := json.Unmarshal([]byte(body), &l); err != nil || len(l) != 1 {
		return "", false
	}
	return l[0], true
}

// Authenticate performs the full handshake and persists the session. It never
// retries; retry policy belongs to callers.
func (c *Client) Authenticate(ctx context.Context) error {
	// 1. one-time keying value, nonce defeats caching
	body, err := c.get(ctx, "/api/login/key", url.Values{"_": {nonce()}})
	if err != nil {
		return &AuthError{Msg: err.Error()}
	}
	key, ok := singleList(body)
	if !ok || key == "" {
		return &AuthError{Msg: strings.TrimSpace(body)}
	}

	// 2. cipher the credentials under the keying value
	user, err := rc4hex(key, c.creds.Username)
	if err != nil {
		return &AuthError{Msg: err.Error()}
	}
	pass, err := rc4hex(key, c.creds.Password)
	if err != nil {
		return &AuthError{Msg: err.Error()}
	}

	// 3. submit, receive the session token
	body, err = c.postForm(ctx, "/api/login", url.Values{"user": {user}, "pass": {pass}})
	if err != nil {
		return &AuthError{Msg: err.Error()}
	}
	token, ok := singleList(body)
	if !ok || token == "" {
		return &AuthError{Msg: strings.TrimSpace(body)}
	}

	// 4. exchange the token for cookies. The peer binds cookies per
	// sub-path, so the app entry point needs its own navigation.
	if _, err := c.get(ctx, "/portal/default.aspx", url.Values{"token": {token}}); err != nil {
		return &AuthError{Msg: err.Error()}
	}
	payload, err := c.get(ctx, "/portal/app/", url.Values{"token": {token}})
	if err != nil {
		return &AuthError{Msg: err.Error()}
	}

	// 5. success is the absence of the login page
	if hasLoginMarker(payload) {
		return &AuthError{Msg: loginErrorText(payload)}
	}

	c.token = token
	c.log.Info("portal session established")
	if c.store != nil {
		if err := c.store.Save(ctx, c.saved()); err != nil {
			c.log.Warn("persisting portal session failed", zap.Error(err))
		}
	}
	return nil
}

// EnsureSession makes sure a session exists: in-memory first, then the
// persisted one, and only then a fresh handshake.
func (c *Client) EnsureSession(ctx context.Context) error {
	if c.token != "" {
		return nil
	}
	if c.store != nil {
		saved, err := c.store.Load(ctx)
		if err != nil {
			c.log.Warn("loading persisted portal session failed", zap.Error(err))
		} else if saved != nil && saved.Token != "" {
			c.restore(saved)
			c.log.Info("portal session restored from store")
			return nil
		}
	}
	return c.Authenticate(ctx)
}

// Invalidate drops the in-memory session so the next EnsureSession
// re-authenticates. Called when a payload carries login markers.
func (c *Client) Invalidate() {
	c.token = ""
}

func (c *Client) appURL() *url.URL {
	u, _ := url.Parse(c.base + "/portal/app/")
	return u
}

func (c *Client) saved() *SavedSession {
	s := &SavedSession{Token: c.token}
	for _, ck := range c.jar.Cookies(c.appURL()) {
		s.Cookies = append(s.Cookies, SavedCookie{Name: ck.Name, Value: ck.Value})
	}
	return s
}

func (c *Client) restore(s *SavedSession) {
	c.token = s.Token
	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	for _, ck := range s.Cookies {
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	c.jar.SetCookies(c.appURL(), cookies)
}
