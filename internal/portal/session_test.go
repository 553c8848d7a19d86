package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

// fakePortal emulates the peer's handshake: keying value, RC4-hex login,
// token-for-cookie exchange with per-sub-path cookie binding.
type fakePortal struct {
	key      string
	token    string
	username string
	password string

	keyRequests int
	sheet       http.HandlerFunc
	dialog      http.HandlerFunc
	submit      http.HandlerFunc
}

func (f *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login/key", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_") == "" {
			http.Error(w, "missing cache buster", http.StatusBadRequest)
			return
		}
		f.keyRequests++
		fmt.Fprintf(w, `["%s"]`, f.key)
	})

	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		wantUser, _ := rc4hex(f.key, f.username)
		wantPass, _ := rc4hex(f.key, f.password)
		if r.FormValue("user") == wantUser && r.FormValue("pass") == wantPass {
			fmt.Fprintf(w, `["%s"]`, f.token)
			return
		}
		fmt.Fprint(w, `["deadtoken"]`)
	})

	mux.HandleFunc("/portal/default.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == f.token {
			http.SetCookie(w, &http.Cookie{Name: "outer", Value: "1", Path: "/portal"})
		}
		fmt.Fprint(w, "<html>landing</html>")
	})

	mux.HandleFunc("/portal/app/", func(w http.ResponseWriter, r *http.Request) {
		outer, err := r.Cookie("outer")
		if r.URL.Query().Get("token") != f.token || err != nil || outer.Value != "1" {
			fmt.Fprint(w, `<html><form id="loginform"><div class="error">Invalid member number or password</div></form></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "inner", Value: "1", Path: "/portal/app"})
		fmt.Fprint(w, "<html><body>Member home</body></html>")
	})

	mux.HandleFunc("/portal/app/teesheet.aspx", func(w http.ResponseWriter, r *http.Request) {
		if f.sheet != nil {
			f.sheet(w, r)
			return
		}
		fmt.Fprint(w, "<html></html>")
	})
	mux.HandleFunc("/portal/app/reserve.aspx", func(w http.ResponseWriter, r *http.Request) {
		if f.dialog != nil {
			f.dialog(w, r)
		}
	})
	mux.HandleFunc("/portal/app/reservesubmit.aspx", func(w http.ResponseWriter, r *http.Request) {
		if f.submit != nil {
			f.submit(w, r)
		}
	})

	return mux
}

func newTestClient(t *testing.T, f *fakePortal, creds Credentials) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, creds, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SetRetryDelay(0)
	return c, srv
}

func TestRC4HexKnownVector(t *testing.T) {
	// classic RC4 vector: key "Key", plaintext "Plaintext"
	got, err := rc4hex("Key", "Plaintext")
	if err != nil {
		t.Fatal(err)
	}
	if got != "bbf316e8d940af0ad3" {
		t.Fatalf("rc4hex = %s, want bbf316e8d940af0ad3", got)
	}
}

func TestAuthenticate(t *testing.T) {
	f := &fakePortal{key: "k-0042", token: "tok-1", username: "member-9", password: "s3cret"}
	c, _ := newTestClient(t, f, Credentials{Username: "member-9", Password: "s3cret"})

	if err := c.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if c.token != "tok-1" {
		t.Errorf("token = %q", c.token)
	}
	if f.keyRequests != 1 {
		t.Errorf("keying value fetched %d times", f.keyRequests)
	}
}

func TestAuthenticateBadCredentials(t *testing.T) {
	f := &fakePortal{key: "k-0042", token: "tok-1", username: "member-9", password: "s3cret"}
	c, _ := newTestClient(t, f, Credentials{Username: "member-9", Password: "wrong"})

	err := c.Authenticate(context.Background())
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if ae.Msg != "Invalid member number or password" {
		t.Errorf("error text = %q, want the peer's literal text", ae.Msg)
	}
	if c.token != "" {
		t.Errorf("token kept after failed handshake: %q", c.token)
	}
}

type memStore struct {
	saved *SavedSession
}

func (m *memStore) Load(context.Context) (*SavedSession, error)   { return m.saved, nil }
func (m *memStore) Save(_ context.Context, s *SavedSession) error { m.saved = s; return nil }

func TestEnsureSessionUsesStore(t *testing.T) {
	f := &fakePortal{key: "k", token: "tok-9", username: "u", password: "p"}
	store := &memStore{saved: &SavedSession{Token: "tok-9", Cookies: []SavedCookie{{Name: "outer", Value: "1"}}}}

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, Credentials{Username: "u", Password: "p"}, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if f.keyRequests != 0 {
		t.Error("handshake performed despite a persisted session")
	}
	if c.token != "tok-9" {
		t.Errorf("token = %q", c.token)
	}
}

func TestEnsureSessionFreshHandshakePersists(t *testing.T) {
	f := &fakePortal{key: "k", token: "tok-9", username: "u", password: "p"}
	store := &memStore{}

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, Credentials{Username: "u", Password: "p"}, store, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.EnsureSession(context.Background()); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if store.saved == nil || store.saved.Token != "tok-9" {
		t.Fatalf("session not persisted: %+v", store.saved)
	}
	if len(store.saved.Cookies) == 0 {
		t.Error("cookie jar not persisted")
	}
}
