package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testStore() *Store {
	hash := make([]byte, 32)
	block := make([]byte, 32)
	return NewStore(nil, hash, block)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(hash, "hunter2") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "hunter3") {
		t.Error("wrong password accepted")
	}
}

func TestSessionCookieRoundTrip(t *testing.T) {
	s := testStore()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if err := s.SetSession(rec, req, 42); err != nil {
		t.Fatal(err)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	for _, c := range rec.Result().Cookies() {
		req2.AddCookie(c)
	}
	sess, ok := s.GetSession(req2)
	if !ok || sess.UserID != 42 {
		t.Fatalf("session = %+v ok=%t", sess, ok)
	}
}

func TestGetSessionRejectsTampering(t *testing.T) {
	s := testStore()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "teesched_session", Value: "not-a-real-cookie"})
	if _, ok := s.GetSession(req); ok {
		t.Fatal("tampered cookie accepted")
	}
}

func TestRequireAuthReturnsJSON401(t *testing.T) {
	s := testStore()
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without a session")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/requests", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestRequireAuthPassesUserID(t *testing.T) {
	s := testStore()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	if err := s.SetSession(rec, req, 7); err != nil {
		t.Fatal(err)
	}

	var got int64
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserIDFromContext(r.Context())
	}))
	req2 := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	for _, c := range rec.Result().Cookies() {
		req2.AddCookie(c)
	}
	h.ServeHTTP(httptest.NewRecorder(), req2)

	if got != 7 {
		t.Fatalf("user id = %d", got)
	}
}
