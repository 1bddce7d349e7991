package session

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCookiesRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	SetAccountID(rec, "alice.near")
	SetPrivateKey(rec, "ed25519:abc")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		if c.HttpOnly {
			t.Fatalf("cookie %s must be readable by page scripts", c.Name)
		}
		if c.Path != "/" {
			t.Fatalf("cookie %s path = %q", c.Name, c.Path)
		}
		req.AddCookie(c)
	}
	if got := AccountID(req); got != "alice.near" {
		t.Fatalf("AccountID = %q", got)
	}
	if got := PrivateKey(req); got != "ed25519:abc" {
		t.Fatalf("PrivateKey = %q", got)
	}
}

func TestMissingCookies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if AccountID(req) != "" || PrivateKey(req) != "" {
		t.Fatal("expected empty identity")
	}
}

func TestClearExpiresBoth(t *testing.T) {
	rec := httptest.NewRecorder()
	Clear(rec)
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	for _, c := range cookies {
		if c.MaxAge >= 0 {
			t.Fatalf("cookie %s not expired: MaxAge=%d", c.Name, c.MaxAge)
		}
	}
}

func TestOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.near.page/x", nil)
	if got := Origin(req); got != "http://app.near.page" {
		t.Fatalf("Origin = %q", got)
	}
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := Origin(req); got != "https://app.near.page" {
		t.Fatalf("Origin = %q", got)
	}
	req = httptest.NewRequest(http.MethodGet, "http://app.near.page/x", nil)
	req.TLS = &tls.ConnectionState{}
	if got := Origin(req); got != "https://app.near.page" {
		t.Fatalf("Origin = %q", got)
	}
}

func TestCallbackURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://app.near.page/web4/logout", nil)
	if got := CallbackURL(req, ""); got != "http://app.near.page/" {
		t.Fatalf("default = %q", got)
	}
	req.Header.Set("Referer", "http://app.near.page/posts?id=1")
	if got := CallbackURL(req, ""); got != "http://app.near.page/posts?id=1" {
		t.Fatalf("referer = %q", got)
	}
	if got := CallbackURL(req, "/done"); got != "http://app.near.page/done" {
		t.Fatalf("explicit = %q", got)
	}
	if got := CallbackURL(req, "https://elsewhere.example/cb"); got != "https://elsewhere.example/cb" {
		t.Fatalf("absolute = %q", got)
	}
}
