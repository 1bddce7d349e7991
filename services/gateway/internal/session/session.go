// Package session reads and writes the web4 identity cookies.
package session

import (
	"net/http"
	"net/url"
)

const (
	AccountIDCookie  = "web4_account_id"
	PrivateKeyCookie = "web4_private_key"
)

func AccountID(r *http.Request) string  { return cookieValue(r, AccountIDCookie) }
func PrivateKey(r *http.Request) string { return cookieValue(r, PrivateKeyCookie) }

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func SetAccountID(w http.ResponseWriter, accountID string) {
	http.SetCookie(w, cookie(AccountIDCookie, accountID))
}

func SetPrivateKey(w http.ResponseWriter, key string) {
	http.SetCookie(w, cookie(PrivateKeyCookie, key))
}

func ClearAccountID(w http.ResponseWriter) {
	http.SetCookie(w, expired(AccountIDCookie))
}

func Clear(w http.ResponseWriter) {
	http.SetCookie(w, expired(AccountIDCookie))
	http.SetCookie(w, expired(PrivateKeyCookie))
}

// Page scripts read both cookies, so neither is HttpOnly.
func cookie(name, value string) *http.Cookie {
	return &http.Cookie{Name: name, Value: value, Path: "/", SameSite: http.SameSiteLaxMode}
}

func expired(name string) *http.Cookie {
	c := cookie(name, "")
	c.MaxAge = -1
	return c
}

// Origin is scheme://host of r as the browser saw it.
func Origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

// CallbackURL resolves explicit, falling back to the Referer and then the
// site root, into an absolute URL on the request origin.
func CallbackURL(r *http.Request, explicit string) string {
	target := explicit
	if target == "" {
		target = r.Referer()
	}
	if target == "" {
		target = "/"
	}
	base, err := url.Parse(Origin(r) + "/")
	if err != nil {
		return target
	}
	ref, err := url.Parse(target)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}
