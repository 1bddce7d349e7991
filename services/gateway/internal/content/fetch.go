package content

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Gateways are the HTTP gateways for ipfs:// content. Primary is optional
// and tried first.
type Gateways struct {
	Primary  string
	Fallback string
}

type candidate struct {
	role string
	url  string
}

// candidates lists the URLs to try, in order, for an absolute body URL.
func (g Gateways) candidates(u *url.URL) ([]candidate, error) {
	if u.Scheme != "ipfs" {
		return []candidate{{role: "direct", url: u.String()}}, nil
	}
	suffix := "/ipfs/" + u.Host + u.EscapedPath()
	if u.RawQuery != "" {
		suffix += "?" + u.RawQuery
	}
	var out []candidate
	if g.Primary != "" {
		out = append(out, candidate{role: "primary", url: strings.TrimRight(g.Primary, "/") + suffix})
	}
	if g.Fallback != "" {
		out = append(out, candidate{role: "fallback", url: strings.TrimRight(g.Fallback, "/") + suffix})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no ipfs gateway configured for %s", u.String())
	}
	return out, nil
}

func resolveURL(origin, raw string) (*url.URL, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrProtocol, raw, err)
	}
	return base.ResolveReference(ref), nil
}

func (r *Resolver) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return r.http.Do(req)
}

// fetchBody tries each candidate until one answers 200. When none does, the
// last response received is relayed as is.
func (r *Resolver) fetchBody(ctx context.Context, origin string, v ExternalBody) (*Result, error) {
	abs, err := resolveURL(origin, v.URL)
	if err != nil {
		return nil, err
	}
	if abs.Scheme == "ipfs" {
		if _, err := cid.Decode(abs.Host); err != nil {
			// Gateways may still resolve it, e.g. a dnslink name.
			r.log.Warn("ipfs body url has no valid cid", zap.String("host", abs.Host), zap.Error(err))
		}
	}
	cands, err := r.gateways.candidates(abs)
	if err != nil {
		return nil, err
	}

	var last *http.Response
	var lastErr error
	for _, c := range cands {
		r.log.Debug("loading body", zap.String("role", c.role), zap.String("url", c.url))
		resp, err := r.get(ctx, c.url)
		if err != nil {
			r.metrics.GatewayFetch(c.role, 0)
			r.log.Warn("body fetch failed", zap.String("url", c.url), zap.Error(err))
			lastErr = &FetchError{URL: c.url, Err: err}
			continue
		}
		r.metrics.GatewayFetch(c.role, resp.StatusCode)
		if last != nil {
			last.Body.Close()
		}
		last = resp
		if resp.StatusCode == http.StatusOK {
			break
		}
	}
	if last == nil {
		return nil, lastErr
	}

	// The contract's status only applies to content that was actually found.
	status := last.StatusCode
	if v.Status != 0 && last.StatusCode == http.StatusOK {
		status = v.Status
	}
	h := relayHeaders(last)
	if v.ContentType != "" {
		h.Set("content-type", v.ContentType)
	}
	if v.CacheControl != "" {
		h.Set("cache-control", v.CacheControl)
	} else if cc := DefaultCacheControl(h.Get("content-type")); cc != "" {
		h.Set("cache-control", cc)
	}
	return &Result{Status: status, Header: h, Body: last.Body}, nil
}

// relayHeaders copies upstream headers except cache-control, which is the
// contract's to decide, and the encoding/length pair when the client already
// decompressed the body.
func relayHeaders(resp *http.Response) http.Header {
	out := http.Header{}
	for k, vals := range resp.Header {
		switch strings.ToLower(k) {
		case "cache-control":
			continue
		case "content-encoding", "content-length":
			if resp.Uncompressed {
				continue
			}
		}
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// DefaultCacheControl is applied to relayed bodies when the contract gives no
// cacheControl of its own.
func DefaultCacheControl(contentType string) string {
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		media = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	switch {
	case strings.HasPrefix(media, "image/"), strings.HasPrefix(media, "font/"),
		strings.HasPrefix(media, "video/"), strings.HasPrefix(media, "audio/"),
		media == "application/javascript", media == "text/javascript", media == "text/css":
		return "public, max-age=3600"
	case media == "text/html":
		return "public, max-age=60"
	}
	return ""
}

// fetchPreloads loads one batch concurrently, keyed by the URL as the
// contract wrote it.
func (r *Resolver) fetchPreloads(ctx context.Context, origin string, urls []string) (map[string]Preload, error) {
	results := make([]Preload, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range urls {
		g.Go(func() error {
			abs, err := resolveURL(origin, raw)
			if err != nil {
				return err
			}
			resp, err := r.get(gctx, abs.String())
			if err != nil {
				return &FetchError{URL: abs.String(), Err: err}
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return &FetchError{URL: abs.String(), Err: err}
			}
			results[i] = Preload{ContentType: resp.Header.Get("content-type"), Body: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]Preload, len(urls))
	for i, raw := range urls {
		out[raw] = results[i]
	}
	return out, nil
}
