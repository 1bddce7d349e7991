package content

import (
	"encoding/base64"
	"fmt"
)

// MethodName is the contract entry point every web4 contract exposes.
const MethodName = "web4_get"

// Request is the argument passed to web4_get as {"request": Request}.
type Request struct {
	AccountID string              `json:"accountId,omitempty"`
	Path      string              `json:"path"`
	Query     map[string][]string `json:"query"`
	Preloads  map[string]Preload  `json:"preloads,omitempty"`
}

// Preload is one fetched dependency handed back to the contract. Body is
// base64 on the wire.
type Preload struct {
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body"`
}

// Response is the loosely typed reply of web4_get. Variant turns it into
// exactly one of the concrete variants below.
type Response struct {
	ContentType  string   `json:"contentType,omitempty"`
	Status       int      `json:"status,omitempty"`
	Body         string   `json:"body,omitempty"`
	BodyURL      string   `json:"bodyUrl,omitempty"`
	PreloadURLs  []string `json:"preloadUrls,omitempty"`
	CacheControl string   `json:"cacheControl,omitempty"`
}

type Variant interface {
	variant()
}

// StatusOnly ends the request with a bare status.
type StatusOnly struct {
	Status int
}

type InlineBody struct {
	Status       int
	ContentType  string
	Body         []byte
	CacheControl string
}

// ExternalBody points at content to fetch and relay.
type ExternalBody struct {
	Status       int
	ContentType  string
	URL          string
	CacheControl string
}

// PreloadRequest asks for URLs to be fetched and passed back on the next hop.
type PreloadRequest struct {
	URLs []string
}

func (StatusOnly) variant()     {}
func (InlineBody) variant()     {}
func (ExternalBody) variant()   {}
func (PreloadRequest) variant() {}

// Variant picks the active variant. A status with neither body nor bodyUrl
// wins over preloadUrls; body wins over bodyUrl.
func (r Response) Variant() (Variant, error) {
	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return nil, fmt.Errorf("%w: status %d is not a valid http status", ErrProtocol, r.Status)
	}
	switch {
	case r.Status != 0 && r.Body == "" && r.BodyURL == "":
		return StatusOnly{Status: r.Status}, nil
	case r.Body != "":
		body, err := base64.StdEncoding.DecodeString(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: body is not base64: %v", ErrProtocol, err)
		}
		return InlineBody{Status: r.Status, ContentType: r.ContentType, Body: body, CacheControl: r.CacheControl}, nil
	case r.BodyURL != "":
		return ExternalBody{Status: r.Status, ContentType: r.ContentType, URL: r.BodyURL, CacheControl: r.CacheControl}, nil
	case r.PreloadURLs != nil:
		return PreloadRequest{URLs: r.PreloadURLs}, nil
	default:
		return nil, fmt.Errorf("%w: response has no status, body, bodyUrl or preloadUrls", ErrProtocol)
	}
}
