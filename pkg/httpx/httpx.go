// Package httpx holds the JSON and text response helpers shared by handlers.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader echoes the id that error envelopes and access logs carry.
const RequestIDHeader = "x-request-id"

func NewRequestID() string { return "req_" + uuid.NewString() }

// RequestID returns the id chi's RequestID middleware put on r, or a fresh one
// when r did not pass through it.
func RequestID(r *http.Request) string {
	if r != nil {
		if id := middleware.GetReqID(r.Context()); id != "" {
			return id
		}
	}
	return NewRequestID()
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("content-type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

// WriteError writes {request_id, error:{code,message,details}} using the
// request's own id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	id := RequestID(r)
	w.Header().Set(RequestIDHeader, id)
	WriteJSON(w, status, map[string]any{
		"request_id": id,
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	})
}
