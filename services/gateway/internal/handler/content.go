package handler

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/accordsai/web4gateway/pkg/httpx"
	"github.com/accordsai/web4gateway/services/gateway/internal/content"
	"github.com/accordsai/web4gateway/services/gateway/internal/session"
	"github.com/accordsai/web4gateway/services/gateway/internal/write"
)

func (h *Handler) serveContent(w http.ResponseWriter, r *http.Request) {
	contractID := h.contracts.Resolve(r.Context(), r.Host)
	res, err := h.content.Resolve(r.Context(), content.Input{
		ContractID: contractID,
		AccountID:  session.AccountID(r),
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Origin:     session.Origin(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := res.Serve(w); err != nil {
		h.log.Debug("response stream interrupted", zap.String("contract_id", res.ContractID), zap.Error(err))
	}
}

// postContent turns a POST to a page path into a write call on the method the
// routing table maps it to.
func (h *Handler) postContent(w http.ResponseWriter, r *http.Request) {
	contractID := h.contracts.Resolve(r.Context(), r.Host)
	method, ok, err := h.routes.Lookup(r.Context(), contractID, r.URL.Path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "no write method mapped to "+r.URL.Path, nil)
		return
	}
	h.dispatchWrite(w, r, contractID, method)
}

func (h *Handler) dispatchWrite(w http.ResponseWriter, r *http.Request, contractID, method string) {
	accountID := session.AccountID(r)
	if accountID == "" {
		redirectToLogin(w, r, session.CallbackURL(r, ""))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWriteBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "payload exceeds 5MB limit", nil)
			return
		}
		httpx.WriteError(w, r, http.StatusBadRequest, "BAD_BODY", err.Error(), nil)
		return
	}
	body, err := write.ParseBody(r.Header.Get("content-type"), raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dec, err := h.writes.Dispatch(r.Context(), write.Call{
		AccountID:   accountID,
		PrivateKey:  session.PrivateKey(r),
		ContractID:  contractID,
		MethodName:  method,
		Args:        body.Args,
		Gas:         body.Gas,
		Deposit:     body.Deposit,
		CallbackURL: session.CallbackURL(r, body.CallbackURL),
		FromForm:    body.FromForm,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dec.Serve(w, r)
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, callbackURL string) {
	q := url.Values{}
	q.Set("web4_callback_url", callbackURL)
	http.Redirect(w, r, "/web4/login?"+q.Encode(), http.StatusFound)
}
