package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/accordsai/web4gateway/pkg/httpx"
	"github.com/accordsai/web4gateway/pkg/nearkey"
	"github.com/accordsai/web4gateway/services/gateway/internal/session"
	"github.com/accordsai/web4gateway/services/gateway/internal/wallet"
	"github.com/accordsai/web4gateway/services/gateway/internal/write"
)

const jsonSuffix = ".json"

func (h *Handler) viewContract(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "contractId")
	methodName := chi.URLParam(r, "methodName")
	args, err := viewArgs(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.chain.ViewCall(r.Context(), contractID, methodName, args)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// viewArgs builds view call arguments from a query string. Keys ending in
// .json carry JSON values; repeated keys become lists.
func viewArgs(q url.Values) (map[string]any, error) {
	out := make(map[string]any, len(q))
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		vals := q[key]
		name := key
		decoded := make([]any, len(vals))
		if strings.HasSuffix(key, jsonSuffix) {
			name = strings.TrimSuffix(key, jsonSuffix)
			for i, v := range vals {
				if err := json.Unmarshal([]byte(v), &decoded[i]); err != nil {
					return nil, fmt.Errorf("%w: query %s: %v", errBadRequest, key, err)
				}
			}
		} else {
			for i, v := range vals {
				decoded[i] = v
			}
		}
		if len(decoded) == 1 {
			out[name] = decoded[0]
		} else {
			out[name] = decoded
		}
	}
	return out, nil
}

func (h *Handler) callContract(w http.ResponseWriter, r *http.Request) {
	h.dispatchWrite(w, r, chi.URLParam(r, "contractId"), chi.URLParam(r, "methodName"))
}

// login stores a fresh function call key in the session and asks the wallet
// to authorize it for the contract.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Network.WalletURL == "" {
		h.writeError(w, r, write.ErrNoWallet)
		return
	}
	q := r.URL.Query()
	contractID := q.Get("web4_contract_id")
	if contractID == "" {
		contractID = h.contracts.Resolve(r.Context(), r.Host)
	}
	callbackURL := session.CallbackURL(r, q.Get("web4_callback_url"))

	key, err := nearkey.Generate()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	complete := url.Values{}
	complete.Set("web4_callback_url", callbackURL)
	completeURL := session.Origin(r) + "/web4/login/complete?" + complete.Encode()

	target, err := wallet.SignInURL(h.cfg.Network.WalletURL, contractID, key.PublicKey(), completeURL, completeURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	session.SetPrivateKey(w, key.String())
	session.ClearAccountID(w)
	h.log.Debug("login", zap.String("contract_id", contractID), zap.String("public_key", key.PublicKey().String()))
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) loginComplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callbackURL := q.Get("web4_callback_url")
	if callbackURL == "" {
		httpx.WriteError(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing web4_callback_url", nil)
		return
	}
	if accountID := q.Get("account_id"); accountID != "" {
		session.SetAccountID(w, accountID)
	}
	http.Redirect(w, r, callbackURL, http.StatusFound)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	session.Clear(w)
	http.Redirect(w, r, session.CallbackURL(r, r.URL.Query().Get("web4_callback_url")), http.StatusFound)
}

// sign turns web4_* query parameters into a wallet signing redirect.
func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	accountID := session.AccountID(r)
	if accountID == "" {
		redirectToLogin(w, r, session.CallbackURL(r, r.URL.Query().Get("web4_callback_url")))
		return
	}
	p, err := write.ParseSignQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p.SignerID = accountID
	p.CallbackURL = session.CallbackURL(r, p.CallbackURL)
	dec, err := h.writes.WalletRedirect(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dec.Serve(w, r)
}
