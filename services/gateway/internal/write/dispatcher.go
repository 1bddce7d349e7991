// Package write decides how a state-changing contract call gets signed:
// locally with the session's function call key, or by the external wallet.
package write

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"go.uber.org/zap"

	"github.com/accordsai/web4gateway/pkg/nearkey"
	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
	"github.com/accordsai/web4gateway/services/gateway/internal/metrics"
	"github.com/accordsai/web4gateway/services/gateway/internal/wallet"
)

var ErrNoWallet = errors.New("write: network has no wallet configured")

// Call is one write request. CallbackURL must already be absolute.
type Call struct {
	AccountID   string
	PrivateKey  string
	ContractID  string
	MethodName  string
	Args        []byte
	Gas         uint64
	Deposit     *big.Int
	CallbackURL string
	FromForm    bool
}

func (c Call) pending() PendingTransaction {
	return PendingTransaction{
		SignerID:    c.AccountID,
		ReceiverID:  c.ContractID,
		MethodName:  c.MethodName,
		Args:        c.Args,
		Gas:         c.Gas,
		Deposit:     c.Deposit,
		CallbackURL: c.CallbackURL,
	}
}

// Decision is either a redirect or a rendered body.
type Decision struct {
	Redirect    string
	Status      int
	ContentType string
	Body        []byte
}

func (d *Decision) Serve(w http.ResponseWriter, r *http.Request) {
	if d.Redirect != "" {
		http.Redirect(w, r, d.Redirect, http.StatusFound)
		return
	}
	w.Header().Set("content-type", d.ContentType)
	w.WriteHeader(d.Status)
	_, _ = w.Write(d.Body)
}

type Dispatcher struct {
	chain     chain.Client
	walletURL string
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewDispatcher(c chain.Client, walletURL string, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{chain: c, walletURL: walletURL, metrics: m, log: log}
}

func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (*Decision, error) {
	if call.Deposit == nil {
		call.Deposit = new(big.Int)
	}
	if call.Gas == 0 {
		call.Gas = DefaultGas
	}
	log := d.log.With(zap.String("account_id", call.AccountID), zap.String("contract_id", call.ContractID), zap.String("method", call.MethodName))

	if call.PrivateKey != "" && call.Deposit.Sign() == 0 {
		dec, err := d.signLocally(ctx, log, call)
		if err != nil || dec != nil {
			return dec, err
		}
	}
	return d.WalletRedirect(call.pending())
}

// signLocally returns a nil decision when the session key cannot sign for
// the contract and the wallet has to be used instead.
func (d *Dispatcher) signLocally(ctx context.Context, log *zap.Logger, call Call) (*Decision, error) {
	key, err := nearkey.Parse(call.PrivateKey)
	if err != nil {
		log.Warn("ignoring unparseable session key", zap.Error(err))
		return nil, nil
	}
	ak, err := d.chain.ViewAccessKey(ctx, call.AccountID, key.PublicKey())
	if err != nil {
		if chain.IsKeyNotFound(err) {
			log.Debug("access key not found, using wallet")
			return nil, nil
		}
		return nil, err
	}
	if !ak.Permission.AllowsReceiver(call.ContractID) {
		log.Debug("access key not scoped to contract, using wallet")
		return nil, nil
	}

	log.Debug("signing locally")
	outcome, err := d.chain.SubmitFunctionCall(ctx, chain.FunctionCall{
		SignerID:   call.AccountID,
		Key:        key,
		ReceiverID: call.ContractID,
		MethodName: call.MethodName,
		Args:       call.Args,
		Gas:        call.Gas,
		Deposit:    call.Deposit,
	})
	if err != nil {
		return nil, err
	}
	d.metrics.WriteDispatch("local")

	if call.FromForm {
		return &Decision{Redirect: call.CallbackURL}, nil
	}
	if value, ok := outcome.SuccessBytes(); ok {
		return &Decision{Status: http.StatusOK, ContentType: "application/json", Body: value}, nil
	}
	body := []byte(outcome.Raw)
	if len(body) == 0 {
		if body, err = json.Marshal(outcome); err != nil {
			return nil, err
		}
	}
	return &Decision{Status: http.StatusConflict, ContentType: "application/json", Body: body}, nil
}

// WalletRedirect sends the browser to the wallet with p encoded as an
// unsigned transaction.
func (d *Dispatcher) WalletRedirect(p PendingTransaction) (*Decision, error) {
	if d.walletURL == "" {
		return nil, ErrNoWallet
	}
	u, err := wallet.SignTransactionsURL(d.walletURL, []chain.Transaction{p.Transaction()}, p.CallbackURL)
	if err != nil {
		return nil, err
	}
	d.metrics.WriteDispatch("wallet")
	d.log.Debug("redirecting to wallet", zap.String("signer_id", p.SignerID), zap.String("contract_id", p.ReceiverID))
	return &Decision{Redirect: u}, nil
}
