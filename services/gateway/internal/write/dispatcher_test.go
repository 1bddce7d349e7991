package write

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/accordsai/web4gateway/pkg/nearkey"
	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
)

const testWallet = "https://wallet.testnet.near.org"

type fakeChain struct {
	accessKey    *chain.AccessKey
	accessKeyErr error
	outcome      *chain.Outcome
	submitted    []chain.FunctionCall
	lookups      int
}

func (f *fakeChain) ViewCall(ctx context.Context, contractID, methodName string, args any) (json.RawMessage, error) {
	return nil, errors.New("unexpected view call")
}

func (f *fakeChain) ViewAccessKey(ctx context.Context, accountID string, pk nearkey.PublicKey) (*chain.AccessKey, error) {
	f.lookups++
	return f.accessKey, f.accessKeyErr
}

func (f *fakeChain) SubmitFunctionCall(ctx context.Context, call chain.FunctionCall) (*chain.Outcome, error) {
	f.submitted = append(f.submitted, call)
	return f.outcome, nil
}

func scopedKey(receiver string) *chain.AccessKey {
	return &chain.AccessKey{Nonce: 7, Permission: chain.Permission{
		FunctionCall: &chain.FunctionCallPermission{ReceiverID: receiver},
	}}
}

func successOutcome(value string) *chain.Outcome {
	v := base64.StdEncoding.EncodeToString([]byte(value))
	return &chain.Outcome{Status: chain.OutcomeStatus{SuccessValue: &v}}
}

func newCall(t *testing.T) Call {
	t.Helper()
	kp, err := nearkey.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return Call{
		AccountID:   "alice.testnet",
		PrivateKey:  kp.String(),
		ContractID:  "app.testnet",
		MethodName:  "post",
		Args:        []byte(`{"text":"hi"}`),
		Gas:         DefaultGas,
		Deposit:     new(big.Int),
		CallbackURL: "https://app.testnet.page/",
	}
}

func TestDispatchScopedKeySubmitsLocally(t *testing.T) {
	fc := &fakeChain{accessKey: scopedKey("app.testnet"), outcome: successOutcome(`"ok"`)}
	d := NewDispatcher(fc, testWallet, nil, nil)

	dec, err := d.Dispatch(context.Background(), newCall(t))
	if err != nil {
		t.Fatal(err)
	}
	if dec.Redirect != "" {
		t.Fatalf("unexpected redirect %s", dec.Redirect)
	}
	if len(fc.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(fc.submitted))
	}
	sub := fc.submitted[0]
	if sub.SignerID != "alice.testnet" || sub.ReceiverID != "app.testnet" || sub.MethodName != "post" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if dec.Status != http.StatusOK || dec.ContentType != "application/json" || string(dec.Body) != `"ok"` {
		t.Fatalf("unexpected decision %+v", dec)
	}
}

func TestDispatchFormPostRedirectsToCallback(t *testing.T) {
	fc := &fakeChain{accessKey: scopedKey("app.testnet"), outcome: successOutcome(`""`)}
	d := NewDispatcher(fc, testWallet, nil, nil)
	call := newCall(t)
	call.FromForm = true

	dec, err := d.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Redirect != call.CallbackURL {
		t.Fatalf("redirect = %q", dec.Redirect)
	}
	if len(fc.submitted) != 1 {
		t.Fatal("expected local submission")
	}
}

func TestDispatchFailureRendersConflict(t *testing.T) {
	raw := json.RawMessage(`{"status":{"Failure":{"ActionError":{}}}}`)
	fc := &fakeChain{accessKey: scopedKey("app.testnet"), outcome: &chain.Outcome{
		Status: chain.OutcomeStatus{Failure: json.RawMessage(`{"ActionError":{}}`)},
		Raw:    raw,
	}}
	d := NewDispatcher(fc, testWallet, nil, nil)

	dec, err := d.Dispatch(context.Background(), newCall(t))
	if err != nil {
		t.Fatal(err)
	}
	if dec.Status != http.StatusConflict || string(dec.Body) != string(raw) {
		t.Fatalf("unexpected decision %+v", dec)
	}
}

func assertWalletRedirect(t *testing.T, dec *Decision, call Call) {
	t.Helper()
	if dec == nil || dec.Redirect == "" {
		t.Fatalf("expected wallet redirect, got %+v", dec)
	}
	u, err := url.Parse(dec.Redirect)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dec.Redirect, testWallet+"/sign?") {
		t.Fatalf("redirect = %s", dec.Redirect)
	}
	if u.Query().Get("callbackUrl") != call.CallbackURL {
		t.Fatalf("callbackUrl = %q", u.Query().Get("callbackUrl"))
	}
	want, err := call.pending().Transaction().Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("transactions") != base64.StdEncoding.EncodeToString(want) {
		t.Fatal("transaction payload mismatch")
	}
}

func TestDispatchDepositAlwaysUsesWallet(t *testing.T) {
	fc := &fakeChain{accessKey: scopedKey("app.testnet"), outcome: successOutcome(`1`)}
	d := NewDispatcher(fc, testWallet, nil, nil)
	call := newCall(t)
	call.Deposit = big.NewInt(1)

	dec, err := d.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatal(err)
	}
	assertWalletRedirect(t, dec, call)
	if fc.lookups != 0 || len(fc.submitted) != 0 {
		t.Fatal("deposit calls must not touch the session key")
	}
}

func TestDispatchWithoutKeyUsesWallet(t *testing.T) {
	fc := &fakeChain{}
	d := NewDispatcher(fc, testWallet, nil, nil)
	call := newCall(t)
	call.PrivateKey = ""

	dec, err := d.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatal(err)
	}
	assertWalletRedirect(t, dec, call)
}

func TestDispatchKeyNotFoundFallsThrough(t *testing.T) {
	fc := &fakeChain{accessKeyErr: &chain.Error{Kind: chain.KindAccessKeyNotFound, Message: "access key ed25519:x does not exist while viewing"}}
	d := NewDispatcher(fc, testWallet, nil, nil)
	call := newCall(t)

	dec, err := d.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatal(err)
	}
	assertWalletRedirect(t, dec, call)
}

func TestDispatchFullAccessKeyUsesWallet(t *testing.T) {
	fc := &fakeChain{accessKey: &chain.AccessKey{Permission: chain.Permission{FullAccess: true}}}
	d := NewDispatcher(fc, testWallet, nil, nil)
	call := newCall(t)

	dec, err := d.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatal(err)
	}
	assertWalletRedirect(t, dec, call)
	if len(fc.submitted) != 0 {
		t.Fatal("full access key must not be used silently")
	}
}

func TestDispatchKeyForOtherContractUsesWallet(t *testing.T) {
	fc := &fakeChain{accessKey: scopedKey("other.testnet")}
	d := NewDispatcher(fc, testWallet, nil, nil)

	dec, err := d.Dispatch(context.Background(), newCall(t))
	if err != nil {
		t.Fatal(err)
	}
	if dec.Redirect == "" || len(fc.submitted) != 0 {
		t.Fatalf("expected wallet redirect, got %+v", dec)
	}
}

func TestDispatchAccessKeyLookupErrorIsFatal(t *testing.T) {
	boom := &chain.Error{Kind: chain.KindUntyped, Message: "node unavailable"}
	fc := &fakeChain{accessKeyErr: boom}
	d := NewDispatcher(fc, testWallet, nil, nil)

	if _, err := d.Dispatch(context.Background(), newCall(t)); !errors.Is(err, boom) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}

func TestDispatchWithoutWalletURL(t *testing.T) {
	d := NewDispatcher(&fakeChain{}, "", nil, nil)
	call := newCall(t)
	call.PrivateKey = ""
	if _, err := d.Dispatch(context.Background(), call); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("expected ErrNoWallet, got %v", err)
	}
}

func TestDecisionServe(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	(&Decision{Redirect: "https://wallet.example/sign"}).Serve(rec, req)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "https://wallet.example/sign" {
		t.Fatalf("unexpected redirect response %d %v", rec.Code, rec.Header())
	}

	rec = httptest.NewRecorder()
	(&Decision{Status: http.StatusConflict, ContentType: "application/json", Body: []byte(`{}`)}).Serve(rec, req)
	if rec.Code != http.StatusConflict || rec.Body.String() != "{}" {
		t.Fatalf("unexpected rendered response %d %q", rec.Code, rec.Body.String())
	}
}
