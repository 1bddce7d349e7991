package chain

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/accordsai/web4gateway/pkg/nearkey"
)

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func newRPCServer(t *testing.T, handle func(call rpcCall) string) (*httptest.Server, *[]rpcCall) {
	t.Helper()
	var calls []rpcCall
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var c rpcCall
		if err := json.Unmarshal(b, &c); err != nil {
			t.Errorf("bad rpc body: %v", err)
		}
		calls = append(calls, c)
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(handle(c)))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func bytesAsInts(b []byte) string {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	out, _ := json.Marshal(ints)
	return string(out)
}

func TestRPCViewCall(t *testing.T) {
	ts, calls := newRPCServer(t, func(c rpcCall) string {
		return `{"jsonrpc":"2.0","id":"dontcare","result":{"result":` + bytesAsInts([]byte(`{"status":200}`)) + `,"logs":[]}}`
	})
	c := NewRPCClient(ts.URL, "", 5*time.Second)
	out, err := c.ViewCall(context.Background(), "test.near", "web4_get", map[string]any{"request": map[string]any{"path": "/"}})
	if err != nil {
		t.Fatalf("ViewCall: %v", err)
	}
	if string(out) != `{"status":200}` {
		t.Fatalf("unexpected result %s", out)
	}
	var params map[string]string
	if err := json.Unmarshal((*calls)[0].Params, &params); err != nil {
		t.Fatalf("params: %v", err)
	}
	if params["request_type"] != "call_function" || params["account_id"] != "test.near" || params["method_name"] != "web4_get" {
		t.Fatalf("unexpected params %v", params)
	}
	args, _ := base64.StdEncoding.DecodeString(params["args_base64"])
	if string(args) != `{"request":{"path":"/"}}` {
		t.Fatalf("unexpected args %s", args)
	}
}

func TestRPCViewCallErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Kind
	}{
		{"in-band", `{"result":{"error":"wasm execution failed with error: FunctionCallError(CompilationError(CodeDoesNotExist { account_id: \"x\" }))","logs":[]}}`, KindCodeNotFound},
		{"structured", `{"error":{"name":"HANDLER_ERROR","cause":{"name":"UNKNOWN_ACCOUNT"},"code":-32000,"message":"Server error","data":"account x does not exist while viewing"}}`, KindAccountNotFound},
		{"untyped", `{"error":{"name":"HANDLER_ERROR","cause":{"name":"CONTRACT_EXECUTION_ERROR"},"code":-32000,"message":"Server error","data":"Smart contract panicked"}}`, KindUntyped},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, _ := newRPCServer(t, func(rpcCall) string { return tc.body })
			_, err := NewRPCClient(ts.URL, "", time.Second).ViewCall(context.Background(), "x", "web4_get", nil)
			k, ok := KindOf(err)
			if !ok || k != tc.want {
				t.Fatalf("expected %s chain error, got %v", tc.want, err)
			}
		})
	}
}

func TestRPCSendsAuthToken(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"result":{"result":[110,117,108,108]}}`))
	}))
	defer ts.Close()
	out, err := NewRPCClient(ts.URL, "Bearer tok", time.Second).ViewCall(context.Background(), "x", "m", nil)
	if err != nil {
		t.Fatalf("ViewCall: %v", err)
	}
	if got != "Bearer tok" || string(out) != "null" {
		t.Fatalf("unexpected auth %q result %s", got, out)
	}
}

func TestRPCViewAccessKeyPermission(t *testing.T) {
	ts, _ := newRPCServer(t, func(rpcCall) string {
		return `{"result":{"nonce":41,"permission":{"FunctionCall":{"allowance":null,"receiver_id":"web4.near","method_names":[]}}}}`
	})
	key, _ := nearkey.Generate()
	ak, err := NewRPCClient(ts.URL, "", time.Second).ViewAccessKey(context.Background(), "alice.near", key.PublicKey())
	if err != nil {
		t.Fatalf("ViewAccessKey: %v", err)
	}
	if ak.Nonce != 41 || !ak.Permission.AllowsReceiver("web4.near") || ak.Permission.AllowsReceiver("other.near") {
		t.Fatalf("unexpected access key %+v", ak)
	}

	full, _ := newRPCServer(t, func(rpcCall) string { return `{"result":{"nonce":1,"permission":"FullAccess"}}` })
	ak, err = NewRPCClient(full.URL, "", time.Second).ViewAccessKey(context.Background(), "alice.near", key.PublicKey())
	if err != nil {
		t.Fatalf("ViewAccessKey: %v", err)
	}
	if !ak.Permission.FullAccess || ak.Permission.AllowsReceiver("web4.near") {
		t.Fatalf("full access keys must not qualify as scoped: %+v", ak.Permission)
	}
}

func TestRPCSubmitFunctionCall(t *testing.T) {
	key, _ := nearkey.Generate()
	var blockHash [32]byte
	blockHash[0] = 9
	var broadcast []byte
	ts, calls := newRPCServer(t, func(c rpcCall) string {
		switch c.Method {
		case "query":
			return `{"result":{"nonce":10,"permission":{"FunctionCall":{"receiver_id":"web4.near","method_names":[]}}}}`
		case "block":
			return `{"result":{"header":{"hash":"` + base58.Encode(blockHash[:]) + `"}}}`
		case "broadcast_tx_commit":
			var params []string
			_ = json.Unmarshal(c.Params, &params)
			broadcast, _ = base64.StdEncoding.DecodeString(params[0])
			return `{"result":{"status":{"SuccessValue":"` + base64.StdEncoding.EncodeToString([]byte(`"ok"`)) + `"},"transaction":{}}}`
		}
		return `{"error":{"message":"unexpected"}}`
	})
	out, err := NewRPCClient(ts.URL, "", time.Second).SubmitFunctionCall(context.Background(), FunctionCall{
		SignerID: "alice.near", Key: key, ReceiverID: "web4.near", MethodName: "like",
		Args: []byte(`{}`), Gas: 30, Deposit: big.NewInt(0),
	})
	if err != nil {
		t.Fatalf("SubmitFunctionCall: %v", err)
	}
	if len(*calls) != 3 {
		t.Fatalf("expected 3 rpc calls, got %d", len(*calls))
	}
	val, ok := out.SuccessBytes()
	if !ok || string(val) != `"ok"` {
		t.Fatalf("unexpected outcome %+v", out)
	}

	want := Transaction{SignerID: "alice.near", PublicKey: key.PublicKey(), Nonce: 11, ReceiverID: "web4.near", BlockHash: blockHash,
		Actions: []FunctionCallAction{{MethodName: "like", Args: []byte(`{}`), Gas: 30, Deposit: big.NewInt(0)}}}
	body, _ := want.Serialize()
	if string(broadcast[:len(body)]) != string(body) {
		t.Fatal("broadcast transaction does not match expected encoding")
	}
	h := sha256.Sum256(body)
	if !nearkey.Verify(key.PublicKey(), h[:], broadcast[len(body)+1:]) {
		t.Fatal("broadcast signature does not verify")
	}
}

func TestParseOutcomeFailure(t *testing.T) {
	out, err := parseOutcome(json.RawMessage(`{"status":{"Failure":{"ActionError":{}}}}`))
	if err != nil {
		t.Fatalf("parseOutcome: %v", err)
	}
	if _, ok := out.SuccessBytes(); ok {
		t.Fatal("failure outcome reported success")
	}
	if len(out.Status.Failure) == 0 || string(out.Raw) == "" {
		t.Fatalf("expected failure details to be kept: %+v", out)
	}
}
