package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/accordsai/web4gateway/pkg/nearkey"
)

// RPCClient speaks NEAR JSON-RPC to a single node URL.
type RPCClient struct {
	NodeURL   string
	AuthToken string
	HTTP      *http.Client
}

func NewRPCClient(nodeURL, authToken string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		NodeURL:   strings.TrimRight(strings.TrimSpace(nodeURL), "/"),
		AuthToken: authToken,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Name  string `json:"name"`
	Cause struct {
		Name string `json:"name"`
	} `json:"cause"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *rpcError) text() string {
	var data string
	if err := json.Unmarshal(e.Data, &data); err == nil && data != "" {
		return data
	}
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return string(e.Data)
	}
	if e.Cause.Name != "" {
		return e.Cause.Name + ": " + e.Message
	}
	return e.Message
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// queryError is the in-band error form some nodes return inside a successful
// query result.
type queryError struct {
	Error string `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: "dontcare", Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.NodeURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	if c.AuthToken != "" {
		req.Header.Set("Authorization", c.AuthToken)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("rpc returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("rpc: decode %s response: %w", method, err)
	}
	if out.Error != nil {
		return nil, newError(out.Error.Cause.Name, out.Error.text())
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rpc returned %d", resp.StatusCode)
	}
	var qe queryError
	if err := json.Unmarshal(out.Result, &qe); err == nil && qe.Error != "" {
		return nil, newError("", qe.Error)
	}
	return out.Result, nil
}

func (c *RPCClient) ViewCall(ctx context.Context, contractID, methodName string, args any) (json.RawMessage, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, "query", map[string]any{
		"request_type": "call_function",
		"finality":     "optimistic",
		"account_id":   contractID,
		"method_name":  methodName,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	})
	if err != nil {
		return nil, err
	}
	var res struct {
		Result []int `json:"result"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("rpc: decode call_function result: %w", err)
	}
	b := make([]byte, len(res.Result))
	for i, v := range res.Result {
		b[i] = byte(v)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("rpc: %s.%s returned non-JSON result", contractID, methodName)
	}
	return json.RawMessage(b), nil
}

func (c *RPCClient) ViewAccessKey(ctx context.Context, accountID string, publicKey nearkey.PublicKey) (*AccessKey, error) {
	raw, err := c.call(ctx, "query", map[string]any{
		"request_type": "view_access_key",
		"finality":     "optimistic",
		"account_id":   accountID,
		"public_key":   publicKey.String(),
	})
	if err != nil {
		return nil, err
	}
	var ak AccessKey
	if err := json.Unmarshal(raw, &ak); err != nil {
		return nil, fmt.Errorf("rpc: decode access key: %w", err)
	}
	return &ak, nil
}

func (c *RPCClient) latestBlockHash(ctx context.Context) ([32]byte, error) {
	var out [32]byte
	raw, err := c.call(ctx, "block", map[string]any{"finality": "final"})
	if err != nil {
		return out, err
	}
	var res struct {
		Header struct {
			Hash string `json:"hash"`
		} `json:"header"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return out, fmt.Errorf("rpc: decode block: %w", err)
	}
	h, err := base58.Decode(res.Header.Hash)
	if err != nil || len(h) != len(out) {
		return out, fmt.Errorf("rpc: invalid block hash %q", res.Header.Hash)
	}
	copy(out[:], h)
	return out, nil
}

// SubmitFunctionCall signs call with its key against the key's current nonce
// and the latest final block, then waits for the execution outcome.
func (c *RPCClient) SubmitFunctionCall(ctx context.Context, call FunctionCall) (*Outcome, error) {
	if call.Key == nil {
		return nil, fmt.Errorf("chain: function call without signing key")
	}
	pub := call.Key.PublicKey()
	ak, err := c.ViewAccessKey(ctx, call.SignerID, pub)
	if err != nil {
		return nil, err
	}
	blockHash, err := c.latestBlockHash(ctx)
	if err != nil {
		return nil, err
	}
	tx := Transaction{
		SignerID:   call.SignerID,
		PublicKey:  pub,
		Nonce:      ak.Nonce + 1,
		ReceiverID: call.ReceiverID,
		BlockHash:  blockHash,
		Actions: []FunctionCallAction{{
			MethodName: call.MethodName,
			Args:       call.Args,
			Gas:        call.Gas,
			Deposit:    call.Deposit,
		}},
	}
	signed, err := Sign(tx, call.Key)
	if err != nil {
		return nil, err
	}
	encoded, err := signed.Serialize()
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, "broadcast_tx_commit", []string{base64.StdEncoding.EncodeToString(encoded)})
	if err != nil {
		return nil, err
	}
	return parseOutcome(raw)
}

func parseOutcome(raw json.RawMessage) (*Outcome, error) {
	var res struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("rpc: decode outcome: %w", err)
	}
	out := &Outcome{Raw: raw}
	// Pending states come back as bare strings and carry neither value.
	_ = json.Unmarshal(res.Status, &out.Status)
	return out, nil
}
