// Package chain talks to a NEAR node: read-only contract calls, access key
// lookups and signed function call submission.
package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/accordsai/web4gateway/pkg/nearkey"
)

// Client is implemented by RPCClient and FastClient.
type Client interface {
	ViewCall(ctx context.Context, contractID, methodName string, args any) (json.RawMessage, error)
	ViewAccessKey(ctx context.Context, accountID string, publicKey nearkey.PublicKey) (*AccessKey, error)
	SubmitFunctionCall(ctx context.Context, call FunctionCall) (*Outcome, error)
}

type FunctionCall struct {
	SignerID   string
	Key        *nearkey.KeyPair
	ReceiverID string
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *big.Int
}

type AccessKey struct {
	Nonce      uint64     `json:"nonce"`
	Permission Permission `json:"permission"`
}

type FunctionCallPermission struct {
	Allowance   *string  `json:"allowance"`
	ReceiverID  string   `json:"receiver_id"`
	MethodNames []string `json:"method_names"`
}

// Permission is either the string "FullAccess" or a FunctionCall object.
type Permission struct {
	FullAccess   bool
	FunctionCall *FunctionCallPermission
}

func (p *Permission) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s != "FullAccess" {
			return fmt.Errorf("chain: unknown permission %q", s)
		}
		*p = Permission{FullAccess: true}
		return nil
	}
	var obj struct {
		FunctionCall *FunctionCallPermission `json:"FunctionCall"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*p = Permission{FunctionCall: obj.FunctionCall}
	return nil
}

func (p Permission) MarshalJSON() ([]byte, error) {
	if p.FullAccess {
		return json.Marshal("FullAccess")
	}
	return json.Marshal(map[string]any{"FunctionCall": p.FunctionCall})
}

// AllowsReceiver reports whether the key is scoped to receiverID. Full access
// keys never qualify for silent signing.
func (p Permission) AllowsReceiver(receiverID string) bool {
	return p.FunctionCall != nil && p.FunctionCall.ReceiverID == receiverID
}

// Outcome is the final execution outcome of a submitted transaction. Raw holds
// the node's full reply.
type Outcome struct {
	Status OutcomeStatus   `json:"status"`
	Raw    json.RawMessage `json:"-"`
}

type OutcomeStatus struct {
	SuccessValue *string         `json:"SuccessValue,omitempty"`
	Failure      json.RawMessage `json:"Failure,omitempty"`
}

// SuccessBytes decodes the base64 success value; ok is false when the call
// did not succeed.
func (o *Outcome) SuccessBytes() ([]byte, bool) {
	if o == nil || o.Status.SuccessValue == nil {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(*o.Status.SuccessValue)
	if err != nil {
		return nil, false
	}
	return b, true
}
