package chain

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/near/borsh-go"

	"github.com/accordsai/web4gateway/pkg/nearkey"
)

const actionFunctionCall borsh.Enum = 2

var ErrDepositRange = errors.New("chain: deposit out of u128 range")

// Transaction is a NEAR transaction carrying function call actions only.
type Transaction struct {
	SignerID   string
	PublicKey  nearkey.PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []FunctionCallAction
}

type FunctionCallAction struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *big.Int
}

type SignedTransaction struct {
	Transaction Transaction
	Signature   []byte
}

// Serialize returns the borsh encoding of t.
func (t Transaction) Serialize() ([]byte, error) {
	wt, err := t.wire()
	if err != nil {
		return nil, err
	}
	return borsh.Serialize(wt)
}

func (t Transaction) Hash() ([32]byte, error) {
	b, err := t.Serialize()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

func Sign(t Transaction, key *nearkey.KeyPair) (SignedTransaction, error) {
	h, err := t.Hash()
	if err != nil {
		return SignedTransaction{}, err
	}
	return SignedTransaction{Transaction: t, Signature: key.Sign(h[:])}, nil
}

func (s SignedTransaction) Serialize() ([]byte, error) {
	wt, err := s.Transaction.wire()
	if err != nil {
		return nil, err
	}
	sig := wireSignature{KeyType: nearkey.KeyTypeED25519}
	if len(s.Signature) != len(sig.Data) {
		return nil, fmt.Errorf("chain: signature is %d bytes, want %d", len(s.Signature), len(sig.Data))
	}
	copy(sig.Data[:], s.Signature)
	return borsh.Serialize(wireSignedTransaction{Transaction: wt, Signature: sig})
}

// Wire shapes follow nearcore's borsh schema field for field.

type wireTransaction struct {
	SignerID   string
	PublicKey  wirePublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []wireAction
}

type wirePublicKey struct {
	KeyType uint8
	Data    [32]byte
}

type wireSignature struct {
	KeyType uint8
	Data    [64]byte
}

// wireAction is the Action enum up to FunctionCall; the earlier variants are
// never selected.
type wireAction struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  struct{}
	DeployContract struct{ Code []byte }
	FunctionCall   wireFunctionCall
}

type wireFunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    big.Int
}

type wireSignedTransaction struct {
	Transaction wireTransaction
	Signature   wireSignature
}

func (t Transaction) wire() (wireTransaction, error) {
	wt := wireTransaction{
		SignerID:   t.SignerID,
		PublicKey:  wirePublicKey{KeyType: nearkey.KeyTypeED25519, Data: t.PublicKey.Data},
		Nonce:      t.Nonce,
		ReceiverID: t.ReceiverID,
		BlockHash:  t.BlockHash,
		Actions:    make([]wireAction, 0, len(t.Actions)),
	}
	for _, a := range t.Actions {
		fc := wireFunctionCall{MethodName: a.MethodName, Args: a.Args, Gas: a.Gas}
		if a.Deposit != nil {
			if a.Deposit.Sign() < 0 || a.Deposit.BitLen() > 128 {
				return wireTransaction{}, ErrDepositRange
			}
			fc.Deposit.Set(a.Deposit)
		}
		if fc.Args == nil {
			fc.Args = []byte{}
		}
		wt.Actions = append(wt.Actions, wireAction{Enum: actionFunctionCall, FunctionCall: fc})
	}
	return wt, nil
}
