// Package nearkey encodes and decodes NEAR ed25519 keys in their
// "ed25519:<base58>" text form.
package nearkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"strings"

	"github.com/mr-tron/base58"
)

const curvePrefix = "ed25519:"

// KeyTypeED25519 is the borsh tag of an ed25519 key or signature.
const KeyTypeED25519 byte = 0

var (
	ErrUnsupportedCurve = errors.New("nearkey: unsupported curve")
	ErrInvalidEncoding  = errors.New("nearkey: invalid encoding")
	ErrInvalidLength    = errors.New("nearkey: invalid key length")
)

type PublicKey struct {
	Data [ed25519.PublicKeySize]byte
}

func (p PublicKey) String() string {
	return curvePrefix + base58.Encode(p.Data[:])
}

func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := decode(s)
	if err != nil {
		return PublicKey{}, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, ErrInvalidLength
	}
	var out PublicKey
	copy(out.Data[:], raw)
	return out, nil
}

type KeyPair struct {
	priv ed25519.PrivateKey
}

func Generate() (*KeyPair, error) {
	return generate(rand.Reader)
}

func generate(r io.Reader) (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	return &KeyPair{priv: priv}, nil
}

// Parse accepts the 64-byte secret key form written by wallets and also a bare
// 32-byte seed.
func Parse(s string) (*KeyPair, error) {
	raw, err := decode(s)
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, ErrInvalidEncoding
		}
		return &KeyPair{priv: priv}, nil
	case ed25519.SeedSize:
		return &KeyPair{priv: ed25519.NewKeyFromSeed(raw)}, nil
	default:
		return nil, ErrInvalidLength
	}
}

func (k *KeyPair) String() string {
	return curvePrefix + base58.Encode(k.priv)
}

func (k *KeyPair) PublicKey() PublicKey {
	var out PublicKey
	copy(out.Data[:], k.priv.Public().(ed25519.PublicKey))
	return out
}

func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

func Verify(pub PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub.Data[:]), msg, sig)
}

func decode(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		if !strings.EqualFold(s[:i+1], curvePrefix) {
			return nil, ErrUnsupportedCurve
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, ErrInvalidEncoding
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	return raw, nil
}
