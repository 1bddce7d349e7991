package write

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
)

// DefaultGas is the gas attached when the caller does not pass web4_gas.
const DefaultGas uint64 = 300_000_000_000_000

const controlPrefix = "web4_"

var ErrBadRequest = errors.New("write: bad request")

// PendingTransaction is a write call not yet signed by anyone.
type PendingTransaction struct {
	SignerID    string
	ReceiverID  string
	MethodName  string
	Args        []byte
	Gas         uint64
	Deposit     *big.Int
	CallbackURL string
}

// Transaction carries a zero public key, nonce and block hash; the wallet
// fills them in before signing.
func (p PendingTransaction) Transaction() chain.Transaction {
	return chain.Transaction{
		SignerID:   p.SignerID,
		ReceiverID: p.ReceiverID,
		Actions: []chain.FunctionCallAction{{
			MethodName: p.MethodName,
			Args:       p.Args,
			Gas:        p.Gas,
			Deposit:    p.Deposit,
		}},
	}
}

// Body is what a POST body contributes to a write call. CallbackURL is the raw
// web4_callback_url value, possibly relative.
type Body struct {
	Args        []byte
	Gas         uint64
	Deposit     *big.Int
	CallbackURL string
	FromForm    bool
}

// ParseBody assembles call arguments. Form posts become a JSON object with
// web4_ control fields removed; any other body is passed through verbatim.
func ParseBody(contentType string, raw []byte) (Body, error) {
	out := Body{Args: raw, Gas: DefaultGas, Deposit: new(big.Int)}
	media, _, _ := mime.ParseMediaType(contentType)
	if media != "application/x-www-form-urlencoded" {
		return out, nil
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return Body{}, fmt.Errorf("%w: form: %v", ErrBadRequest, err)
	}
	args, err := formArgs(values)
	if err != nil {
		return Body{}, err
	}
	out.Args, err = json.Marshal(args)
	if err != nil {
		return Body{}, err
	}
	out.FromForm = true
	if out.Gas, err = parseGas(values.Get("web4_gas")); err != nil {
		return Body{}, err
	}
	if out.Deposit, err = parseDeposit(values.Get("web4_deposit")); err != nil {
		return Body{}, err
	}
	out.CallbackURL = values.Get("web4_callback_url")
	return out, nil
}

// ParseSignQuery reads the web4_* query parameters of the sign page.
func ParseSignQuery(q url.Values) (PendingTransaction, error) {
	p := PendingTransaction{
		ReceiverID:  q.Get("web4_contract_id"),
		MethodName:  q.Get("web4_method_name"),
		CallbackURL: q.Get("web4_callback_url"),
	}
	if p.ReceiverID == "" || p.MethodName == "" {
		return PendingTransaction{}, fmt.Errorf("%w: web4_contract_id and web4_method_name are required", ErrBadRequest)
	}
	args, err := base64.StdEncoding.DecodeString(q.Get("web4_args"))
	if err != nil {
		return PendingTransaction{}, fmt.Errorf("%w: web4_args: %v", ErrBadRequest, err)
	}
	p.Args = args
	if p.Gas, err = parseGas(q.Get("web4_gas")); err != nil {
		return PendingTransaction{}, err
	}
	if p.Deposit, err = parseDeposit(q.Get("web4_deposit")); err != nil {
		return PendingTransaction{}, err
	}
	return p, nil
}

// SignQuery is the inverse of ParseSignQuery.
func SignQuery(p PendingTransaction) url.Values {
	q := url.Values{}
	q.Set("web4_contract_id", p.ReceiverID)
	q.Set("web4_method_name", p.MethodName)
	q.Set("web4_args", base64.StdEncoding.EncodeToString(p.Args))
	q.Set("web4_gas", strconv.FormatUint(p.Gas, 10))
	deposit := "0"
	if p.Deposit != nil {
		deposit = p.Deposit.String()
	}
	q.Set("web4_deposit", deposit)
	q.Set("web4_callback_url", p.CallbackURL)
	return q
}

func parseGas(s string) (uint64, error) {
	if s = strings.TrimSpace(s); s == "" {
		return DefaultGas, nil
	}
	gas, err := strconv.ParseUint(s, 10, 64)
	if err != nil || gas == 0 {
		return 0, fmt.Errorf("%w: invalid web4_gas %q", ErrBadRequest, s)
	}
	return gas, nil
}

func parseDeposit(s string) (*big.Int, error) {
	if s = strings.TrimSpace(s); s == "" {
		return new(big.Int), nil
	}
	d, ok := new(big.Int).SetString(s, 10)
	if !ok || d.Sign() < 0 || d.BitLen() > 128 {
		return nil, fmt.Errorf("%w: invalid web4_deposit %q", ErrBadRequest, s)
	}
	return d, nil
}

// formArgs nests dotted and bracketed keys ("a.b=1" and "a[b]=1" both become
// {"a":{"b":"1"}}). Repeated keys and keys ending in "[]" become lists.
func formArgs(values url.Values) (map[string]any, error) {
	out := map[string]any{}
	for key, vals := range values {
		if strings.HasPrefix(key, controlPrefix) {
			continue
		}
		path, asList, err := keyPath(key)
		if err != nil {
			return nil, fmt.Errorf("%w: form field %q: %v", ErrBadRequest, key, err)
		}
		var v any = vals[0]
		if asList || len(vals) > 1 {
			list := make([]any, len(vals))
			for i, s := range vals {
				list[i] = s
			}
			v = list
		}
		if err := setPath(out, path, v); err != nil {
			return nil, fmt.Errorf("%w: form field %q: %v", ErrBadRequest, key, err)
		}
	}
	return out, nil
}

// keyPath splits a form key into its segments. A trailing "[]" marks a list.
func keyPath(key string) ([]string, bool, error) {
	asList := strings.HasSuffix(key, "[]")
	key = strings.TrimSuffix(key, "[]")

	var path []string
	var seg strings.Builder
	inBracket, closed := false, false
	for _, c := range key {
		if closed && c != '[' && c != '.' {
			return nil, false, errors.New("unexpected text after ]")
		}
		closed = false
		switch {
		case c == '[' && !inBracket:
			path = append(path, seg.String())
			seg.Reset()
			inBracket = true
		case c == ']' && inBracket:
			inBracket, closed = false, true
		case c == '.' && !inBracket:
			path = append(path, seg.String())
			seg.Reset()
		default:
			seg.WriteRune(c)
		}
	}
	if inBracket {
		return nil, false, errors.New("unclosed [")
	}
	path = append(path, seg.String())
	for _, p := range path {
		if p == "" {
			return nil, false, errors.New("empty key segment")
		}
	}
	return path, asList, nil
}

func setPath(m map[string]any, path []string, v any) error {
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg]
		if !ok {
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return errors.New("conflicts with a scalar field")
		}
		m = child
	}
	last := path[len(path)-1]
	if _, exists := m[last]; exists {
		return errors.New("conflicts with a nested field")
	}
	m[last] = v
	return nil
}
