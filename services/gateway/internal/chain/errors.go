package chain

import (
	"errors"
	"regexp"
	"strings"
)

// Kind is the stable classification of an upstream chain failure.
type Kind int

const (
	KindUntyped Kind = iota
	KindAccountNotFound
	KindCodeNotFound
	KindMethodNotFound
	KindAccessKeyNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAccountNotFound:
		return "account_not_found"
	case KindCodeNotFound:
		return "code_not_found"
	case KindMethodNotFound:
		return "method_not_found"
	case KindAccessKeyNotFound:
		return "access_key_not_found"
	default:
		return "untyped"
	}
}

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return "chain: " + e.Message
}

func newError(cause, message string) *Error {
	return &Error{Kind: classify(cause, message), Message: message}
}

// KindOf reports the kind of a chain error; ok is false for errors that did
// not come from the chain (transport failures, cancelled contexts).
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return KindUntyped, false
}

// IsContractMissing reports whether the target account has no usable web4
// code: either no code at all or no such method.
func IsContractMissing(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindCodeNotFound || k == KindMethodNotFound)
}

// IsKeyNotFound reports whether an access key lookup found neither the key nor
// the account.
func IsKeyNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && (k == KindAccessKeyNotFound || k == KindAccountNotFound)
}

var (
	invalidAccountRE = regexp.MustCompile(`Account ID .* is invalid`)
	methodMissingRE  = regexp.MustCompile(`method \S+ not found`)
	accessKeyRE      = regexp.MustCompile(`access key \S+ does not exist while viewing`)
	accountRE        = regexp.MustCompile(`account \S+ does not exist while viewing`)
)

// classify maps the structured cause name of an RPC error, or failing that
// the raw message text of either backend, onto a Kind.
func classify(cause, message string) Kind {
	switch cause {
	case "UNKNOWN_ACCOUNT":
		return KindAccountNotFound
	case "NO_CONTRACT_CODE":
		return KindCodeNotFound
	case "UNKNOWN_ACCESS_KEY":
		return KindAccessKeyNotFound
	}
	switch {
	case strings.Contains(message, "CompilationError(CodeDoesNotExist"),
		strings.HasPrefix(message, "codeNotFound"),
		// RPC reports this for accounts without contract code.
		invalidAccountRE.MatchString(message):
		return KindCodeNotFound
	case strings.Contains(message, "MethodResolveError(MethodNotFound"),
		methodMissingRE.MatchString(message):
		return KindMethodNotFound
	case accessKeyRE.MatchString(message):
		return KindAccessKeyNotFound
	case strings.HasPrefix(message, "accountNotFound"),
		accountRE.MatchString(message):
		return KindAccountNotFound
	}
	return KindUntyped
}
