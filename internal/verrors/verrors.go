// Package verrors defines the vault's error sum type. Every failure that
// can surface to a CLI caller or a sync peer carries a stable machine
// code, a human message, and structured context, instead of relying on
// ad-hoc error string matching.
package verrors

import "fmt"

// Code is a stable, documented vault error identifier.
type Code string

const (
	CodeHashMismatch          Code = "PROVARA_E_HASH_MISMATCH"
	CodeBrokenCausalChain     Code = "PROVARA_E_BROKEN_CAUSAL_CHAIN"
	CodeInvalidSignature      Code = "PROVARA_E_INVALID_SIGNATURE"
	CodeHashFormat            Code = "PROVARA_E_HASH_FORMAT"
	CodeKeyNotFound           Code = "PROVARA_E_KEY_NOT_FOUND"
	CodeUnknownKeyID          Code = "PROVARA_E_UNKNOWN_KEY_ID"
	CodeRequiredFieldMissing  Code = "PROVARA_E_REQUIRED_FIELD_MISSING"
	CodeVaultStructureInvalid Code = "PROVARA_E_VAULT_STRUCTURE_INVALID"
	CodeDuplicateEventID      Code = "PROVARA_E_DUPLICATE_EVENT_ID"
	CodeForkDetected          Code = "PROVARA_E_FORK_DETECTED"
	CodeNamespaceMismatch     Code = "PROVARA_E_NAMESPACE_MISMATCH"
	CodeSelfRevocation        Code = "PROVARA_E_SELF_REVOCATION"
	CodeVaultSealed           Code = "PROVARA_E_VAULT_SEALED"
	CodePathUnsafe            Code = "PROVARA_E_PATH_UNSAFE"
	CodeConfigInvalid         Code = "PROVARA_E_CONFIG_INVALID"
)

// docURLs maps each code to a stable documentation anchor. Unknown codes
// fall back to the index page rather than producing a broken link.
var docURLs = map[Code]string{
	CodeHashMismatch:          "https://docs.provara.dev/errors#hash-mismatch",
	CodeBrokenCausalChain:     "https://docs.provara.dev/errors#broken-causal-chain",
	CodeInvalidSignature:      "https://docs.provara.dev/errors#invalid-signature",
	CodeHashFormat:            "https://docs.provara.dev/errors#hash-format",
	CodeKeyNotFound:           "https://docs.provara.dev/errors#key-not-found",
	CodeUnknownKeyID:          "https://docs.provara.dev/errors#unknown-key-id",
	CodeRequiredFieldMissing:  "https://docs.provara.dev/errors#required-field-missing",
	CodeVaultStructureInvalid: "https://docs.provara.dev/errors#vault-structure-invalid",
	CodeDuplicateEventID:      "https://docs.provara.dev/errors#duplicate-event-id",
	CodeForkDetected:          "https://docs.provara.dev/errors#fork-detected",
	CodeNamespaceMismatch:     "https://docs.provara.dev/errors#namespace-mismatch",
	CodeSelfRevocation:        "https://docs.provara.dev/errors#self-revocation",
	CodeVaultSealed:           "https://docs.provara.dev/errors#vault-sealed",
	CodePathUnsafe:            "https://docs.provara.dev/errors#path-unsafe",
	CodeConfigInvalid:         "https://docs.provara.dev/errors#config-invalid",
}

// Error is the vault's single error type. Section holds the number of
// the vault-format section whose invariant was violated (e.g. "3",
// "4.J"); Context carries arbitrary structured detail (event ids,
// hashes, actor ids).
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Section string         `json:"section,omitempty"`
	DocURL  string         `json:"doc_url,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Section, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, DocURL: docURLs[code]}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an Error that records cause as its underlying error so
// errors.Is/errors.As still reach it.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

// WithContext returns a copy of e with key set in Context.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// WithSection returns a copy of e with Section set.
func (e *Error) WithSection(section string) *Error {
	cp := *e
	cp.Section = section
	return &cp
}

// Is allows errors.Is(err, verrors.New(CodeX, "")) to match on Code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// As reports whether err is (or wraps) a *Error, populating out.
func As(err error, out **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*out = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
