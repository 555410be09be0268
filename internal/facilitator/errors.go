package facilitator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorKind enumerates every way a verify or settle call can fail. Business
// kinds are expected rejections and become structured "invalid" responses at
// the boundary; the rest are infrastructure faults and escalate as errors.
type ErrorKind string

const (
	KindSchemeMismatch     ErrorKind = "scheme_mismatch"
	KindNetworkMismatch    ErrorKind = "network_mismatch"
	KindUnsupportedNetwork ErrorKind = "unsupported_network"
	KindReceiverMismatch   ErrorKind = "receiver_mismatch"
	KindInvalidSignature   ErrorKind = "invalid_signature"
	KindInvalidTiming      ErrorKind = "invalid_timing"
	KindInsufficientValue  ErrorKind = "insufficient_value"
	KindInsufficientFunds  ErrorKind = "insufficient_funds"
	KindValueAboveCap      ErrorKind = "value_above_settlement_cap"

	KindContractCall   ErrorKind = "contract_call"
	KindInvalidAddress ErrorKind = "invalid_address"
	KindDecoding       ErrorKind = "decoding_error"
	KindClockError     ErrorKind = "clock_error"
)

// Error is the engine's failure value. Business-rule kinds always carry the
// best-known payer so callers can attribute the attempt even on rejection.
type Error struct {
	Kind   ErrorKind
	Payer  *common.Address
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Business reports whether this is an expected payment rejection rather than
// an infrastructure fault. Decoding failures count as business: a client that
// sends a malformed payload gets a structured rejection with the parse detail,
// not a transport error.
func (e *Error) Business() bool {
	switch e.Kind {
	case KindContractCall, KindInvalidAddress, KindClockError:
		return false
	}
	return true
}

// Reason is the invalidReason string surfaced on the wire.
func (e *Error) Reason() string {
	if e.Kind == KindDecoding && e.Detail != "" {
		return e.Detail
	}
	return string(e.Kind)
}

// PayerHex returns the best-known payer in hex form, or "" when unknown.
func (e *Error) PayerHex() string {
	if e.Payer == nil {
		return ""
	}
	return e.Payer.Hex()
}

func reject(kind ErrorKind, payer common.Address) *Error {
	p := payer
	return &Error{Kind: kind, Payer: &p}
}

func contractCall(err error) *Error {
	return &Error{Kind: KindContractCall, Err: err}
}

func decoding(detail string) *Error {
	return &Error{Kind: KindDecoding, Detail: detail}
}
