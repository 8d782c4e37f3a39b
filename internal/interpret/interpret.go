// Package interpret parses backend responses and classifies them for the
// session orchestrator.
package interpret

import (
	"encoding/json"

	"github.com/yourorg/checkout-session/internal/wire"
)

// Kind buckets a classified response.
type Kind int

const (
	// NotTerminal means the backend requires a follow-up action.
	NotTerminal Kind = iota
	// Success is a terminal authorization-adjacent code, reported verbatim.
	Success
	// Failure is a terminal Error or Refused.
	Failure
	// Cancelled covers Cancelled and every other non-matched terminal code.
	Cancelled
)

// Classification is the orchestrator-facing view of a backend response.
type Classification struct {
	Kind       Kind
	ResultCode wire.ResultCode
	Action     *wire.Action // set when Kind is NotTerminal
}

// Interpret parses raw response bytes into the typed envelope. Any malformed
// payload, including an unrecognized resultCode, yields a ParseError.
func Interpret(raw []byte) (wire.PaymentResponse, error) {
	var resp wire.PaymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return wire.PaymentResponse{}, &wire.ParseError{Reason: "invalid envelope", Err: err}
	}
	return resp, nil
}

// Classify buckets a parsed response. An action always means the flow
// continues, regardless of the result code next to it. Authorised, Received
// and Pending are all success-adjacent and delivered verbatim; Error and
// Refused fail; everything else collapses to cancelled.
func Classify(resp wire.PaymentResponse) Classification {
	if resp.Action != nil {
		return Classification{Kind: NotTerminal, ResultCode: resp.ResultCode, Action: resp.Action}
	}
	switch resp.ResultCode {
	case wire.ResultAuthorised, wire.ResultReceived, wire.ResultPending:
		return Classification{Kind: Success, ResultCode: resp.ResultCode}
	case wire.ResultError, wire.ResultRefused:
		return Classification{Kind: Failure, ResultCode: resp.ResultCode}
	default:
		return Classification{Kind: Cancelled, ResultCode: resp.ResultCode}
	}
}
