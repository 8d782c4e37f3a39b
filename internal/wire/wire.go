// Package wire holds the typed payloads exchanged with the merchant backend:
// the payment submission, the follow-up details submission, and the response
// envelope returned by both endpoints.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Amount is a monetary value in minor units.
type Amount struct {
	Currency string `json:"currency"`
	Value    int    `json:"value"`
}

// LineItem describes the single item attached to every submission.
type LineItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Payment is the inner body of a submission request.
type Payment struct {
	PaymentMethod   json.RawMessage   `json:"paymentMethod"`
	LineItems       []LineItem        `json:"lineItems"`
	Channel         string            `json:"channel"`
	AdditionalData  map[string]string `json:"additionalData"`
	Amount          Amount            `json:"amount"`
	Reference       string            `json:"reference"`
	ReturnURL       string            `json:"returnUrl"`
	StorePayment    bool              `json:"storePaymentMethod"`
	ShopperRef      string            `json:"shopperReference,omitempty"`
	CountryCode     string            `json:"countryCode,omitempty"`
	MerchantAccount string            `json:"merchantAccount,omitempty"`
}

// PaymentRequest is the envelope posted to {baseUrl}payments.
type PaymentRequest struct {
	Payment        Payment           `json:"payment"`
	AdditionalData map[string]string `json:"additionalData"`
}

// DetailsRequest carries the follow-up data produced by an action.
type DetailsRequest struct {
	PaymentData string          `json:"paymentData"`
	Details     json.RawMessage `json:"details"`
}

// DetailsSubmission is the envelope posted to {baseUrl}payments/details.
type DetailsSubmission struct {
	PaymentsDetails DetailsRequest    `json:"paymentsDetails"`
	AdditionalData  map[string]string `json:"additionalData"`
}

// ResultCode is the backend's enumerated status for a payment attempt.
type ResultCode string

const (
	ResultAuthorised       ResultCode = "Authorised"
	ResultRefused          ResultCode = "Refused"
	ResultPending          ResultCode = "Pending"
	ResultCancelled        ResultCode = "Cancelled"
	ResultError            ResultCode = "Error"
	ResultReceived         ResultCode = "Received"
	ResultRedirectShopper  ResultCode = "RedirectShopper"
	ResultIdentifyShopper  ResultCode = "IdentifyShopper"
	ResultChallengeShopper ResultCode = "ChallengeShopper"
	ResultPresentToShopper ResultCode = "PresentToShopper"
)

var resultCodes = map[ResultCode]struct{}{
	ResultAuthorised:       {},
	ResultRefused:          {},
	ResultPending:          {},
	ResultCancelled:        {},
	ResultError:            {},
	ResultReceived:         {},
	ResultRedirectShopper:  {},
	ResultIdentifyShopper:  {},
	ResultChallengeShopper: {},
	ResultPresentToShopper: {},
}

// Valid reports whether the code is one of the enumerated wire values.
func (rc ResultCode) Valid() bool {
	_, ok := resultCodes[rc]
	return ok
}

// UnmarshalJSON rejects values outside the enumerated set rather than
// defaulting silently.
func (rc *ResultCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("resultCode: %w", err)
	}
	code := ResultCode(s)
	if !code.Valid() {
		return fmt.Errorf("resultCode: unrecognized value %q", s)
	}
	*rc = code
	return nil
}

// PaymentResponse is the envelope returned by both backend endpoints. Action
// is present only while the flow is not yet terminal.
type PaymentResponse struct {
	ResultCode ResultCode
	Action     *Action
}

// UnmarshalJSON decodes the envelope. The resultCode field is mandatory and
// both fields are decoded independently: a parseable action does not rescue a
// missing or unrecognized resultCode.
func (r *PaymentResponse) UnmarshalJSON(data []byte) error {
	var envelope struct {
		ResultCode json.RawMessage `json:"resultCode"`
		Action     json.RawMessage `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	var codeErr error
	if len(envelope.ResultCode) == 0 {
		codeErr = errors.New("missing resultCode")
	} else {
		codeErr = json.Unmarshal(envelope.ResultCode, &r.ResultCode)
	}

	var actionErr error
	if len(envelope.Action) > 0 && string(envelope.Action) != "null" {
		action := &Action{}
		if actionErr = json.Unmarshal(envelope.Action, action); actionErr == nil {
			r.Action = action
		}
	}

	if codeErr != nil {
		return codeErr
	}
	return actionErr
}

// ParseError reports a malformed or unrecognized backend payload.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse backend response: %s: %v", e.Reason, e.Err)
	}
	return "parse backend response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// EncodingError reports an outgoing request that cannot be serialized.
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode request: %s: %v", e.Reason, e.Err)
	}
	return "encode request: " + e.Reason
}

func (e *EncodingError) Unwrap() error { return e.Err }
