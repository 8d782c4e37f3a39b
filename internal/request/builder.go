// Package request builds the outgoing backend payloads from session state.
package request

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/yourorg/checkout-session/internal/session"
	"github.com/yourorg/checkout-session/internal/wire"
)

// submissionChannel tags every submission with the originating platform.
const submissionChannel = "iOS"

// threeDSDefaults is attached to every submission so the backend runs 3-D
// Secure v2 and forces the 3-D Secure flow.
func threeDSDefaults() map[string]string {
	return map[string]string{
		"allow3DS2":     "true",
		"executeThreeD": "true",
	}
}

// BuildSubmission constructs the initial payment request for a session.
//
// The configured amount string is parsed as an integer and falls back to 0
// when unparseable; an empty currency passes through as-is. Both are expected
// to be validated upstream (see the policy package). A missing reference is
// replaced with a freshly generated one.
func BuildSubmission(s *session.Session) wire.PaymentRequest {
	cfg := s.Config

	amount, err := strconv.Atoi(cfg.Amount)
	if err != nil {
		slog.Warn("amount_parse_fallback",
			"session_id", s.ID,
			"amount", cfg.Amount,
		)
		amount = 0
	}

	reference := cfg.Reference
	if reference == "" {
		reference = uuid.NewString()
	}

	return wire.PaymentRequest{
		Payment: wire.Payment{
			PaymentMethod:  s.PaymentMethod,
			LineItems:      []wire.LineItem{cfg.LineItem},
			Channel:        submissionChannel,
			AdditionalData: threeDSDefaults(),
			Amount: wire.Amount{
				Currency: cfg.Currency,
				Value:    amount,
			},
			Reference:       reference,
			ReturnURL:       cfg.ReturnURL,
			StorePayment:    s.StorePayment,
			ShopperRef:      cfg.ShopperReference,
			CountryCode:     cfg.CountryCode(),
			MerchantAccount: cfg.MerchantAccount,
		},
		AdditionalData: additionalData(cfg),
	}
}

// BuildDetails wraps the follow-up payload produced by the UI collaborator
// together with the session's original additional data.
func BuildDetails(s *session.Session, data wire.DetailsRequest) (wire.DetailsSubmission, error) {
	if len(data.Details) == 0 {
		data.Details = json.RawMessage("{}")
	}
	if !json.Valid(data.Details) {
		return wire.DetailsSubmission{}, &wire.EncodingError{Reason: "action details payload is not valid JSON"}
	}
	return wire.DetailsSubmission{
		PaymentsDetails: data,
		AdditionalData:  additionalData(s.Config),
	}, nil
}

func additionalData(cfg session.Config) map[string]string {
	if cfg.AdditionalData == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(cfg.AdditionalData))
	for k, v := range cfg.AdditionalData {
		out[k] = v
	}
	return out
}
