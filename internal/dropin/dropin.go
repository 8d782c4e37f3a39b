// Package dropin defines the UI collaborator contract: the component that
// renders payment-method selection and any follow-up action's UI. The
// orchestrator never depends on a concrete implementation.
package dropin

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yourorg/checkout-session/internal/orchestrator"
)

// ErrCancelled signals that the shopper dismissed the payment sheet.
var ErrCancelled = errors.New("drop-in dismissed by shopper")

// Confirmation is the shopper's selection: an opaque backend-defined
// payment-method payload plus the store-payment flag.
type Confirmation struct {
	PaymentMethod json.RawMessage
	StorePayment  bool
}

// DropIn is the full collaborator contract. Present blocks until the shopper
// confirms a payment method, returns ErrCancelled on dismissal, or any other
// error for an internal failure. Actions arrive through HandleAction and are
// answered via the orchestrator received in Bind. Dismiss tears the surface
// down; it is invoked on every terminal outcome.
type DropIn interface {
	orchestrator.ActionHandler

	Bind(o *orchestrator.Orchestrator)
	Present(ctx context.Context, catalog json.RawMessage) (Confirmation, error)
	Dismiss()
}
