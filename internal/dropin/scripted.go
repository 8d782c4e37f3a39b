package dropin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/yourorg/checkout-session/internal/orchestrator"
	"github.com/yourorg/checkout-session/internal/session"
	"github.com/yourorg/checkout-session/internal/wire"
)

// Scripted is a headless DropIn used by tests and the demo server. It
// confirms a canned payment method and answers each action type from a
// canned details table.
type Scripted struct {
	// Confirmation is returned by Present when the script does not cancel.
	Confirmation Confirmation
	// CancelOnPresent makes Present report a shopper dismissal.
	CancelOnPresent bool
	// Details maps an action type to the follow-up data the "shopper"
	// produces for it. Actions without an entry fail the session.
	Details map[wire.ActionType]wire.DetailsRequest

	orch      *orchestrator.Orchestrator
	dismissed atomic.Int32
}

// Bind attaches the orchestrator the script answers actions through. Must be
// called before any action arrives.
func (d *Scripted) Bind(o *orchestrator.Orchestrator) {
	d.orch = o
}

// Present returns the scripted confirmation, or ErrCancelled when the script
// simulates a dismissal. An empty catalog is an internal failure.
func (d *Scripted) Present(_ context.Context, catalog json.RawMessage) (Confirmation, error) {
	if d.CancelOnPresent {
		return Confirmation{}, ErrCancelled
	}
	if len(catalog) == 0 || !json.Valid(catalog) {
		return Confirmation{}, fmt.Errorf("drop-in: payment methods catalog is not valid JSON")
	}
	return d.Confirmation, nil
}

// HandleAction answers the action from the details table. The backend's
// paymentData is echoed back when the script does not override it.
func (d *Scripted) HandleAction(s *session.Session, action *wire.Action) {
	data, ok := d.Details[action.Type]
	if !ok {
		d.orch.Fail(s, fmt.Errorf("drop-in: no handler for action type %q", action.Type))
		return
	}
	if data.PaymentData == "" {
		data.PaymentData = action.PaymentData
	}
	// SubmitDetails reports contract violations itself; nothing to add here.
	_ = d.orch.SubmitDetails(context.Background(), s, data)
}

// Dismiss records the teardown; Dismissals exposes the count for tests.
func (d *Scripted) Dismiss() {
	d.dismissed.Add(1)
}

// Dismissals returns how many times the surface was torn down.
func (d *Scripted) Dismissals() int {
	return int(d.dismissed.Load())
}
