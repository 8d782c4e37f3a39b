// Package outcome maps a resolved session to the single caller-visible value
// and delivers it across the host-application boundary.
package outcome

import (
	"log/slog"

	"github.com/yourorg/checkout-session/internal/session"
)

// Outcome is the caller-visible final value of a session: a terminal result
// code passed through verbatim, or one of the two sentinels.
type Outcome string

const (
	PaymentCancelled Outcome = "PAYMENT_CANCELLED"
	PaymentError     Outcome = "PAYMENT_ERROR"
)

// FromResolution maps a terminal resolution to its caller-visible value.
func FromResolution(res session.Resolution) Outcome {
	switch res.Status {
	case session.ResolvedSuccess:
		return Outcome(res.ResultCode)
	case session.ResolvedCancelled:
		return PaymentCancelled
	default:
		return PaymentError
	}
}

// Reporter hands the outcome back to the host application and tears down any
// presented UI. Exactly-once invocation is guaranteed by the orchestrator's
// idempotent resolution, not re-checked here.
type Reporter struct {
	result  func(Outcome)
	dismiss func()
	logger  *slog.Logger
}

// NewReporter wires the boundary callback and the UI teardown hook. Either
// may be nil: a nil result callback downgrades delivery to logging only.
func NewReporter(result func(Outcome), dismiss func(), logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{result: result, dismiss: dismiss, logger: logger}
}

// Deliver maps the session's resolution and pushes it across the boundary.
// The presented UI is dismissed on every terminal path. A session that has
// not resolved is a programming error and is logged, not delivered.
func (r *Reporter) Deliver(s *session.Session) {
	res, ok := s.Resolution()
	if !ok {
		r.logger.Error("deliver_before_resolved", "session_id", s.ID, "state", s.State().String())
		return
	}

	out := FromResolution(res)
	if res.Err != nil {
		// The caller only sees the sentinel; keep the underlying fault
		// visible for operability.
		r.logger.Warn("session_fault",
			"session_id", s.ID,
			"outcome", string(out),
			"error", res.Err,
		)
	}

	if r.dismiss != nil {
		r.dismiss()
	}

	if r.result == nil {
		r.logger.Info("outcome_dropped_no_boundary", "session_id", s.ID, "outcome", string(out))
		return
	}
	r.result(out)
	r.logger.Info("outcome_delivered",
		"session_id", s.ID,
		"outcome", string(out),
		"rounds", s.Rounds(),
	)
}
