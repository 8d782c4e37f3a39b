// Package orchestrator drives a payment session from submission through any
// follow-up actions to its terminal outcome. It owns the single in-flight
// network call, classifies every response, and guarantees the session
// resolves exactly once no matter how many completion signals race.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/checkout-session/internal/interpret"
	"github.com/yourorg/checkout-session/internal/metrics"
	"github.com/yourorg/checkout-session/internal/outcome"
	"github.com/yourorg/checkout-session/internal/request"
	"github.com/yourorg/checkout-session/internal/session"
	"github.com/yourorg/checkout-session/internal/wire"
)

// InvalidStateError reports an orchestrator method invoked from a state that
// forbids it. It indicates a collaborator contract violation.
type InvalidStateError = session.StateError

// Gateway is the transport to the merchant backend.
type Gateway interface {
	SubmitPayment(ctx context.Context, req wire.PaymentRequest) ([]byte, error)
	SubmitDetails(ctx context.Context, req wire.DetailsSubmission) ([]byte, error)
}

// ActionHandler is the UI collaborator receiving follow-up actions. The
// action is handed over as decoded, byte-for-byte equal to the backend
// payload; the handler eventually answers through SubmitDetails, Cancel or
// Fail.
type ActionHandler interface {
	HandleAction(s *session.Session, action *wire.Action)
}

// Orchestrator coordinates one session per call chain. It holds no session
// state of its own, so a single value can serve any number of sessions.
type Orchestrator struct {
	gateway  Gateway
	actions  ActionHandler
	reporter *outcome.Reporter
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// New creates an Orchestrator. Gateway, action handler and reporter are
// mandatory; the metrics recorder and logger are optional.
func New(gw Gateway, actions ActionHandler, reporter *outcome.Reporter, recorder *metrics.Recorder, logger *slog.Logger) *Orchestrator {
	if gw == nil {
		panic("gateway cannot be nil")
	}
	if actions == nil {
		panic("action handler cannot be nil")
	}
	if reporter == nil {
		panic("reporter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gateway:  gw,
		actions:  actions,
		reporter: reporter,
		recorder: recorder,
		logger:   logger,
	}
}

// Start submits the session's payment method to the backend. The network
// call runs asynchronously; classification re-enters the session through its
// lock. Valid once, from Submitting.
func (o *Orchestrator) Start(ctx context.Context, s *session.Session) error {
	if err := s.BeginRound(session.Submitting); err != nil {
		return o.rejectCall(s, "start", err)
	}

	req := request.BuildSubmission(s)
	o.logger.Info("session_submitting",
		"session_id", s.ID,
		"reference", req.Payment.Reference,
		"merchant_account", s.Config.MerchantAccount,
	)
	o.dispatch(ctx, s, "submit", func(ctx context.Context) ([]byte, error) {
		return o.gateway.SubmitPayment(ctx, req)
	})
	return nil
}

// SubmitDetails forwards follow-up data collected by the UI collaborator.
// Valid only from AwaitingAction with no call in flight.
func (o *Orchestrator) SubmitDetails(ctx context.Context, s *session.Session, data wire.DetailsRequest) error {
	if err := s.BeginRound(session.AwaitingAction); err != nil {
		return o.rejectCall(s, "submit details", err)
	}

	sub, err := request.BuildDetails(s, data)
	if err != nil {
		s.FinishRound()
		o.resolve(s, session.Resolution{Status: session.ResolvedError, Err: err})
		return err
	}

	o.logger.Info("session_details_submitting", "session_id", s.ID, "round", s.Rounds()+1)
	o.dispatch(ctx, s, "details", func(ctx context.Context) ([]byte, error) {
		return o.gateway.SubmitDetails(ctx, sub)
	})
	return nil
}

// Cancel resolves the session as shopper-cancelled without a network call.
// A no-op once the session has resolved; the losing signal of a race with an
// in-flight response is dropped.
func (o *Orchestrator) Cancel(s *session.Session) {
	o.resolve(s, session.Resolution{Status: session.ResolvedCancelled})
}

// Fail resolves the session as errored, covering transport failures surfaced
// by the caller and opaque UI collaborator faults. A no-op once resolved.
func (o *Orchestrator) Fail(s *session.Session, err error) {
	o.resolve(s, session.Resolution{Status: session.ResolvedError, Err: err})
}

// rejectCall handles a method invoked from a forbidden state. The error is
// returned, never swallowed; a session that is idle and unresolved is also
// resolved as errored so a broken integration terminates instead of hanging.
func (o *Orchestrator) rejectCall(s *session.Session, op string, err error) error {
	o.logger.Error("invalid_session_call",
		"session_id", s.ID,
		"op", op,
		"state", s.State().String(),
		"error", err,
	)
	var stateErr *InvalidStateError
	if errors.As(err, &stateErr) && !stateErr.InFlight && stateErr.State != session.Resolved {
		o.resolve(s, session.Resolution{Status: session.ResolvedError, Err: err})
	}
	return err
}

func (o *Orchestrator) dispatch(ctx context.Context, s *session.Session, op string, send func(context.Context) ([]byte, error)) {
	go func() {
		tracer := otel.Tracer("orchestrator")
		ctx, span := tracer.Start(ctx, "session."+op)
		span.SetAttributes(attribute.String("session.id", s.ID))
		defer span.End()

		start := time.Now()
		raw, err := send(ctx)
		if o.recorder != nil {
			o.recorder.RoundCompleted(op, time.Since(start))
		}

		s.FinishRound()
		if err != nil {
			o.resolve(s, session.Resolution{Status: session.ResolvedError, Err: err})
			return
		}
		o.classify(s, raw)
	}()
}

func (o *Orchestrator) classify(s *session.Session, raw []byte) {
	resp, err := interpret.Interpret(raw)
	if err != nil {
		o.resolve(s, session.Resolution{Status: session.ResolvedError, Err: err})
		return
	}

	cls := interpret.Classify(resp)
	switch cls.Kind {
	case interpret.NotTerminal:
		if !s.AwaitAction() {
			// Lost the race against a cancellation or failure.
			return
		}
		o.logger.Info("session_action",
			"session_id", s.ID,
			"action_type", string(cls.Action.Type),
			"result_code", string(cls.ResultCode),
		)
		o.actions.HandleAction(s, cls.Action)
	case interpret.Success:
		o.resolve(s, session.Resolution{Status: session.ResolvedSuccess, ResultCode: cls.ResultCode})
	case interpret.Failure:
		o.resolve(s, session.Resolution{
			Status: session.ResolvedError,
			Err:    fmt.Errorf("backend declined with result code %s", cls.ResultCode),
		})
	default:
		o.resolve(s, session.Resolution{Status: session.ResolvedCancelled})
	}
}

// resolve assigns the terminal outcome; only the first writer reaches the
// reporter, so the outcome is delivered at most once per session.
func (o *Orchestrator) resolve(s *session.Session, res session.Resolution) {
	if !s.Resolve(res) {
		o.logger.Debug("late_resolution_dropped", "session_id", s.ID)
		return
	}
	if o.recorder != nil {
		o.recorder.SessionResolved(string(outcome.FromResolution(res)))
	}
	o.reporter.Deliver(s)
}
