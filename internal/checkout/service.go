// Package checkout is the inbound boundary: it opens a payment session for a
// host application and wires the drop-in, gateway, orchestrator and reporter
// together for its lifetime.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/checkout-session/internal/dropin"
	"github.com/yourorg/checkout-session/internal/gateway"
	"github.com/yourorg/checkout-session/internal/metrics"
	"github.com/yourorg/checkout-session/internal/orchestrator"
	"github.com/yourorg/checkout-session/internal/outcome"
	"github.com/yourorg/checkout-session/internal/policy"
	"github.com/yourorg/checkout-session/internal/reporting"
	"github.com/yourorg/checkout-session/internal/session"
)

// PolicyRejectionError reports a configuration the session-start policy
// refused before anything was submitted.
type PolicyRejectionError struct {
	Rule string
}

func (e *PolicyRejectionError) Error() string {
	return fmt.Sprintf("session config rejected by policy rule %q", e.Rule)
}

// Service opens payment sessions. One Service handles any number of
// sequential or concurrent sessions; each gets its own session value,
// gateway and orchestrator.
type Service struct {
	enforcer   *policy.Enforcer
	recorder   *metrics.Recorder
	store      *reporting.Store
	httpClient *http.Client
	logger     *slog.Logger
}

// NewService creates a Service. The enforcer is mandatory; recorder, store,
// http client and logger are optional.
func NewService(enforcer *policy.Enforcer, recorder *metrics.Recorder, store *reporting.Store, httpClient *http.Client, logger *slog.Logger) *Service {
	if enforcer == nil {
		panic("policy enforcer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		enforcer:   enforcer,
		recorder:   recorder,
		store:      store,
		httpClient: httpClient,
		logger:     logger,
	}
}

// OpenSession validates the config, presents the drop-in and, once the
// shopper confirms a payment method, drives the session to its terminal
// outcome. The outcome arrives on the returned channel exactly once. A
// policy rejection or a nil drop-in fails synchronously: no session exists
// yet and nothing is delivered.
func (svc *Service) OpenSession(ctx context.Context, cfg session.Config, catalog json.RawMessage, ui dropin.DropIn) (<-chan outcome.Outcome, error) {
	if ui == nil {
		return nil, errors.New("checkout: drop-in cannot be nil")
	}

	decision, err := svc.enforcer.Evaluate(cfg)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		svc.logger.Warn("session_rejected_by_policy",
			"rule", decision.Rule,
			"merchant_account", cfg.MerchantAccount,
		)
		return nil, &PolicyRejectionError{Rule: decision.Rule}
	}

	results := make(chan outcome.Outcome, 1)

	confirmation, err := ui.Present(ctx, catalog)
	if err != nil {
		out := outcome.PaymentError
		if errors.Is(err, dropin.ErrCancelled) {
			out = outcome.PaymentCancelled
		} else {
			svc.logger.Warn("dropin_failed_before_submission", "error", err)
		}
		ui.Dismiss()
		if svc.recorder != nil {
			svc.recorder.SessionResolved(string(out))
		}
		svc.record(uuid.NewString(), cfg, 0, out)
		results <- out
		return results, nil
	}

	s := session.New(cfg, confirmation.PaymentMethod, confirmation.StorePayment)
	svc.logger.Info("session_opened",
		"session_id", s.ID,
		"environment", string(cfg.Environment),
		"currency", cfg.Currency,
	)

	reporter := outcome.NewReporter(func(out outcome.Outcome) {
		svc.record(s.ID, cfg, s.Rounds(), out)
		results <- out
	}, ui.Dismiss, svc.logger)

	gw := gateway.New(cfg.BaseURL, svc.httpClient)
	orch := orchestrator.New(gw, ui, reporter, svc.recorder, svc.logger)
	ui.Bind(orch)

	if err := orch.Start(ctx, s); err != nil {
		return nil, err
	}
	return results, nil
}

func (svc *Service) record(sessionID string, cfg session.Config, rounds int, out outcome.Outcome) {
	if svc.store == nil {
		return
	}
	amount, err := strconv.Atoi(cfg.Amount)
	if err != nil {
		amount = 0
	}
	svc.store.Append(reporting.SessionLog{
		Timestamp:   time.Now(),
		SessionID:   sessionID,
		Outcome:     string(out),
		Rounds:      rounds,
		AmountMinor: amount,
		Currency:    cfg.Currency,
	})
}
