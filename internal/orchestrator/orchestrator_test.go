package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/checkout-session/internal/outcome"
	"github.com/yourorg/checkout-session/internal/session"
	"github.com/yourorg/checkout-session/internal/wire"
)

const resolveTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway scripts gateway responses. Responses are consumed in order
// across both endpoints.
type fakeGateway struct {
	mu        sync.Mutex
	responses []gatewayResponse
	payments  int
	details   []wire.DetailsSubmission
	block     chan struct{} // when set, calls wait here before responding
}

type gatewayResponse struct {
	body []byte
	err  error
}

func (g *fakeGateway) next() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.responses) == 0 {
		return nil, errors.New("fake gateway: no scripted response left")
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp.body, resp.err
}

func (g *fakeGateway) SubmitPayment(ctx context.Context, req wire.PaymentRequest) ([]byte, error) {
	g.mu.Lock()
	g.payments++
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	return g.next()
}

func (g *fakeGateway) SubmitDetails(ctx context.Context, req wire.DetailsSubmission) ([]byte, error) {
	g.mu.Lock()
	g.details = append(g.details, req)
	g.mu.Unlock()
	return g.next()
}

func (g *fakeGateway) detailCalls() []wire.DetailsSubmission {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]wire.DetailsSubmission(nil), g.details...)
}

// funcHandler adapts a closure to ActionHandler.
type funcHandler func(s *session.Session, action *wire.Action)

func (f funcHandler) HandleAction(s *session.Session, action *wire.Action) { f(s, action) }

// mockHandler is a testify mock for flows that must not receive actions.
type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) HandleAction(s *session.Session, action *wire.Action) {
	m.Called(s, action)
}

func newTestSession() *session.Session {
	cfg := session.Config{
		MerchantAccount: "TestMerchant",
		Currency:        "EUR",
		Amount:          "1299",
		ReturnURL:       "app://return",
	}
	return session.New(cfg, json.RawMessage(`{"type":"scheme"}`), false)
}

// outcomeSink collects delivered outcomes and counts dismissals.
type outcomeSink struct {
	mu        sync.Mutex
	outcomes  []outcome.Outcome
	dismissed int
}

func (o *outcomeSink) reporter() *outcome.Reporter {
	return outcome.NewReporter(func(out outcome.Outcome) {
		o.mu.Lock()
		o.outcomes = append(o.outcomes, out)
		o.mu.Unlock()
	}, func() {
		o.mu.Lock()
		o.dismissed++
		o.mu.Unlock()
	}, discardLogger())
}

func (o *outcomeSink) delivered() []outcome.Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]outcome.Outcome(nil), o.outcomes...)
}

func (o *outcomeSink) dismissals() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dismissed
}

func waitResolved(t *testing.T, s *session.Session) session.Resolution {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(resolveTimeout):
		t.Fatal("session did not resolve in time")
	}
	res, ok := s.Resolution()
	require.True(t, ok)
	return res
}

func TestStart_AuthorisedResolvesSuccess(t *testing.T) {
	gw := &fakeGateway{responses: []gatewayResponse{
		{body: []byte(`{"resultCode":"Authorised"}`)},
	}}
	handler := &mockHandler{}
	sink := &outcomeSink{}
	o := New(gw, handler, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedSuccess, res.Status)
	assert.Equal(t, wire.ResultAuthorised, res.ResultCode)
	assert.Equal(t, []outcome.Outcome{"Authorised"}, sink.delivered())
	assert.Equal(t, 1, sink.dismissals())
	assert.Equal(t, 1, s.Rounds())
	handler.AssertNotCalled(t, "HandleAction", mock.Anything, mock.Anything)
}

func TestStart_RefusedResolvesError(t *testing.T) {
	gw := &fakeGateway{responses: []gatewayResponse{
		{body: []byte(`{"resultCode":"Refused"}`)},
	}}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedError, res.Status)
	assert.Contains(t, res.Err.Error(), "Refused")
	assert.Equal(t, []outcome.Outcome{outcome.PaymentError}, sink.delivered())
}

func TestStart_CancelledResultCodeResolvesCancelled(t *testing.T) {
	gw := &fakeGateway{responses: []gatewayResponse{
		{body: []byte(`{"resultCode":"Cancelled"}`)},
	}}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedCancelled, res.Status)
	assert.Equal(t, []outcome.Outcome{outcome.PaymentCancelled}, sink.delivered())
}

func TestStart_MalformedResponseResolvesError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"garbage body", `<html>oops</html>`},
		{"unknown result code", `{"resultCode":"Bogus"}`},
		{"missing result code", `{"pspReference":"1"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{responses: []gatewayResponse{{body: []byte(tc.body)}}}
			sink := &outcomeSink{}
			o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
			s := newTestSession()

			require.NoError(t, o.Start(context.Background(), s))

			res := waitResolved(t, s)
			assert.Equal(t, session.ResolvedError, res.Status)
			var parseErr *wire.ParseError
			assert.ErrorAs(t, res.Err, &parseErr)
			assert.Equal(t, []outcome.Outcome{outcome.PaymentError}, sink.delivered())
		})
	}
}

func TestStart_TransportFailureResolvesError(t *testing.T) {
	gw := &fakeGateway{responses: []gatewayResponse{
		{err: errors.New("connection refused")},
	}}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedError, res.Status)
	assert.Equal(t, []outcome.Outcome{outcome.PaymentError}, sink.delivered())
	assert.Equal(t, 1, sink.dismissals())
}

func TestRedirectFlow_ActionForwardedAndDetailsResolve(t *testing.T) {
	actionJSON := `{"type":"redirect","url":"https://issuer.example/3ds","method":"GET","paymentData":"pd-1"}`
	gw := &fakeGateway{responses: []gatewayResponse{
		{body: []byte(`{"resultCode":"RedirectShopper","action":` + actionJSON + `}`)},
		{body: []byte(`{"resultCode":"Authorised"}`)},
	}}

	sink := &outcomeSink{}
	var o *Orchestrator
	handler := funcHandler(func(s *session.Session, action *wire.Action) {
		// The decoded action carries the backend payload byte-for-byte.
		assert.JSONEq(t, actionJSON, string(action.Raw))
		assert.Equal(t, wire.ActionRedirect, action.Type)
		assert.Equal(t, session.AwaitingAction, s.State())

		err := o.SubmitDetails(context.Background(), s, wire.DetailsRequest{
			PaymentData: action.PaymentData,
			Details:     json.RawMessage(`{"redirectResult":"ok"}`),
		})
		assert.NoError(t, err)
	})
	o = New(gw, handler, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedSuccess, res.Status)
	assert.Equal(t, []outcome.Outcome{"Authorised"}, sink.delivered())
	assert.Equal(t, 2, s.Rounds())

	details := gw.detailCalls()
	require.Len(t, details, 1)
	assert.Equal(t, "pd-1", details[0].PaymentsDetails.PaymentData)
	assert.JSONEq(t, `{"redirectResult":"ok"}`, string(details[0].PaymentsDetails.Details))
}

func TestChainedActions_SelfLoopThroughAwaitingAction(t *testing.T) {
	gw := &fakeGateway{responses: []gatewayResponse{
		{body: []byte(`{"resultCode":"IdentifyShopper","action":{"type":"threeDS2","subtype":"fingerprint","token":"t1","paymentData":"pd-1"}}`)},
		{body: []byte(`{"resultCode":"ChallengeShopper","action":{"type":"threeDS2","subtype":"challenge","token":"t2","paymentData":"pd-2"}}`)},
		{body: []byte(`{"resultCode":"Authorised"}`)},
	}}

	sink := &outcomeSink{}
	var o *Orchestrator
	handler := funcHandler(func(s *session.Session, action *wire.Action) {
		_ = o.SubmitDetails(context.Background(), s, wire.DetailsRequest{
			PaymentData: action.PaymentData,
			Details:     json.RawMessage(`{"threeDSResult":"x"}`),
		})
	})
	o = New(gw, handler, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedSuccess, res.Status)
	assert.Equal(t, 3, s.Rounds())

	details := gw.detailCalls()
	require.Len(t, details, 2)
	assert.Equal(t, "pd-1", details[0].PaymentsDetails.PaymentData)
	assert.Equal(t, "pd-2", details[1].PaymentsDetails.PaymentData)
}

func TestCancel_BeforeResponseWinsRace(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{
		responses: []gatewayResponse{{body: []byte(`{"resultCode":"Authorised"}`)}},
		block:     block,
	}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	// Shopper cancels while the submission is still in flight.
	o.Cancel(s)
	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedCancelled, res.Status)

	// Release the response; its classification must be dropped.
	close(block)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, []outcome.Outcome{outcome.PaymentCancelled}, sink.delivered())
	assert.Equal(t, 1, sink.dismissals())
}

func TestCancel_AfterResolveIsDropped(t *testing.T) {
	gw := &fakeGateway{responses: []gatewayResponse{
		{body: []byte(`{"resultCode":"Authorised"}`)},
	}}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))
	waitResolved(t, s)

	o.Cancel(s)
	o.Fail(s, errors.New("late fault"))

	assert.Equal(t, []outcome.Outcome{"Authorised"}, sink.delivered())
	assert.Equal(t, 1, sink.dismissals())
}

func TestConcurrentCompletionSignals_ExactlyOneDelivery(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{
		responses: []gatewayResponse{{body: []byte(`{"resultCode":"Authorised"}`)}},
		block:     block,
	}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				o.Cancel(s)
			} else {
				o.Fail(s, errors.New("storm"))
			}
		}(i)
	}
	close(block)
	wg.Wait()
	waitResolved(t, s)
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, sink.delivered(), 1)
	assert.Equal(t, 1, sink.dismissals())
}

func TestSubmitDetails_WhileInFlightRejectedWithoutSecondCall(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{
		responses: []gatewayResponse{{body: []byte(`{"resultCode":"Authorised"}`)}},
		block:     block,
	}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	err := o.SubmitDetails(context.Background(), s, wire.DetailsRequest{})
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.True(t, stateErr.InFlight)

	// The in-flight submission still resolves the session normally.
	close(block)
	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedSuccess, res.Status)
	assert.Empty(t, gw.detailCalls())
	assert.Equal(t, []outcome.Outcome{"Authorised"}, sink.delivered())
}

func TestSubmitDetails_BeforeStartResolvesError(t *testing.T) {
	gw := &fakeGateway{}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	err := o.SubmitDetails(context.Background(), s, wire.DetailsRequest{})
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	// An idle session with a broken integration terminates instead of hanging.
	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedError, res.Status)
	assert.Equal(t, []outcome.Outcome{outcome.PaymentError}, sink.delivered())
	assert.Empty(t, gw.detailCalls())
	assert.Zero(t, gw.payments)
}

func TestStart_SecondCallRejected(t *testing.T) {
	block := make(chan struct{})
	gw := &fakeGateway{
		responses: []gatewayResponse{{body: []byte(`{"resultCode":"Authorised"}`)}},
		block:     block,
	}
	sink := &outcomeSink{}
	o := New(gw, &mockHandler{}, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	err := o.Start(context.Background(), s)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)

	close(block)
	waitResolved(t, s)
	assert.Equal(t, 1, gw.payments)
	assert.Len(t, sink.delivered(), 1)
}

func TestSubmitDetails_InvalidPayloadResolvesError(t *testing.T) {
	gw := &fakeGateway{responses: []gatewayResponse{
		{body: []byte(`{"resultCode":"RedirectShopper","action":{"type":"redirect","url":"https://x","paymentData":"pd"}}`)},
	}}
	sink := &outcomeSink{}
	var o *Orchestrator
	handler := funcHandler(func(s *session.Session, action *wire.Action) {
		err := o.SubmitDetails(context.Background(), s, wire.DetailsRequest{
			Details: json.RawMessage(`{broken`),
		})
		assert.Error(t, err)
	})
	o = New(gw, handler, sink.reporter(), nil, discardLogger())
	s := newTestSession()

	require.NoError(t, o.Start(context.Background(), s))

	res := waitResolved(t, s)
	assert.Equal(t, session.ResolvedError, res.Status)
	var encErr *wire.EncodingError
	assert.ErrorAs(t, res.Err, &encErr)
	assert.Equal(t, []outcome.Outcome{outcome.PaymentError}, sink.delivered())
	assert.Empty(t, gw.detailCalls())
}

func TestNew_PanicsOnMissingCollaborators(t *testing.T) {
	gw := &fakeGateway{}
	sink := &outcomeSink{}
	handler := &mockHandler{}

	assert.Panics(t, func() { New(nil, handler, sink.reporter(), nil, nil) })
	assert.Panics(t, func() { New(gw, nil, sink.reporter(), nil, nil) })
	assert.Panics(t, func() { New(gw, handler, nil, nil, nil) })
}
