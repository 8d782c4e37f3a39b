// Package breaker guards the merchant-backend endpoints against calling into
// a backend that is persistently failing.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit state for a single endpoint.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

const (
	defaultFailureThreshold  = 5
	defaultOpenTimeout       = 30 * time.Second
	defaultHalfOpenSuccesses = 2
)

type endpointState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time
}

// Breaker tracks per-endpoint health. After enough consecutive failures the
// circuit opens and calls are rejected until the open timeout elapses; a few
// successes in the half-open probe window close it again.
type Breaker struct {
	mu                sync.Mutex
	endpoints         map[string]*endpointState
	failureThreshold  int
	openTimeout       time.Duration
	halfOpenSuccesses int
	now               func() time.Time
}

// New creates a Breaker with default thresholds.
func New() *Breaker {
	return NewWithSettings(defaultFailureThreshold, defaultOpenTimeout, defaultHalfOpenSuccesses)
}

// NewWithSettings creates a Breaker with custom thresholds.
func NewWithSettings(failureThreshold int, openTimeout time.Duration, halfOpenSuccesses int) *Breaker {
	return &Breaker{
		endpoints:         make(map[string]*endpointState),
		failureThreshold:  failureThreshold,
		openTimeout:       openTimeout,
		halfOpenSuccesses: halfOpenSuccesses,
		now:               time.Now,
	}
}

func (b *Breaker) endpoint(name string) *endpointState {
	es, ok := b.endpoints[name]
	if !ok {
		es = &endpointState{state: Closed}
		b.endpoints[name] = es
	}
	return es
}

// Allow reports whether a call to the endpoint may proceed. An expired open
// circuit transitions to half-open and lets the probe through.
func (b *Breaker) Allow(endpoint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.endpoint(endpoint)
	switch es.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if b.now().After(es.openUntil) {
			es.state = HalfOpen
			es.consecutiveSuccesses = 0
			return true
		}
		return false
	default:
		es.state = Closed
		return true
	}
}

// RecordFailure counts a failed call. The circuit opens once the threshold is
// reached, and re-opens immediately on a half-open probe failure.
func (b *Breaker) RecordFailure(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.endpoint(endpoint)
	switch es.state {
	case Closed:
		es.consecutiveFailures++
		if es.consecutiveFailures >= b.failureThreshold {
			es.state = Open
			es.openUntil = b.now().Add(b.openTimeout)
		}
	case HalfOpen:
		es.state = Open
		es.openUntil = b.now().Add(b.openTimeout)
		es.consecutiveFailures = 0
		es.consecutiveSuccesses = 0
	case Open:
	}
}

// RecordSuccess counts a successful call.
func (b *Breaker) RecordSuccess(endpoint string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	es := b.endpoint(endpoint)
	switch es.state {
	case Closed:
		es.consecutiveFailures = 0
	case HalfOpen:
		es.consecutiveSuccesses++
		if es.consecutiveSuccesses >= b.halfOpenSuccesses {
			es.state = Closed
			es.consecutiveFailures = 0
			es.consecutiveSuccesses = 0
		}
	case Open:
	}
}

// CurrentState returns the endpoint's circuit state without transitioning it.
func (b *Breaker) CurrentState(endpoint string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	es, ok := b.endpoints[endpoint]
	if !ok {
		return Closed
	}
	return es.state
}
