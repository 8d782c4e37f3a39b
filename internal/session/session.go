// Package session holds the per-attempt payment session: the immutable
// configuration snapshot, the monotonic state machine, and the
// single-assignment resolution cell.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yourorg/checkout-session/internal/wire"
)

// Environment selects the backend environment the merchant targets.
type Environment string

const (
	EnvTest          Environment = "TEST"
	EnvLiveUS        Environment = "LIVE_US"
	EnvLiveAustralia Environment = "LIVE_AUSTRALIA"
	EnvLiveEurope    Environment = "LIVE_EUROPE"
)

// ParseEnvironment maps a raw value to an Environment, defaulting to TEST for
// anything unrecognized.
func ParseEnvironment(raw string) Environment {
	switch Environment(raw) {
	case EnvLiveUS, EnvLiveAustralia, EnvLiveEurope:
		return Environment(raw)
	default:
		return EnvTest
	}
}

// Config is the option set supplied by the host application when a session is
// opened. It is captured once per session and never mutated afterwards.
type Config struct {
	BaseURL            string
	MerchantAccount    string
	ClientKey          string
	Currency           string
	Amount             string
	LineItem           wire.LineItem
	Environment        Environment
	Reference          string
	ReturnURL          string
	ShopperReference   string
	Locale             string
	AdditionalData     map[string]string
	ApplePayMerchantID string
}

// CountryCode derives the shopper country from the locale's last underscore
// segment, e.g. "de_DE" yields "DE". Defaults to "DE".
func (c Config) CountryCode() string {
	parts := strings.Split(c.Locale, "_")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return "DE"
}

// State is the session lifecycle phase. Transitions are monotonic: a session
// never moves backward and never leaves Resolved.
type State int

const (
	Submitting State = iota
	AwaitingAction
	Resolved
)

func (s State) String() string {
	switch s {
	case Submitting:
		return "submitting"
	case AwaitingAction:
		return "awaiting_action"
	case Resolved:
		return "resolved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ResolutionStatus buckets the terminal outcome of a session.
type ResolutionStatus int

const (
	// ResolvedSuccess carries the backend result code verbatim.
	ResolvedSuccess ResolutionStatus = iota
	// ResolvedCancelled covers shopper-driven termination.
	ResolvedCancelled
	// ResolvedError covers transport, encoding, parse and collaborator faults.
	ResolvedError
)

// Resolution is the terminal outcome of a session, set exactly once.
type Resolution struct {
	Status     ResolutionStatus
	ResultCode wire.ResultCode // set when Status is ResolvedSuccess
	Err        error           // set when Status is ResolvedError, for logging only
}

// Session is one end-to-end attempt to authorize a single payment. It owns
// its request and response payloads; collaborators receive copies or
// read-only views and never mutate session state themselves.
type Session struct {
	ID            string
	Config        Config
	PaymentMethod json.RawMessage
	StorePayment  bool

	mu         sync.Mutex
	state      State
	inFlight   bool
	rounds     int
	resolution Resolution
	done       chan struct{}
}

// New creates a session for a confirmed payment method. The session starts in
// Submitting: the first network round is expected immediately.
func New(cfg Config, paymentMethod json.RawMessage, storePayment bool) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Config:        cfg,
		PaymentMethod: append(json.RawMessage(nil), paymentMethod...),
		StorePayment:  storePayment,
		state:         Submitting,
		done:          make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Rounds returns how many network rounds have been classified so far.
func (s *Session) Rounds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rounds
}

// BeginRound marks a network call in flight. It fails unless the session is
// in one of the allowed states with no other call outstanding, which is how
// the strict submission → details → details ordering is enforced.
func (s *Session) BeginRound(allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Resolved {
		return &StateError{Op: "begin round", State: Resolved}
	}
	if s.inFlight {
		return &StateError{Op: "begin round", State: s.state, InFlight: true}
	}
	for _, a := range allowed {
		if s.state == a {
			s.inFlight = true
			return nil
		}
	}
	return &StateError{Op: "begin round", State: s.state}
}

// FinishRound records that the in-flight call's response (or failure) has
// been classified.
func (s *Session) FinishRound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.rounds++
}

// AwaitAction moves the session to AwaitingAction. Valid from Submitting and
// as a self-loop from AwaitingAction; a no-op returning false once resolved.
func (s *Session) AwaitAction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Resolved {
		return false
	}
	s.state = AwaitingAction
	return true
}

// Resolve assigns the terminal outcome. The first writer wins: any later
// attempt is dropped and reported with a false return. Done is closed on the
// winning call.
func (s *Session) Resolve(res Resolution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Resolved {
		return false
	}
	s.state = Resolved
	s.inFlight = false
	s.resolution = res
	close(s.done)
	return true
}

// Resolution returns the terminal outcome once the session has resolved.
func (s *Session) Resolution() (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Resolved {
		return Resolution{}, false
	}
	return s.resolution, true
}

// Done is closed when the session resolves.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// StateError reports an operation invoked from a state that forbids it. It
// indicates a collaborator contract violation, not a shopper-visible fault.
type StateError struct {
	Op       string
	State    State
	InFlight bool
}

func (e *StateError) Error() string {
	if e.InFlight {
		return fmt.Sprintf("%s: call already in flight while %s", e.Op, e.State)
	}
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}
