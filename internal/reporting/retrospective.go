// Package reporting summarizes completed payment sessions for operators.
package reporting

import (
	"sync"
	"time"
)

// SessionLog is one completed session as recorded at resolution time.
type SessionLog struct {
	Timestamp   time.Time
	SessionID   string
	Outcome     string // caller-visible value: result code or sentinel
	Rounds      int
	AmountMinor int
	Currency    string
}

// RetrospectiveReport aggregates session logs over a time window.
type RetrospectiveReport struct {
	TotalSessions    int
	Succeeded        int // Authorised, Received, Pending
	Cancelled        int
	Errored          int
	OutcomeBreakdown map[string]int
	// AmountByCurrency sums the minor-unit amounts of succeeded sessions.
	AmountByCurrency map[string]int
	TotalRounds      int
	DateFrom         time.Time
	DateTo           time.Time
}

// Generate builds a report from the given logs.
func Generate(logs []SessionLog) *RetrospectiveReport {
	report := &RetrospectiveReport{
		OutcomeBreakdown: make(map[string]int),
		AmountByCurrency: make(map[string]int),
	}
	if len(logs) == 0 {
		return report
	}

	report.DateFrom = logs[0].Timestamp
	report.DateTo = logs[0].Timestamp
	for _, entry := range logs {
		report.TotalSessions++
		report.TotalRounds += entry.Rounds
		report.OutcomeBreakdown[entry.Outcome]++

		if entry.Timestamp.Before(report.DateFrom) {
			report.DateFrom = entry.Timestamp
		}
		if entry.Timestamp.After(report.DateTo) {
			report.DateTo = entry.Timestamp
		}

		switch entry.Outcome {
		case "PAYMENT_CANCELLED":
			report.Cancelled++
		case "PAYMENT_ERROR":
			report.Errored++
		default:
			report.Succeeded++
			report.AmountByCurrency[entry.Currency] += entry.AmountMinor
		}
	}
	return report
}

// Store keeps session logs in memory, newest last.
type Store struct {
	mu   sync.Mutex
	logs []SessionLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append records one completed session.
func (s *Store) Append(entry SessionLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

// Snapshot returns a copy of the recorded logs.
func (s *Store) Snapshot() []SessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionLog, len(s.logs))
	copy(out, s.logs)
	return out
}
