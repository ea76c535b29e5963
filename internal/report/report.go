// Package report aggregates floodwait events observed during a run and
// produces the final structured migration report (spec §4.8).
package report

import (
	"sync"
	"time"

	"github.com/hrygo/tgmigrate/internal/model"
)

// Event is one floodwait observation, keyed by the operation that hit it.
type Event struct {
	Operation string
	Seconds   int
	At        time.Time
}

// Aggregator is an in-memory, append-only log of floodwait events.
type Aggregator struct {
	mu     sync.Mutex
	events []Event
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record appends a floodwait observation.
func (a *Aggregator) Record(operation string, seconds int, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, Event{Operation: operation, Seconds: seconds, At: at})
}

// Summary is the aggregate view of the in-memory log.
type Summary struct {
	TotalEvents   int
	TotalWaitTime int
	LongestWait   int
}

// Summary computes totals over the in-memory log.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{TotalEvents: len(a.events)}
	for _, e := range a.events {
		s.TotalWaitTime += e.Seconds
		if e.Seconds > s.LongestWait {
			s.LongestWait = e.Seconds
		}
	}
	return s
}

// ConversationFailure is one Failed conversation's latest error, for
// the report's per-conversation failure section.
type ConversationFailure struct {
	SourceID    string
	DisplayName string
	Kind        string
	Message     string
	At          time.Time
}

// Report is the structured output of GenerateReport. Rendering it into
// operator-facing text is out of scope (spec §1); callers dump it as
// JSON or otherwise consume it directly.
type Report struct {
	StartedAt          time.Time
	UpdatedAt          time.Time
	ElapsedSeconds      float64
	Stats              model.Stats
	FloodWaitSummary   Summary
	FloodWaitEvents    []model.FloodWaitEvent
	ConversationFailures []ConversationFailure
}

// GenerateReport combines the in-memory floodwait log with progress's
// own durable floodwait event list and per-conversation failures
// (spec §4.8).
func (a *Aggregator) GenerateReport(p model.GlobalProgress) Report {
	failures := make([]ConversationFailure, 0)
	for id, d := range p.Dialogs {
		if d.Status != model.StatusFailed || len(d.Errors) == 0 {
			continue
		}
		latest := d.Errors[0]
		for _, e := range d.Errors {
			if e.Timestamp.After(latest.Timestamp) {
				latest = e
			}
		}
		failures = append(failures, ConversationFailure{
			SourceID:    id,
			DisplayName: d.DisplayName,
			Kind:        latest.Kind,
			Message:     latest.Message,
			At:          latest.Timestamp,
		})
	}

	return Report{
		StartedAt:            p.StartedAt,
		UpdatedAt:            p.UpdatedAt,
		ElapsedSeconds:       p.UpdatedAt.Sub(p.StartedAt).Seconds(),
		Stats:                p.Stats,
		FloodWaitSummary:     a.Summary(),
		FloodWaitEvents:      p.FloodWaitEvents,
		ConversationFailures: failures,
	}
}
