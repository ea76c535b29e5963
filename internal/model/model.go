// Package model defines the durable and in-flight data structures
// shared by the migration orchestrator and its collaborators (spec §3).
package model

import "time"

// ConversationType classifies a conversation descriptor (spec §4.1).
type ConversationType string

const (
	TypePrivate    ConversationType = "private"
	TypeGroup      ConversationType = "group"
	TypeSupergroup ConversationType = "supergroup"
	TypeChannel    ConversationType = "channel"
	TypeBot        ConversationType = "bot"
)

// Conversation is a stable, immutable-once-observed descriptor of a
// peer entity the source account can see.
type Conversation struct {
	ID           string
	AccessHandle any // opaque; client-library entity reference
	Type         ConversationType
	DisplayName  string
	MessageCount int // approximate, derived from last message id
	Archived     bool
	RawEntity    any // opaque raw entity reference from the client
}

// Destination is the supergroup created to mirror one source conversation.
type Destination struct {
	ID           string
	AccessHandle any
	DisplayName  string
	SourceID     string
	CreatedAt    time.Time
}

// Status is a conversation's place in the migration state machine
// (spec §3). Only the transitions spelled out there are legal; see
// CanTransition.
type Status string

const (
	StatusPending            Status = "Pending"
	StatusInProgress         Status = "InProgress"
	StatusPartiallyMigrated  Status = "PartiallyMigrated"
	StatusCompleted          Status = "Completed"
	StatusFailed             Status = "Failed"
	StatusSkipped            Status = "Skipped"
)

// IsTerminal reports whether the status is one of the run's terminal
// states. PartiallyMigrated is explicitly non-terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

var legalTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusSkipped:    true,
	},
	StatusInProgress: {
		StatusCompleted:         true,
		StatusFailed:            true,
		StatusPartiallyMigrated: true,
	},
	StatusPartiallyMigrated: {
		StatusInProgress:        true,
		StatusCompleted:         true,
		StatusPartiallyMigrated: true,
		StatusFailed:            true,
	},
}

// CanTransition reports whether moving from `from` to `to` is legal
// per the state machine in spec §3.
func CanTransition(from, to Status) bool {
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ErrorRecord is one append-only entry in a conversation's error list.
type ErrorRecord struct {
	Timestamp time.Time
	MessageID *int64 // nil when the error is not tied to one message
	Kind      string
	Message   string
}

// ConversationProgress is the mutable, durable per-conversation state
// (spec §3).
type ConversationProgress struct {
	SourceID      string
	DisplayName   string
	Type          ConversationType
	Status        Status
	TargetGroupID *string
	LastMessageID *int64
	MigratedCount int
	TotalCount    int
	Errors        []ErrorRecord
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// FloodWaitEvent is one entry in the global append-only floodwait log.
type FloodWaitEvent struct {
	Timestamp time.Time
	Seconds   int
	Operation string
	DialogID  *string
}

// Stats holds the aggregate counters carried in GlobalProgress.
type Stats struct {
	TotalDialogs         int
	CompletedDialogs     int
	FailedDialogs        int
	SkippedDialogs       int
	TotalMessages        int
	MigratedMessages     int
	FailedMessages       int
	FloodWaitCount       int
	TotalFloodWaitSeconds int
}

// DailyGroupCreation tracks the per-day destination-group creation
// counter (spec §3 invariant 7).
type DailyGroupCreation struct {
	Date  string // "YYYY-MM-DD" in the process's local date
	Count int
}

// Phase is the coarse run phase recorded in GlobalProgress.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseFetchingDialogs     Phase = "fetching_dialogs"
	PhaseCreatingGroups      Phase = "creating_groups"
	PhaseMigratingMessages   Phase = "migrating_messages"
	PhaseCompleted           Phase = "completed"
)

// GlobalProgress is the full durable migration state (spec §3, §6).
type GlobalProgress struct {
	Version            string
	StartedAt          time.Time
	UpdatedAt          time.Time
	SourceAccount      string
	TargetAccount      string
	CurrentPhase       Phase
	Dialogs            map[string]ConversationProgress
	FloodWaitEvents    []FloodWaitEvent
	Stats              Stats
	DailyGroupCreation DailyGroupCreation
}

// CurrentSchemaVersion is the only version this store knows how to load.
const CurrentSchemaVersion = "1.0"

// NewEmpty returns a freshly initialized progress value with current
// timestamps and empty collections, as Load returns when no file exists.
func NewEmpty(now time.Time, sourceAccount, targetAccount string) GlobalProgress {
	return GlobalProgress{
		Version:       CurrentSchemaVersion,
		StartedAt:     now,
		UpdatedAt:     now,
		SourceAccount: sourceAccount,
		TargetAccount: targetAccount,
		CurrentPhase:  PhaseIdle,
		Dialogs:       make(map[string]ConversationProgress),
	}
}

// QueuedMessage is one live message captured by the tail-sync listener
// for a conversation, awaiting drain (spec §3, §4.6).
type QueuedMessage struct {
	MessageID  int64
	CapturedAt time.Time
	Payload    any // opaque platform message payload
	RetryCount int
}
