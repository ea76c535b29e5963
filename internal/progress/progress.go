// Package progress is the durable, single-writer authority for global
// migration progress (spec §4.5). Mutators are pure: they return a new
// value and never modify the input in place, so the orchestrator can
// keep a stable reference across suspension points (spec §5, §9).
package progress

import (
	"encoding/json"
	"os"
	"time"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
)

// wireDialog / wireProgress mirror the JSON shape in spec §6 exactly;
// the in-memory model.GlobalProgress uses richer Go types (time.Time,
// *int64) that we marshal to/from these.
type wireDialog struct {
	SourceID      string             `json:"sourceId"`
	DisplayName   string             `json:"displayName"`
	Type          string             `json:"type"`
	Status        string             `json:"status"`
	TargetGroupID *string            `json:"targetGroupId,omitempty"`
	LastMessageID *int64             `json:"lastMessageId,omitempty"`
	MigratedCount int                `json:"migratedCount"`
	TotalCount    int                `json:"totalCount"`
	Errors        []wireErrorRecord  `json:"errors"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
}

type wireErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	MessageID *int64    `json:"messageId,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

type wireFloodWaitEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Seconds   int       `json:"seconds"`
	Operation string    `json:"operation"`
	DialogID  *string   `json:"dialogId,omitempty"`
}

type wireStats struct {
	TotalDialogs          int `json:"totalDialogs"`
	CompletedDialogs      int `json:"completedDialogs"`
	FailedDialogs         int `json:"failedDialogs"`
	SkippedDialogs        int `json:"skippedDialogs"`
	TotalMessages         int `json:"totalMessages"`
	MigratedMessages      int `json:"migratedMessages"`
	FailedMessages        int `json:"failedMessages"`
	FloodWaitCount        int `json:"floodWaitCount"`
	TotalFloodWaitSeconds int `json:"totalFloodWaitSeconds"`
}

type wireDailyGroupCreation struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type wireProgress struct {
	Version            string                        `json:"version"`
	StartedAt          time.Time                     `json:"startedAt"`
	UpdatedAt          time.Time                     `json:"updatedAt"`
	SourceAccount      string                        `json:"sourceAccount"`
	TargetAccount      string                        `json:"targetAccount"`
	CurrentPhase       string                        `json:"currentPhase"`
	Dialogs            map[string]wireDialog         `json:"dialogs"`
	FloodWaitEvents    []wireFloodWaitEvent          `json:"floodWaitEvents"`
	Stats              wireStats                     `json:"stats"`
	DailyGroupCreation wireDailyGroupCreation        `json:"dailyGroupCreation"`
}

func toWire(p model.GlobalProgress) wireProgress {
	dialogs := make(map[string]wireDialog, len(p.Dialogs))
	for id, d := range p.Dialogs {
		errs := make([]wireErrorRecord, 0, len(d.Errors))
		for _, e := range d.Errors {
			errs = append(errs, wireErrorRecord{
				Timestamp: e.Timestamp,
				MessageID: e.MessageID,
				Kind:      e.Kind,
				Message:   e.Message,
			})
		}
		dialogs[id] = wireDialog{
			SourceID:      d.SourceID,
			DisplayName:   d.DisplayName,
			Type:          string(d.Type),
			Status:        string(d.Status),
			TargetGroupID: d.TargetGroupID,
			LastMessageID: d.LastMessageID,
			MigratedCount: d.MigratedCount,
			TotalCount:    d.TotalCount,
			Errors:        errs,
			StartedAt:     d.StartedAt,
			CompletedAt:   d.CompletedAt,
		}
	}

	events := make([]wireFloodWaitEvent, 0, len(p.FloodWaitEvents))
	for _, e := range p.FloodWaitEvents {
		events = append(events, wireFloodWaitEvent{
			Timestamp: e.Timestamp,
			Seconds:   e.Seconds,
			Operation: e.Operation,
			DialogID:  e.DialogID,
		})
	}

	return wireProgress{
		Version:       p.Version,
		StartedAt:     p.StartedAt,
		UpdatedAt:     p.UpdatedAt,
		SourceAccount: p.SourceAccount,
		TargetAccount: p.TargetAccount,
		CurrentPhase:  string(p.CurrentPhase),
		Dialogs:       dialogs,
		FloodWaitEvents: events,
		Stats: wireStats{
			TotalDialogs:          p.Stats.TotalDialogs,
			CompletedDialogs:      p.Stats.CompletedDialogs,
			FailedDialogs:         p.Stats.FailedDialogs,
			SkippedDialogs:        p.Stats.SkippedDialogs,
			TotalMessages:         p.Stats.TotalMessages,
			MigratedMessages:      p.Stats.MigratedMessages,
			FailedMessages:        p.Stats.FailedMessages,
			FloodWaitCount:        p.Stats.FloodWaitCount,
			TotalFloodWaitSeconds: p.Stats.TotalFloodWaitSeconds,
		},
		DailyGroupCreation: wireDailyGroupCreation{
			Date:  p.DailyGroupCreation.Date,
			Count: p.DailyGroupCreation.Count,
		},
	}
}

func fromWire(w wireProgress) model.GlobalProgress {
	dialogs := make(map[string]model.ConversationProgress, len(w.Dialogs))
	for id, d := range w.Dialogs {
		errs := make([]model.ErrorRecord, 0, len(d.Errors))
		for _, e := range d.Errors {
			errs = append(errs, model.ErrorRecord{
				Timestamp: e.Timestamp,
				MessageID: e.MessageID,
				Kind:      e.Kind,
				Message:   e.Message,
			})
		}
		dialogs[id] = model.ConversationProgress{
			SourceID:      d.SourceID,
			DisplayName:   d.DisplayName,
			Type:          model.ConversationType(d.Type),
			Status:        model.Status(d.Status),
			TargetGroupID: d.TargetGroupID,
			LastMessageID: d.LastMessageID,
			MigratedCount: d.MigratedCount,
			TotalCount:    d.TotalCount,
			Errors:        errs,
			StartedAt:     d.StartedAt,
			CompletedAt:   d.CompletedAt,
		}
	}

	events := make([]model.FloodWaitEvent, 0, len(w.FloodWaitEvents))
	for _, e := range w.FloodWaitEvents {
		events = append(events, model.FloodWaitEvent{
			Timestamp: e.Timestamp,
			Seconds:   e.Seconds,
			Operation: e.Operation,
			DialogID:  e.DialogID,
		})
	}

	return model.GlobalProgress{
		Version:       w.Version,
		StartedAt:     w.StartedAt,
		UpdatedAt:     w.UpdatedAt,
		SourceAccount: w.SourceAccount,
		TargetAccount: w.TargetAccount,
		CurrentPhase:  model.Phase(w.CurrentPhase),
		Dialogs:       dialogs,
		FloodWaitEvents: events,
		Stats: model.Stats{
			TotalDialogs:          w.Stats.TotalDialogs,
			CompletedDialogs:      w.Stats.CompletedDialogs,
			FailedDialogs:         w.Stats.FailedDialogs,
			SkippedDialogs:        w.Stats.SkippedDialogs,
			TotalMessages:         w.Stats.TotalMessages,
			MigratedMessages:      w.Stats.MigratedMessages,
			FailedMessages:        w.Stats.FailedMessages,
			FloodWaitCount:        w.Stats.FloodWaitCount,
			TotalFloodWaitSeconds: w.Stats.TotalFloodWaitSeconds,
		},
		DailyGroupCreation: model.DailyGroupCreation{
			Date:  w.DailyGroupCreation.Date,
			Count: w.DailyGroupCreation.Count,
		},
	}
}

// Load reads the progress file at path. A missing file returns an
// empty progress with current timestamps (not an error); an empty
// file is FILE_CORRUPTED; malformed JSON is FILE_CORRUPTED; a missing
// or unknown version/startedAt is INVALID_FORMAT (spec §4.5).
func Load(path string) (model.GlobalProgress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			now := time.Now()
			return model.NewEmpty(now, "", ""), nil
		}
		return model.GlobalProgress{}, migraterr.Wrap(migraterr.KindFileCorrupted, "reading progress file", err)
	}

	if len(data) == 0 {
		return model.GlobalProgress{}, migraterr.New(migraterr.KindFileCorrupted, "progress file is empty")
	}

	var w wireProgress
	if err := json.Unmarshal(data, &w); err != nil {
		return model.GlobalProgress{}, migraterr.Wrap(migraterr.KindFileCorrupted, "parsing progress file", err)
	}

	if w.Version == "" {
		return model.GlobalProgress{}, migraterr.New(migraterr.KindInvalidFormat, "missing version")
	}
	if w.Version != model.CurrentSchemaVersion {
		return model.GlobalProgress{}, migraterr.New(migraterr.KindInvalidFormat, "unknown schema version "+w.Version)
	}
	if w.StartedAt.IsZero() {
		return model.GlobalProgress{}, migraterr.New(migraterr.KindInvalidFormat, "missing startedAt")
	}

	p := fromWire(w)
	if p.Dialogs == nil {
		p.Dialogs = make(map[string]model.ConversationProgress)
	}
	return p, nil
}

// Save atomically writes progress to path: serialize to path+".tmp",
// then rename over path. updatedAt is bumped to now as part of save.
// On rename failure the temp file is best-effort removed.
func Save(path string, p model.GlobalProgress) (model.GlobalProgress, error) {
	p.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(toWire(p), "", "  ")
	if err != nil {
		return p, migraterr.Wrap(migraterr.KindWriteFailed, "encoding progress", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return p, migraterr.Wrap(migraterr.KindWriteFailed, "writing temp progress file", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return p, migraterr.Wrap(migraterr.KindWriteFailed, "renaming progress file", err)
	}

	return p, nil
}

// touch bumps UpdatedAt; every mutator calls this (spec §3 invariant 5).
func touch(p model.GlobalProgress) model.GlobalProgress {
	p.UpdatedAt = time.Now()
	return p
}

func cloneDialogs(p model.GlobalProgress) map[string]model.ConversationProgress {
	out := make(map[string]model.ConversationProgress, len(p.Dialogs))
	for k, v := range p.Dialogs {
		errs := make([]model.ErrorRecord, len(v.Errors))
		copy(errs, v.Errors)
		v.Errors = errs
		out[k] = v
	}
	return out
}

// copyProgress returns a shallow-but-safe copy of p with its own
// Dialogs map and FloodWaitEvents slice, so mutators never touch the
// caller's value in place.
func copyProgress(p model.GlobalProgress) model.GlobalProgress {
	next := p
	next.Dialogs = cloneDialogs(p)
	next.FloodWaitEvents = append([]model.FloodWaitEvent(nil), p.FloodWaitEvents...)
	return next
}

// ConversationInfo is what the orchestrator knows about a conversation
// before any migration work has started on it.
type ConversationInfo struct {
	SourceID    string
	DisplayName string
	Type        model.ConversationType
	TotalCount  int
}

// InitializeConversation creates a Pending entry for a conversation
// seen for the first time this run (spec §4.5).
func InitializeConversation(p model.GlobalProgress, info ConversationInfo) model.GlobalProgress {
	next := copyProgress(p)
	next.Dialogs[info.SourceID] = model.ConversationProgress{
		SourceID:    info.SourceID,
		DisplayName: info.DisplayName,
		Type:        info.Type,
		Status:      model.StatusPending,
		TotalCount:  info.TotalCount,
	}
	next.Stats.TotalDialogs++
	next.Stats.TotalMessages += info.TotalCount
	return touch(next)
}

// MarkStarted transitions Pending->InProgress, recording the
// destination group id and start time.
func MarkStarted(p model.GlobalProgress, id, destID string) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	now := time.Now()
	d.Status = model.StatusInProgress
	d.TargetGroupID = &destID
	d.StartedAt = &now
	next.Dialogs[id] = d
	return touch(next)
}

// MarkComplete transitions the conversation to Completed.
func MarkComplete(p model.GlobalProgress, id string) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	now := time.Now()
	d.Status = model.StatusCompleted
	d.CompletedAt = &now
	next.Dialogs[id] = d
	next.Stats.CompletedDialogs++
	return touch(next)
}

// MarkFailed transitions the conversation to Failed, appending an
// error record.
func MarkFailed(p model.GlobalProgress, id string, kind, message string) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	d.Status = model.StatusFailed
	d.Errors = append(d.Errors, model.ErrorRecord{Timestamp: time.Now(), Kind: kind, Message: message})
	next.Dialogs[id] = d
	next.Stats.FailedDialogs++
	return touch(next)
}

// MarkSkipped transitions the conversation to Skipped, appending a
// reason record.
func MarkSkipped(p model.GlobalProgress, id, reason string) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	d.Status = model.StatusSkipped
	d.Errors = append(d.Errors, model.ErrorRecord{Timestamp: time.Now(), Kind: "SKIPPED", Message: reason})
	next.Dialogs[id] = d
	next.Stats.SkippedDialogs++
	return touch(next)
}

// MarkPartiallyMigrated transitions to PartiallyMigrated, recording
// the resume point and a FLOOD_WAIT_TIMEOUT error record; waitSeconds
// only selects that record's message.
func MarkPartiallyMigrated(p model.GlobalProgress, id string, lastID int64, waitSeconds *int) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	d.Status = model.StatusPartiallyMigrated
	d.LastMessageID = &lastID
	msg := "partially migrated"
	if waitSeconds != nil {
		msg = "flood wait timeout"
	}
	d.Errors = append(d.Errors, model.ErrorRecord{Timestamp: time.Now(), Kind: "FLOOD_WAIT_TIMEOUT", Message: msg})
	next.Dialogs[id] = d
	return touch(next)
}

// UpdateMessageProgress advances the resume point and migrated count
// after a successful batch forward, and bumps the aggregate counter
// (spec §4.5, the orchestrator's per-batch checkpoint in §4.7).
func UpdateMessageProgress(p model.GlobalProgress, id string, lastID int64, batchCount int) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	d.LastMessageID = &lastID
	d.MigratedCount += batchCount
	next.Dialogs[id] = d
	next.Stats.MigratedMessages += batchCount
	return touch(next)
}

// AddError appends an error record to a conversation; when messageID
// is non-nil, the aggregate failed-message counter is bumped too.
func AddError(p model.GlobalProgress, id string, kind, message string, messageID *int64) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	d.Errors = append(d.Errors, model.ErrorRecord{Timestamp: time.Now(), MessageID: messageID, Kind: kind, Message: message})
	next.Dialogs[id] = d
	if messageID != nil {
		next.Stats.FailedMessages++
	}
	return touch(next)
}

// ResetConversation re-initializes one conversation to Pending,
// clearing its resume point and destination group, for the `reset
// --dialog` CLI operation (spec §6 supplement).
func ResetConversation(p model.GlobalProgress, id string) model.GlobalProgress {
	next := copyProgress(p)
	d, ok := next.Dialogs[id]
	if !ok {
		return p
	}
	next.Dialogs[id] = model.ConversationProgress{
		SourceID:    d.SourceID,
		DisplayName: d.DisplayName,
		Type:        d.Type,
		Status:      model.StatusPending,
		TotalCount:  d.TotalCount,
	}
	return touch(next)
}

// ResetAll re-initializes every conversation to Pending and clears the
// daily group-creation counter, for `reset --all` (spec §6 supplement).
func ResetAll(p model.GlobalProgress) model.GlobalProgress {
	next := copyProgress(p)
	for id, d := range next.Dialogs {
		next.Dialogs[id] = model.ConversationProgress{
			SourceID:    d.SourceID,
			DisplayName: d.DisplayName,
			Type:        d.Type,
			Status:      model.StatusPending,
			TotalCount:  d.TotalCount,
		}
	}
	next.DailyGroupCreation = model.DailyGroupCreation{}
	next.Stats.CompletedDialogs = 0
	next.Stats.FailedDialogs = 0
	next.Stats.SkippedDialogs = 0
	next.Stats.MigratedMessages = 0
	return touch(next)
}

// RecordFloodWaitEvent appends a global floodwait observation and bumps
// the aggregate floodwait counters (spec §4.5/§6, the orchestrator's
// "flood_wait" progress-callback handler in §4.7 step 10).
func RecordFloodWaitEvent(p model.GlobalProgress, seconds int, operation string, dialogID *string) model.GlobalProgress {
	next := copyProgress(p)
	next.FloodWaitEvents = append(next.FloodWaitEvents, model.FloodWaitEvent{
		Timestamp: time.Now(),
		Seconds:   seconds,
		Operation: operation,
		DialogID:  dialogID,
	})
	next.Stats.FloodWaitCount++
	next.Stats.TotalFloodWaitSeconds += seconds
	return touch(next)
}

// AddBatchFailure appends one error record for a whole failed forward
// batch and bumps stats.failedMessages by the batch size, matching the
// engine's per-batch accounting (spec §4.3 design note, §4.7 step 10).
func AddBatchFailure(p model.GlobalProgress, id, kind, message string, batchSize int) model.GlobalProgress {
	next := copyProgress(p)
	d := next.Dialogs[id]
	d.Errors = append(d.Errors, model.ErrorRecord{Timestamp: time.Now(), Kind: kind, Message: message})
	next.Dialogs[id] = d
	next.Stats.FailedMessages += batchSize
	return touch(next)
}

// ResumePoint is what GetResumePoint returns for an interrupted
// conversation.
type ResumePoint struct {
	LastMessageID int64
	MigratedCount int
	TargetGroupID string
}

// GetResumePoint returns the resume point for an InProgress or
// PartiallyMigrated conversation that has both a last message id and
// a target group id recorded; otherwise it returns false.
func GetResumePoint(p model.GlobalProgress, id string) (ResumePoint, bool) {
	d, ok := p.Dialogs[id]
	if !ok {
		return ResumePoint{}, false
	}
	if d.Status != model.StatusInProgress && d.Status != model.StatusPartiallyMigrated {
		return ResumePoint{}, false
	}
	if d.LastMessageID == nil || d.TargetGroupID == nil {
		return ResumePoint{}, false
	}
	return ResumePoint{LastMessageID: *d.LastMessageID, MigratedCount: d.MigratedCount, TargetGroupID: *d.TargetGroupID}, true
}

// DailyGroupCount returns the stored daily counter if its date matches
// today's local date, else 0 (spec §3 invariant 7, §4.5).
func DailyGroupCount(p model.GlobalProgress) int {
	if p.DailyGroupCreation.Date != today() {
		return 0
	}
	return p.DailyGroupCreation.Count
}

// IncrementDailyGroups bumps the daily counter, resetting to 1 on a
// date rollover.
func IncrementDailyGroups(p model.GlobalProgress) model.GlobalProgress {
	next := copyProgress(p)
	if next.DailyGroupCreation.Date != today() {
		next.DailyGroupCreation = model.DailyGroupCreation{Date: today(), Count: 1}
	} else {
		next.DailyGroupCreation.Count++
	}
	return touch(next)
}

// IsDailyLimitReached compares the (rollover-aware) daily counter
// against limit.
func IsDailyLimitReached(p model.GlobalProgress, limit int) bool {
	return DailyGroupCount(p) >= limit
}

func today() string {
	return time.Now().Format("2006-01-02")
}
