// Package orchestrator drives the per-conversation state machine,
// coordinating the enumerator's output against the destination
// manager, migration engine, rate limiter, tail-sync queues and
// progress store, and enforcing the run's global safety limits
// (spec §4.7).
package orchestrator

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/tgmigrate/internal/destination"
	"github.com/hrygo/tgmigrate/internal/engine"
	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
	"github.com/hrygo/tgmigrate/internal/platform"
	"github.com/hrygo/tgmigrate/internal/progress"
	"github.com/hrygo/tgmigrate/internal/ratelimit"
	"github.com/hrygo/tgmigrate/internal/realtime"
	"github.com/hrygo/tgmigrate/internal/report"
)

// Config tunes the orchestrator's own decisions; per-component configs
// (engine pagination/batching, destination naming/cooldown) are
// embedded rather than duplicated.
type Config struct {
	Engine          engine.Config
	Destination     destination.Config
	MaxFloodWaitSeconds int // spec §4.7 step 12, default 300
	DailyGroupLimit     int // spec §3 invariant 7, default 50
	TargetUserB         string
	OperatorPeer        any // destination for the out-of-band notice, spec §4.7 step 5/12
}

// DefaultConfig mirrors the defaults named in spec §4.7/§6.
func DefaultConfig() Config {
	return Config{
		Engine:              engine.DefaultConfig(),
		Destination:         destination.DefaultConfig(),
		MaxFloodWaitSeconds: 300,
		DailyGroupLimit:     50,
	}
}

// Orchestrator ties the migration subsystems together for one run.
type Orchestrator struct {
	client   platform.Client
	limiter  *ratelimit.Limiter
	realtime *realtime.Manager
	reportAg *report.Aggregator
	cfg      Config

	cancelRequested atomic.Bool
}

// New builds an Orchestrator.
func New(client platform.Client, limiter *ratelimit.Limiter, rt *realtime.Manager, reportAg *report.Aggregator, cfg Config) *Orchestrator {
	return &Orchestrator{client: client, limiter: limiter, realtime: rt, reportAg: reportAg, cfg: cfg}
}

// RequestShutdown sets the cooperative cancellation flag, polled at
// loop boundaries (spec §5). Safe to call from a signal handler.
func (o *Orchestrator) RequestShutdown() {
	o.cancelRequested.Store(true)
}

// SaveCurrentProgress triggers one final save of p, safe to call from
// any signal-handler context (spec §5).
func (o *Orchestrator) SaveCurrentProgress(path string, p model.GlobalProgress) model.GlobalProgress {
	saved, err := progress.Save(path, p)
	if err != nil {
		slog.Error("failed to save progress", "error", err)
		return p
	}
	return saved
}

// RunConversations drives the per-conversation loop over conversations,
// checkpointing progress to progressPath after every state transition
// (spec §4.7). It always returns the latest progress value, even when
// the loop breaks early on cancellation or the daily quota.
func (o *Orchestrator) RunConversations(ctx context.Context, conversations []model.Conversation, p model.GlobalProgress, progressPath string) model.GlobalProgress {
	for _, conv := range conversations {
		if o.cancelRequested.Load() {
			break
		}

		var brk bool
		p, brk = o.migrateOne(ctx, conv, p, progressPath)
		if brk {
			break
		}
	}
	return p
}

func (o *Orchestrator) save(p model.GlobalProgress, path string) model.GlobalProgress {
	saved, err := progress.Save(path, p)
	if err != nil {
		slog.Error("failed to save progress", "error", err)
		return p
	}
	return saved
}

func (o *Orchestrator) notifyOperator(ctx context.Context, text string) {
	if o.cfg.OperatorPeer == nil {
		return
	}
	if err := o.client.SendMessage(ctx, o.cfg.OperatorPeer, text); err != nil {
		slog.Warn("failed to send operator notice", "error", err)
	}
}

// migrateOne runs the per-conversation loop body (spec §4.7 steps 2-14)
// and reports whether the outer loop must break.
func (o *Orchestrator) migrateOne(ctx context.Context, conv model.Conversation, p model.GlobalProgress, progressPath string) (model.GlobalProgress, bool) {
	d, seen := p.Dialogs[conv.ID]
	if seen && d.Status == model.StatusCompleted {
		return p, false
	}

	if !seen {
		p = progress.InitializeConversation(p, progress.ConversationInfo{
			SourceID: conv.ID, DisplayName: conv.DisplayName, Type: conv.Type, TotalCount: conv.MessageCount,
		})
		d = p.Dialogs[conv.ID]
	}

	var resumeFromID *int64
	if d.Status == model.StatusInProgress || d.Status == model.StatusPartiallyMigrated {
		if rp, ok := progress.GetResumePoint(p, conv.ID); ok {
			last := rp.LastMessageID
			resumeFromID = &last
		}
	}

	needsNewDestination := d.TargetGroupID == nil

	if needsNewDestination && progress.IsDailyLimitReached(p, o.cfg.DailyGroupLimit) {
		p = o.save(p, progressPath)
		o.notifyOperator(ctx, "daily destination-group creation quota reached; stopping this run")
		return p, true
	}

	if err := o.realtime.StartListening(ctx, o.client, conv.ID); err != nil {
		slog.Warn("tail-sync listener failed to start", "conversation", conv.ID, "error", err)
	}

	var destID string
	if !needsNewDestination {
		if _, err := o.client.ResolveEntity(ctx, *d.TargetGroupID); err != nil {
			needsNewDestination = true
		} else {
			destID = *d.TargetGroupID
		}
	}

	if needsNewDestination {
		dest, derr := o.createDestinationWithRetry(ctx, conv)
		if derr != nil {
			p = progress.MarkFailed(p, conv.ID, string(derr.Kind), derr.Message)
			o.realtime.StopListening(conv.ID)
			return o.save(p, progressPath), false
		}
		destID = dest.ID
		p = progress.IncrementDailyGroups(p)
		p = progress.MarkStarted(p, conv.ID, destID)
		p = o.save(p, progressPath)

		if o.cfg.TargetUserB != "" {
			if ierr := destination.InviteUser(ctx, o.client, dest, o.cfg.TargetUserB); ierr != nil {
				if !ierr.IsFloodWait() {
					p = progress.MarkFailed(p, conv.ID, string(ierr.Kind), ierr.Message)
					o.realtime.StopListening(conv.ID)
					return o.save(p, progressPath), false
				}
				dialogID := conv.ID
				p = progress.RecordFloodWaitEvent(p, ierr.Seconds, "invite", &dialogID)
				o.reportAg.Record("invite", ierr.Seconds, time.Now())
			}
		}
	}

	o.realtime.RegisterMapping(conv.ID, destID)

	result := o.runMigrationWithCheckpoint(ctx, conv, destID, resumeFromID, &p, progressPath)

	successCount, failedCount := o.drainTailSync(ctx, conv.ID, result.LastMigratedMessageID)
	if successCount > 0 || failedCount > 0 {
		slog.Info("tail-sync drain complete", "conversation", conv.ID, "success", successCount, "failed", failedCount)
	}

	p, brk := o.applyFloodWaitPolicy(ctx, conv, destID, result, &p, progressPath)

	o.realtime.StopListening(conv.ID)
	p = o.save(p, progressPath)
	return p, brk
}

// createDestinationWithRetry creates a destination supergroup, retrying
// once on a floodwait within MaxFloodWaitSeconds (spec §4.7 step 7).
func (o *Orchestrator) createDestinationWithRetry(ctx context.Context, conv model.Conversation) (model.Destination, *migraterr.Error) {
	dest, err := destination.CreateDestination(ctx, o.client, conv, o.cfg.Destination)
	if err == nil {
		return dest, nil
	}
	if !err.IsFloodWait() || err.Seconds > o.cfg.MaxFloodWaitSeconds {
		return model.Destination{}, err
	}

	o.limiter.RecordFloodWait(err.Seconds)
	o.reportAg.Record("create_destination", err.Seconds, time.Now())
	if sleepErr := sleepCtx(ctx, time.Duration(err.Seconds)*time.Second); sleepErr != nil {
		return model.Destination{}, migraterr.Wrap(migraterr.KindCreateFailed, "floodwait sleep interrupted", sleepErr)
	}

	return destination.CreateDestination(ctx, o.client, conv, o.cfg.Destination)
}

// runMigrationWithCheckpoint calls engine.MigrateConversation with a
// progress callback that checkpoints after every batch (spec §4.7 step 10).
func (o *Orchestrator) runMigrationWithCheckpoint(ctx context.Context, conv model.Conversation, destID string, resumeFromID *int64, p *model.GlobalProgress, progressPath string) engine.ConversationResult {
	onProgress := func(ev engine.ProgressEvent) {
		switch ev.Kind {
		case "batch_completed":
			*p = progress.UpdateMessageProgress(*p, conv.ID, ev.LastMessageID, ev.BatchCount)
			*p = o.save(*p, progressPath)
		case "flood_wait":
			dialogID := conv.ID
			*p = progress.RecordFloodWaitEvent(*p, ev.FloodWaitSecs, "forward", &dialogID)
			o.reportAg.Record("forward", ev.FloodWaitSecs, time.Now())
		}
	}

	result := engine.MigrateConversation(ctx, o.client, o.limiter, conv.AccessHandle, destID, o.cfg.Engine, onProgress, resumeFromID)

	if len(result.Errors) > 0 {
		perErrorCount := result.FailedCount
		if n := len(result.Errors); n > 1 {
			perErrorCount = result.FailedCount / n
		}
		for _, e := range result.Errors {
			*p = progress.AddBatchFailure(*p, conv.ID, string(migraterr.KindForwardFailed), e, perErrorCount)
		}
	}

	return result
}

// drainTailSync processes the tail-sync queue using the engine's last
// forwarded id as the dedup barrier (spec §4.7 step 11).
func (o *Orchestrator) drainTailSync(ctx context.Context, convID string, lastMigratedID *int64) (successCount, failedCount int) {
	var barrier int64
	if lastMigratedID != nil {
		barrier = *lastMigratedID
	}

	result := o.realtime.ProcessQueue(ctx, func(ctx context.Context, destID string, msg model.QueuedMessage) error {
		nonces, nerr := oneNonce()
		if nerr != nil {
			return nerr
		}
		_, ferr := o.client.ForwardMessages(ctx, convID, destID, []int64{msg.MessageID}, nonces)
		return ferr
	}, convID, barrier)

	return result.SuccessCount, result.FailedCount
}

// applyFloodWaitPolicy implements spec §4.7 step 12: within threshold,
// mark PartiallyMigrated and retry the conversation once; above
// threshold, mark PartiallyMigrated, notify, and break the outer loop.
// On success (no floodwait), mark Completed.
func (o *Orchestrator) applyFloodWaitPolicy(ctx context.Context, conv model.Conversation, destID string, result engine.ConversationResult, p *model.GlobalProgress, progressPath string) (model.GlobalProgress, bool) {
	convID := conv.ID
	if result.FloodWait == nil {
		*p = progress.MarkComplete(*p, convID)
		return *p, false
	}

	waitSeconds := result.FloodWait.Seconds
	if waitSeconds > o.cfg.MaxFloodWaitSeconds {
		*p = markPartial(*p, convID, result, waitSeconds)
		*p = o.save(*p, progressPath)
		o.notifyOperator(ctx, fmt.Sprintf("conversation %s hit a %ds floodwait, above the %ds threshold; stopping", convID, waitSeconds, o.cfg.MaxFloodWaitSeconds))
		return *p, true
	}

	*p = markPartial(*p, convID, result, waitSeconds)
	*p = o.save(*p, progressPath)
	o.limiter.RecordFloodWait(waitSeconds)
	if sleepErr := sleepCtx(ctx, time.Duration(waitSeconds)*time.Second); sleepErr != nil {
		return *p, true
	}

	d := (*p).Dialogs[convID]
	var resumeFromID *int64
	if d.LastMessageID != nil {
		resumeFromID = d.LastMessageID
	}

	onProgress := func(ev engine.ProgressEvent) {
		switch ev.Kind {
		case "batch_completed":
			*p = progress.UpdateMessageProgress(*p, convID, ev.LastMessageID, ev.BatchCount)
			*p = o.save(*p, progressPath)
		case "flood_wait":
			dialogID := convID
			*p = progress.RecordFloodWaitEvent(*p, ev.FloodWaitSecs, "forward", &dialogID)
			o.reportAg.Record("forward", ev.FloodWaitSecs, time.Now())
		}
	}

	retryResult := engine.MigrateConversation(ctx, o.client, o.limiter, conv.AccessHandle, destID, o.cfg.Engine, onProgress, resumeFromID)
	if retryResult.FloodWait != nil {
		*p = markPartial(*p, convID, retryResult, retryResult.FloodWait.Seconds)
		*p = o.save(*p, progressPath)
		o.notifyOperator(ctx, fmt.Sprintf("conversation %s hit a second floodwait on retry; stopping", convID))
		return *p, true
	}

	*p = progress.MarkComplete(*p, convID)
	return *p, false
}

func markPartial(p model.GlobalProgress, convID string, result engine.ConversationResult, waitSeconds int) model.GlobalProgress {
	lastID := int64(0)
	if result.LastMigratedMessageID != nil {
		lastID = *result.LastMigratedMessageID
	} else if d, ok := p.Dialogs[convID]; ok && d.LastMessageID != nil {
		lastID = *d.LastMessageID
	}
	return progress.MarkPartiallyMigrated(p, convID, lastID, &waitSeconds)
}

// oneNonce mirrors the engine's per-message nonce generation for the
// single-message forwards tail-sync drain performs (spec §4.3, §4.6).
func oneNonce() ([]uint64, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, migraterr.Wrap(migraterr.KindRealtimeForward, "generating tail-sync nonce", err)
	}
	return []uint64{binary.BigEndian.Uint64(id[:8])}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
