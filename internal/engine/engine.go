// Package engine implements the two-phase collect/forward migration
// of a single conversation's history (spec §4.3).
package engine

import (
	"context"
	"encoding/binary"
	"sort"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/platform"
	"github.com/hrygo/tgmigrate/internal/ratelimit"
)

// Config tunes one conversation's migration run (spec §4.3, §6).
type Config struct {
	BatchSize               int
	MinDate                 *int64 // unix seconds, inclusive; nil = unbounded
	MaxDate                 *int64 // unix seconds, inclusive; nil = unbounded
	MaxPaginationIterations int    // safety cap, spec §9 design note
}

// DefaultConfig mirrors the defaults named in spec §6.
func DefaultConfig() Config {
	return Config{BatchSize: 100, MaxPaginationIterations: 10000}
}

// ProgressEvent is emitted via onProgress during forwarding.
type ProgressEvent struct {
	Kind          string // "batch_completed" | "flood_wait"
	BatchCount    int
	LastMessageID int64
	FloodWaitSecs int
}

// ConversationResult is always returned, even on partial failure
// (spec §4.3: errors populate the result rather than aborting the run).
type ConversationResult struct {
	MigratedCount        int
	FailedCount           int
	Errors                []string
	FloodWait             *migraterr.Error
	LastMigratedMessageID *int64
}

// rawMessage is one item returned by GetHistory before service-message
// filtering; only its id and whether it is a service message matter
// to the two-phase protocol.
type rawMessage struct {
	ID        int64
	IsService bool
	Date      int64
}

// historyPager is the subset of platform.Client the engine needs for
// Phase 1 collection.
type historyPager interface {
	GetHistory(ctx context.Context, peer any, offsetID int64, limit int) (platform.HistoryPage, error)
}

// forwarder is the subset of platform.Client the engine needs for
// Phase 2 forwarding.
type forwarder interface {
	ForwardMessages(ctx context.Context, source, dest any, messageIDs []int64, nonces []uint64) (platform.ForwardResult, error)
}

// Client is the combination of capabilities MigrateConversation needs.
type Client interface {
	historyPager
	forwarder
}

// toRaw adapts a platform history page into the engine's internal raw
// message view. Kept as a function (not a method) so tests can supply
// a fake HistoryPage shape without depending on tgbotapi wire details.
func toRaw(page platform.HistoryPage) []rawMessage {
	out := make([]rawMessage, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, rawMessage{
			ID:        int64(m.MessageID),
			IsService: isServiceMessage(m),
			Date:      int64(m.Date),
		})
	}
	return out
}

// isServiceMessage reports whether m is a system/service message
// (membership and chat-metadata changes) rather than user content, per
// the real tgbotapi.Message fields those events populate. Service
// messages are excluded from the forwarded set but still counted
// toward pagination progress (spec §4.3).
func isServiceMessage(m tgbotapi.Message) bool {
	switch {
	case len(m.NewChatMembers) > 0,
		m.LeftChatMember != nil,
		m.NewChatTitle != "",
		m.NewChatPhoto != nil,
		m.DeleteChatPhoto,
		m.GroupChatCreated,
		m.SuperGroupChatCreated,
		m.ChannelChatCreated,
		m.MigrateToChatID != 0,
		m.MigrateFromChatID != 0,
		m.PinnedMessage != nil:
		return true
	default:
		return false
	}
}

// MigrateConversation runs the two-phase collect/forward protocol for
// one conversation (spec §4.3). onProgress is called synchronously
// for every batch_completed/flood_wait event so the caller can
// checkpoint. resumeFromID, when non-nil, discards already-forwarded
// ids from Phase 2.
func MigrateConversation(
	ctx context.Context,
	client Client,
	limiter *ratelimit.Limiter,
	source, dest any,
	cfg Config,
	onProgress func(ProgressEvent),
	resumeFromID *int64,
) ConversationResult {
	ids, fw := collect(ctx, client, limiter, source, cfg)
	if fw != nil {
		return ConversationResult{FloodWait: fw}
	}

	return forward(ctx, client, limiter, source, dest, cfg, ids, onProgress, resumeFromID)
}

// collect implements Phase 1: page history newest-first, recording
// every raw id (service messages included, for pagination progress),
// advancing offsetId by the minimum raw id on the page, until a page
// returns fewer than limit raw messages or the safety cap trips.
func collect(ctx context.Context, client historyPager, limiter *ratelimit.Limiter, source any, cfg Config) ([]rawMessage, *migraterr.Error) {
	var all []rawMessage
	offsetID := int64(0)

	for iter := 0; iter < cfg.MaxPaginationIterations; iter++ {
		if err := limiter.Acquire(ctx); err != nil {
			return nil, migraterr.Wrap(migraterr.KindDialogFetchFailed, "rate limiter acquire", err)
		}

		page, err := client.GetHistory(ctx, source, offsetID, cfg.BatchSize)
		if err != nil {
			if me, ok := asMigraterr(err); ok && me.IsFloodWait() {
				limiter.RecordFloodWait(me.Seconds)
				return nil, me
			}
			return nil, migraterr.Wrap(migraterr.KindDialogFetchFailed, "fetching history page", err)
		}

		raw := toRaw(page)
		all = append(all, raw...)

		if len(raw) == 0 {
			break
		}

		minID := raw[0].ID
		for _, m := range raw {
			if m.ID < minID {
				minID = m.ID
			}
		}
		offsetID = minID

		if len(raw) < cfg.BatchSize {
			break
		}
	}

	return filterByDate(all, cfg), nil
}

// filterByDate applies the optional date range to the projected
// message set without affecting pagination boundaries (spec §4.3).
func filterByDate(all []rawMessage, cfg Config) []rawMessage {
	if cfg.MinDate == nil && cfg.MaxDate == nil {
		return all
	}
	out := make([]rawMessage, 0, len(all))
	for _, m := range all {
		if cfg.MinDate != nil && m.Date < *cfg.MinDate {
			continue
		}
		if cfg.MaxDate != nil && m.Date > *cfg.MaxDate {
			continue
		}
		out = append(out, m)
	}
	return out
}

// forward implements Phase 2: chronological batches of at most
// BatchSize, fresh nonces per message, checkpointing via onProgress.
func forward(
	ctx context.Context,
	client forwarder,
	limiter *ratelimit.Limiter,
	source, dest any,
	cfg Config,
	raw []rawMessage,
	onProgress func(ProgressEvent),
	resumeFromID *int64,
) ConversationResult {
	chronological := chronologicalForwardIDs(raw, resumeFromID)

	result := ConversationResult{}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	for start := 0; start < len(chronological); start += batchSize {
		end := start + batchSize
		if end > len(chronological) {
			end = len(chronological)
		}
		batch := chronological[start:end]

		if err := limiter.Acquire(ctx); err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result
		}

		nonces, err := freshNonces(len(batch))
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.FailedCount += len(batch)
			continue
		}

		_, err = client.ForwardMessages(ctx, source, dest, batch, nonces)
		if err != nil {
			if me, ok := asMigraterr(err); ok && me.IsFloodWait() {
				limiter.RecordFloodWait(me.Seconds)
				if onProgress != nil {
					onProgress(ProgressEvent{Kind: "flood_wait", FloodWaitSecs: me.Seconds})
				}
				result.FloodWait = me
				return result
			}

			result.Errors = append(result.Errors, err.Error())
			result.FailedCount += len(batch) // spec §9: whole batch, not the rejected subset
			continue
		}

		result.MigratedCount += len(batch)
		last := batch[len(batch)-1]
		result.LastMigratedMessageID = &last
		if onProgress != nil {
			onProgress(ProgressEvent{Kind: "batch_completed", BatchCount: len(batch), LastMessageID: last})
		}
	}

	return result
}

// chronologicalForwardIDs excludes service messages from the
// forwarded set, reverses collection (newest-first) order into
// chronological order, and discards anything already forwarded.
func chronologicalForwardIDs(raw []rawMessage, resumeFromID *int64) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, m := range raw {
		if m.IsService {
			continue
		}
		ids = append(ids, m.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if resumeFromID == nil {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		if id > *resumeFromID {
			out = append(out, id)
		}
	}
	return out
}

// freshNonces generates one large unsigned random nonce per message
// (spec §4.3), derived from a version-4 UUID so forwards are
// idempotent at the server even across retries.
func freshNonces(n int) ([]uint64, error) {
	out := make([]uint64, n)
	for i := range out {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, migraterr.Wrap(migraterr.KindForwardFailed, "generating nonce", err)
		}
		out[i] = binary.BigEndian.Uint64(id[:8])
	}
	return out, nil
}

func asMigraterr(err error) (*migraterr.Error, bool) {
	return migraterr.As(err)
}
