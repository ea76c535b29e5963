package orchestrator

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tgmigrate/internal/engine"
	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
	"github.com/hrygo/tgmigrate/internal/platform"
	"github.com/hrygo/tgmigrate/internal/ratelimit"
	"github.com/hrygo/tgmigrate/internal/realtime"
	"github.com/hrygo/tgmigrate/internal/report"
)

// fakeClient implements platform.Client with scriptable behaviour per
// test. It generates a fresh, never-flooding history/forward sequence
// by default.
type fakeClient struct {
	messages map[string][]tgbotapi.Message // keyed by peer id string

	createCount    int
	createFlood    *migraterr.Error
	createFloodOn  int // createCount at which createFlood fires (1-indexed), 0 = never

	forwardFloodOnBatch int // 1-indexed batch number across the whole test
	forwardFloodSeconds int
	forwardCalls        int
}

func peerKey(peer any) string {
	if s, ok := peer.(string); ok {
		return s
	}
	return "?"
}

func (f *fakeClient) GetHistory(ctx context.Context, peer any, offsetID int64, limit int) (platform.HistoryPage, error) {
	key := peerKey(peer)
	msgs := f.messages[key]

	var page []tgbotapi.Message
	for _, m := range msgs {
		if offsetID != 0 && int64(m.MessageID) >= offsetID {
			continue
		}
		page = append(page, m)
		if len(page) >= limit {
			break
		}
	}
	return platform.HistoryPage{Messages: page}, nil
}

func (f *fakeClient) ForwardMessages(ctx context.Context, source, dest any, messageIDs []int64, nonces []uint64) (platform.ForwardResult, error) {
	f.forwardCalls++
	if f.forwardFloodOnBatch > 0 && f.forwardCalls == f.forwardFloodOnBatch {
		return platform.ForwardResult{}, migraterr.FloodWait(migraterr.KindMigrationFlood, f.forwardFloodSeconds)
	}
	return platform.ForwardResult{ForwardedIDs: messageIDs}, nil
}

func (f *fakeClient) CreateChannel(ctx context.Context, title, description string) (platform.Entity, error) {
	f.createCount++
	if f.createFloodOn > 0 && f.createCount == f.createFloodOn {
		return platform.Entity{}, f.createFlood
	}
	return platform.Entity{Chat: tgbotapi.Chat{ID: int64(1000 + f.createCount)}}, nil
}

func (f *fakeClient) InviteToChannel(ctx context.Context, dest any, identifier string) error {
	return nil
}

func (f *fakeClient) SendMessage(ctx context.Context, peer any, text string) error {
	return nil
}

func (f *fakeClient) ResolveEntity(ctx context.Context, id string) (platform.Entity, error) {
	return platform.Entity{}, migraterr.New(migraterr.KindNotFound, "not found in fake")
}

func (f *fakeClient) Subscribe(ctx context.Context, convID string, onMessage func(tgbotapi.Message)) (cancel func(), err error) {
	return func() {}, nil
}

func fastEngineConfig() engine.Config {
	return engine.Config{BatchSize: 10, MaxPaginationIterations: 1000}
}

func fastDefaultConfig() Config {
	cfg := DefaultConfig()
	cfg.Engine = fastEngineConfig()
	cfg.Destination.GroupCreationDelayMs = 0
	return cfg
}

func fastLimiter() *ratelimit.Limiter {
	cfg := ratelimit.DefaultConfig()
	cfg.BatchDelay = time.Millisecond
	cfg.MinBatchDelay = time.Millisecond
	return ratelimit.New(cfg)
}

func conv(id string, count int) model.Conversation {
	return model.Conversation{ID: id, AccessHandle: id, Type: model.TypePrivate, DisplayName: "conv-" + id, MessageCount: count}
}

func msgs(ids ...int) []tgbotapi.Message {
	out := make([]tgbotapi.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, tgbotapi.Message{MessageID: id, Date: int(time.Now().Unix())})
	}
	return out
}

func newOrchestrator(client platform.Client, cfg Config) (*Orchestrator, *realtime.Manager, *report.Aggregator) {
	rt := realtime.NewManager(100, 4, nil)
	rp := report.NewAggregator()
	o := New(client, fastLimiter(), rt, rp, cfg)
	return o, rt, rp
}

func TestMigrateOne_HappyPath(t *testing.T) {
	client := &fakeClient{messages: map[string][]tgbotapi.Message{"c1": msgs(5, 4, 3, 2, 1)}}
	cfg := fastDefaultConfig()

	o, _, _ := newOrchestrator(client, cfg)

	p := model.NewEmpty(time.Now(), "A", "B")
	p, brk := o.migrateOne(context.Background(), conv("c1", 5), p, "")

	assert.False(t, brk)
	assert.Equal(t, model.StatusCompleted, p.Dialogs["c1"].Status)
	assert.Equal(t, 5, p.Dialogs["c1"].MigratedCount)
	assert.Equal(t, 1, client.createCount)
}

// TestMigrateOne_ResumesAfterWithinThresholdFloodWait covers spec
// scenario S2: a floodwait under MaxFloodWaitSeconds marks the
// conversation PartiallyMigrated, then a retry completes it.
func TestMigrateOne_ResumesAfterWithinThresholdFloodWait(t *testing.T) {
	client := &fakeClient{
		messages:            map[string][]tgbotapi.Message{"c1": msgs(5, 4, 3, 2, 1)},
		forwardFloodOnBatch: 1,
		forwardFloodSeconds: 1,
	}
	cfg := fastDefaultConfig()
	cfg.Engine.BatchSize = 1 // force multiple batches so the flood only eats the first
	cfg.MaxFloodWaitSeconds = 300

	o, _, rp := newOrchestrator(client, cfg)

	p := model.NewEmpty(time.Now(), "A", "B")
	p, brk := o.migrateOne(context.Background(), conv("c1", 5), p, "")

	require.False(t, brk)
	assert.Equal(t, model.StatusCompleted, p.Dialogs["c1"].Status)
	require.Len(t, p.FloodWaitEvents, 1)
	assert.Equal(t, "forward", p.FloodWaitEvents[0].Operation)
	assert.Equal(t, 1, rp.Summary().TotalEvents)
}

// TestMigrateOne_AboveThresholdFloodWaitBreaksRun covers spec scenario
// S3: a floodwait above MaxFloodWaitSeconds marks PartiallyMigrated,
// notifies the operator, and breaks the outer loop without retrying.
func TestMigrateOne_AboveThresholdFloodWaitBreaksRun(t *testing.T) {
	client := &fakeClient{
		messages:            map[string][]tgbotapi.Message{"c1": msgs(3, 2, 1)},
		forwardFloodOnBatch: 1,
		forwardFloodSeconds: 3600,
	}
	cfg := fastDefaultConfig()
	cfg.Engine.BatchSize = 1
	cfg.MaxFloodWaitSeconds = 300

	o, _, _ := newOrchestrator(client, cfg)

	p := model.NewEmpty(time.Now(), "A", "B")
	p, brk := o.migrateOne(context.Background(), conv("c1", 3), p, "")

	assert.True(t, brk, "above-threshold floodwait must break the run")
	assert.Equal(t, model.StatusPartiallyMigrated, p.Dialogs["c1"].Status)
	require.NotNil(t, p.Dialogs["c1"].LastMessageID)
	assert.Equal(t, 1, client.forwardCalls, "must not retry once above threshold")
}

// TestRunConversations_DailyQuotaBreaksAfterLimit covers spec scenario
// S6: with a daily destination-group quota of 2, a third never-seen
// conversation must not get a destination created for it this run.
func TestRunConversations_DailyQuotaBreaksAfterLimit(t *testing.T) {
	client := &fakeClient{messages: map[string][]tgbotapi.Message{
		"c1": msgs(1),
		"c2": msgs(1),
		"c3": msgs(1),
	}}
	cfg := fastDefaultConfig()
	cfg.DailyGroupLimit = 2

	o, _, _ := newOrchestrator(client, cfg)

	p := model.NewEmpty(time.Now(), "A", "B")
	p = o.RunConversations(context.Background(), []model.Conversation{conv("c1", 1), conv("c2", 1), conv("c3", 1)}, p, "")

	assert.Equal(t, model.StatusCompleted, p.Dialogs["c1"].Status)
	assert.Equal(t, model.StatusCompleted, p.Dialogs["c2"].Status)
	assert.Equal(t, model.StatusPending, p.Dialogs["c3"].Status, "third conversation must not start once the daily quota is reached")
	assert.Nil(t, p.Dialogs["c3"].TargetGroupID)
	assert.Equal(t, 2, client.createCount)
	assert.Equal(t, 2, p.Stats.CompletedDialogs)
}

// TestMigrateOne_SkipsAlreadyCompleted covers the fast-path skip named
// in spec §4.7 step 2.
func TestMigrateOne_SkipsAlreadyCompleted(t *testing.T) {
	client := &fakeClient{messages: map[string][]tgbotapi.Message{"c1": msgs(1)}}
	cfg := fastDefaultConfig()
	o, _, _ := newOrchestrator(client, cfg)

	p := model.NewEmpty(time.Now(), "A", "B")
	p, _ = o.migrateOne(context.Background(), conv("c1", 1), p, "")
	require.Equal(t, model.StatusCompleted, p.Dialogs["c1"].Status)
	createsBefore := client.createCount

	p, brk := o.migrateOne(context.Background(), conv("c1", 1), p, "")
	assert.False(t, brk)
	assert.Equal(t, createsBefore, client.createCount, "a completed conversation must not re-create its destination")
}

// TestMigrateOne_DestinationCreateFailureMarksFailed covers a
// non-floodwait destination-creation error classifying the
// conversation as Failed rather than aborting the run.
func TestMigrateOne_DestinationCreateFailureMarksFailed(t *testing.T) {
	client := &fakeClient{
		messages:      map[string][]tgbotapi.Message{"c1": msgs(1)},
		createFloodOn: 1,
		createFlood:   migraterr.New(migraterr.KindCreateFailed, "permission denied"),
	}
	cfg := fastDefaultConfig()
	o, _, _ := newOrchestrator(client, cfg)

	p := model.NewEmpty(time.Now(), "A", "B")
	p, brk := o.migrateOne(context.Background(), conv("c1", 1), p, "")

	assert.False(t, brk)
	assert.Equal(t, model.StatusFailed, p.Dialogs["c1"].Status)
	require.Len(t, p.Dialogs["c1"].Errors, 1)
}
