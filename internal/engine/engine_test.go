package engine

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/platform"
	"github.com/hrygo/tgmigrate/internal/ratelimit"
)

// fakeClient simulates a source with ids [1..N], paginated newest
// first, and a forwarding side that can be told to floodwait on a
// given batch index.
type fakeClient struct {
	allIDs         []int64 // ascending, simulates the whole conversation
	floodOnBatch   int     // -1 = never; forwarded-batch index (0-based) that floods
	floodSeconds   int
	forwardCalls   [][]int64
}

func (f *fakeClient) GetHistory(ctx context.Context, peer any, offsetID int64, limit int) (platform.HistoryPage, error) {
	// newest-first page ending just below offsetID (0 means "start at the top")
	var below []int64
	for _, id := range f.allIDs {
		if offsetID == 0 || id < offsetID {
			below = append(below, id)
		}
	}
	// sort descending (newest first)
	for i, j := 0, len(below)-1; i < j; i, j = i+1, j-1 {
		below[i], below[j] = below[j], below[i]
	}

	if len(below) > limit {
		below = below[:limit]
	}

	msgs := make([]tgbotapi.Message, 0, len(below))
	for _, id := range below {
		msgs = append(msgs, tgbotapi.Message{MessageID: int(id), Date: int(id)})
	}
	return platform.HistoryPage{Messages: msgs}, nil
}

func (f *fakeClient) ForwardMessages(ctx context.Context, source, dest any, messageIDs []int64, nonces []uint64) (platform.ForwardResult, error) {
	idx := len(f.forwardCalls)
	f.forwardCalls = append(f.forwardCalls, append([]int64(nil), messageIDs...))
	if idx == f.floodOnBatch {
		return platform.ForwardResult{}, migraterr.FloodWait(migraterr.KindMigrationFlood, f.floodSeconds)
	}
	return platform.ForwardResult{ForwardedIDs: messageIDs}, nil
}

func idsUpTo(n int64) []int64 {
	ids := make([]int64, 0, n)
	for i := int64(1); i <= n; i++ {
		ids = append(ids, i)
	}
	return ids
}

func newLimiter() *ratelimit.Limiter {
	cfg := ratelimit.DefaultConfig()
	cfg.BatchDelay = time.Millisecond
	cfg.Adaptive = false
	return ratelimit.New(cfg)
}

// TestMigrateConversation_HappyPath covers spec scenario S1's per-
// conversation shape: ids forwarded in ascending order, one batch.
func TestMigrateConversation_HappyPath(t *testing.T) {
	client := &fakeClient{allIDs: []int64{10, 11, 12}, floodOnBatch: -1}
	limiter := newLimiter()

	result := MigrateConversation(context.Background(), client, limiter, "src", "dst", DefaultConfig(), nil, nil)

	require.Empty(t, result.Errors)
	assert.Equal(t, 3, result.MigratedCount)
	assert.Equal(t, []int64{10, 11, 12}, client.forwardCalls[0])
	require.NotNil(t, result.LastMigratedMessageID)
	assert.Equal(t, int64(12), *result.LastMigratedMessageID)
}

// TestMigrateConversation_ForwardOrdering covers spec §8: for ids
// [1..N], the forwarded sequence is exactly 1..N regardless of
// batchSize.
func TestMigrateConversation_ForwardOrdering(t *testing.T) {
	for _, batchSize := range []int{1, 7, 100, 1000} {
		client := &fakeClient{allIDs: idsUpTo(250), floodOnBatch: -1}
		cfg := DefaultConfig()
		cfg.BatchSize = batchSize
		limiter := newLimiter()

		result := MigrateConversation(context.Background(), client, limiter, "src", "dst", cfg, nil, nil)

		require.Empty(t, result.Errors)
		assert.Equal(t, 250, result.MigratedCount)

		var got []int64
		for _, batch := range client.forwardCalls {
			got = append(got, batch...)
		}
		assert.Equal(t, idsUpTo(250), got)
	}
}

// TestMigrateConversation_FloodWaitStopsForwarding covers spec
// scenario S3: a batch-2 floodwait yields a partial result with the
// last successful id intact.
func TestMigrateConversation_FloodWaitStopsForwarding(t *testing.T) {
	client := &fakeClient{allIDs: idsUpTo(250), floodOnBatch: 1, floodSeconds: 3600} // batch size 100 -> batch 1 is ids 101..200
	limiter := newLimiter()

	var events []ProgressEvent
	result := MigrateConversation(context.Background(), client, limiter, "src", "dst", DefaultConfig(), func(e ProgressEvent) {
		events = append(events, e)
	}, nil)

	require.NotNil(t, result.FloodWait)
	assert.Equal(t, 3600, result.FloodWait.Seconds)
	assert.Equal(t, 100, result.MigratedCount, "only the first batch completed before the floodwait")
	require.NotNil(t, result.LastMigratedMessageID)
	assert.Equal(t, int64(100), *result.LastMigratedMessageID)
	assert.Contains(t, []string{"flood_wait"}, events[len(events)-1].Kind)
}

// TestMigrateConversation_ResumeSkipsAlreadyForwarded covers spec §8
// resume correctness: resuming from K forwards K+1..N next.
func TestMigrateConversation_ResumeSkipsAlreadyForwarded(t *testing.T) {
	client := &fakeClient{allIDs: idsUpTo(250), floodOnBatch: -1}
	limiter := newLimiter()
	resumeFrom := int64(200)

	result := MigrateConversation(context.Background(), client, limiter, "src", "dst", DefaultConfig(), nil, &resumeFrom)

	require.Empty(t, result.Errors)
	assert.Equal(t, 50, result.MigratedCount)
	assert.Equal(t, idsUpTo(250)[200:], client.forwardCalls[0])
}

// TestMigrateConversation_BatchFailureContinues covers spec §4.3/§7:
// a non-floodwait batch failure counts as failed but subsequent
// batches still forward.
type failingThenOKClient struct {
	fakeClient
	failBatch int
}

func (f *failingThenOKClient) ForwardMessages(ctx context.Context, source, dest any, messageIDs []int64, nonces []uint64) (platform.ForwardResult, error) {
	idx := len(f.forwardCalls)
	f.forwardCalls = append(f.forwardCalls, append([]int64(nil), messageIDs...))
	if idx == f.failBatch {
		return platform.ForwardResult{}, migraterr.New(migraterr.KindForwardFailed, "rejected")
	}
	return platform.ForwardResult{ForwardedIDs: messageIDs}, nil
}

func TestMigrateConversation_BatchFailureContinuesToNextBatch(t *testing.T) {
	client := &failingThenOKClient{fakeClient: fakeClient{allIDs: idsUpTo(250)}, failBatch: 0}
	limiter := newLimiter()
	cfg := DefaultConfig()

	result := MigrateConversation(context.Background(), client, limiter, "src", "dst", cfg, nil, nil)

	assert.Equal(t, 150, result.MigratedCount, "batches after the failed one still forward")
	assert.Equal(t, 100, result.FailedCount, "whole failed batch counts, per spec design note")
	assert.Len(t, result.Errors, 1)
}

func TestFilterByDate_DoesNotAffectPagination(t *testing.T) {
	raw := []rawMessage{{ID: 1, Date: 100}, {ID: 2, Date: 200}, {ID: 3, Date: 300}}
	min := int64(150)
	cfg := Config{MinDate: &min}
	out := filterByDate(raw, cfg)
	assert.Len(t, out, 2)
}
