// Package realtime captures messages that arrive on a conversation
// while its history is being paged, so the batch migration never loses
// the race between "still paging" and "a new message lands" (spec §4.6).
package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
)

const (
	defaultMaxQueueSize       = 1000
	defaultMaxConcurrentDrain = 4
	maxRetryCount             = 3
)

// Subscriber is the subset of platform.Client StartListening needs.
type Subscriber interface {
	Subscribe(ctx context.Context, convID string, onMessage func(tgbotapi.Message)) (cancel func(), err error)
}

// Forwarder forwards a single queued message to destID; implementations
// typically wrap platform.Client.ForwardMessages for a one-message batch.
type Forwarder func(ctx context.Context, destID string, msg model.QueuedMessage) error

// OverflowFunc is invoked when a conversation's queue overflows
// maxQueueSize and the oldest entry is evicted.
type OverflowFunc func(convID string, droppedCount int)

// ProcessResult is the outcome of one ProcessQueue drain (spec §4.6).
type ProcessResult struct {
	SuccessCount int
	FailedCount  int
	SkippedCount int
	FailedIDs    []int64
	FloodWait    *migraterr.Error
}

// Manager owns one queue and one listener per conversation. Lookup and
// enqueue are O(1); per-conversation queues never share storage (spec
// §4.6 invariant).
type Manager struct {
	mu           sync.Mutex
	queues       map[string][]model.QueuedMessage
	destinations map[string]string
	cancels      map[string]func()

	maxQueueSize int
	onOverflow   OverflowFunc

	activeListeners int
	drainSem        *semaphore.Weighted
}

// NewManager builds a Manager with the given queue cap and the number
// of ProcessQueue drains allowed to run concurrently, bounding how far
// tail-sync can fan out (spec §5).
func NewManager(maxQueueSize int, maxConcurrentDrains int64, onOverflow OverflowFunc) *Manager {
	if maxQueueSize <= 0 {
		maxQueueSize = defaultMaxQueueSize
	}
	if maxConcurrentDrains <= 0 {
		maxConcurrentDrains = defaultMaxConcurrentDrain
	}
	return &Manager{
		queues:       make(map[string][]model.QueuedMessage),
		destinations: make(map[string]string),
		cancels:      make(map[string]func()),
		maxQueueSize: maxQueueSize,
		onOverflow:   onOverflow,
		drainSem:     semaphore.NewWeighted(maxConcurrentDrains),
	}
}

// ActiveListeners returns the current count of registered listeners.
func (m *Manager) ActiveListeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeListeners
}

// StartListening registers a new-message handler scoped to convID.
// Re-registering replaces the previous handler for that id.
func (m *Manager) StartListening(ctx context.Context, client Subscriber, convID string) *migraterr.Error {
	m.mu.Lock()
	if prevCancel, ok := m.cancels[convID]; ok {
		prevCancel()
		m.activeListeners--
	}
	m.mu.Unlock()

	cancel, err := client.Subscribe(ctx, convID, func(msg tgbotapi.Message) {
		m.Enqueue(convID, model.QueuedMessage{
			MessageID:  int64(msg.MessageID),
			CapturedAt: captureTime(msg),
			Payload:    msg,
		})
	})
	if err != nil {
		return migraterr.Wrap(migraterr.KindListenerInitFailed, "subscribing to "+convID, err)
	}

	m.mu.Lock()
	m.cancels[convID] = cancel
	if _, ok := m.queues[convID]; !ok {
		m.queues[convID] = nil
	}
	m.activeListeners++
	m.mu.Unlock()
	return nil
}

// RegisterMapping records the forwarding target for convID.
func (m *Manager) RegisterMapping(convID, destID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destinations[convID] = destID
}

// Enqueue appends msg to convID's queue, evicting the oldest entry and
// reporting an overflow event when the queue is at capacity.
func (m *Manager) Enqueue(convID string, msg model.QueuedMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[convID]
	if len(q) >= m.maxQueueSize {
		dropped := len(q) - m.maxQueueSize + 1
		q = q[dropped:]
		if m.onOverflow != nil {
			m.onOverflow(convID, dropped)
		}
	}
	m.queues[convID] = append(q, msg)
}

// StopListening unregisters the handler, clears the queue and mapping,
// and decrements the active-listener counter. Safe on unknown ids.
func (m *Manager) StopListening(convID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cancel, ok := m.cancels[convID]; ok {
		cancel()
		delete(m.cancels, convID)
		m.activeListeners--
	}
	delete(m.queues, convID)
	delete(m.destinations, convID)
}

// ProcessQueue drains convID's queue in ascending message-id order.
// Messages at or below lastBatchMessageID are treated as already
// migrated and counted as skipped. A floodwait during drain stops
// immediately, leaving unprocessed entries (including the one that
// floodwaited) queued for the next attempt.
func (m *Manager) ProcessQueue(ctx context.Context, forward Forwarder, convID string, lastBatchMessageID int64) ProcessResult {
	if err := m.drainSem.Acquire(ctx, 1); err != nil {
		return ProcessResult{}
	}
	defer m.drainSem.Release(1)

	m.mu.Lock()
	destID := m.destinations[convID]
	queue := append([]model.QueuedMessage(nil), m.queues[convID]...)
	m.mu.Unlock()

	sort.Slice(queue, func(i, j int) bool { return queue[i].MessageID < queue[j].MessageID })

	var result ProcessResult
	var remaining []model.QueuedMessage

	for i, msg := range queue {
		if msg.MessageID <= lastBatchMessageID {
			result.SkippedCount++
			continue
		}

		if err := forward(ctx, destID, msg); err != nil {
			if me, ok := migraterr.As(err); ok && me.IsFloodWait() {
				result.FloodWait = me
				remaining = append(remaining, queue[i:]...)
				break
			}

			msg.RetryCount++
			if msg.RetryCount >= maxRetryCount {
				result.FailedCount++
				result.FailedIDs = append(result.FailedIDs, msg.MessageID)
				continue
			}
			remaining = append(remaining, msg)
			continue
		}

		result.SuccessCount++
	}

	m.mu.Lock()
	m.queues[convID] = remaining
	m.mu.Unlock()

	return result
}

// captureTime extracts a best-effort capture timestamp from the
// platform message's own Date field.
func captureTime(msg tgbotapi.Message) time.Time {
	return time.Unix(int64(msg.Date), 0)
}
