package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nanda/kirana/internal/observability"
	"github.com/rs/zerolog"
)

// Handler processes messages delivered to a subscriber
type Handler func(msg *Message)

// Config holds message bus configuration
type Config struct {
	QueueSize   int // bounded per-recipient queue capacity
	HistorySize int // delivered-message retention bound
	Logger      zerolog.Logger
}

// DefaultConfig returns default bus configuration
func DefaultConfig() Config {
	return Config{
		QueueSize:   64,
		HistorySize: 1000,
	}
}

// Stats is a point-in-time snapshot of bus state
type Stats struct {
	Subscribers int
	QueueDepth  map[string]int
	Delivered   uint64
	Dropped     uint64
	HistorySize int
}

type subscriber struct {
	id      string
	handler Handler
	queue   chan *Message
}

// Bus routes messages between agents. Delivery is FIFO per recipient; no
// ordering holds across recipients or correlation IDs.
type Bus struct {
	queueSize   int
	historySize int
	logger      zerolog.Logger

	mu          sync.Mutex
	subscribers map[string]*subscriber
	waiters     map[string]chan *Message
	resolved    map[string]time.Time // correlation IDs whose waiter is gone; late results dropped
	closed      bool

	histMu    sync.Mutex
	history   []*Message
	delivered uint64
	dropped   uint64

	wg sync.WaitGroup
}

// resolvedRetention bounds how long cancelled/answered correlation IDs are
// remembered for duplicate suppression.
const resolvedRetention = 5 * time.Minute

// New creates a message bus
func New(cfg Config) *Bus {
	observability.EnsureRegistered()

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}

	return &Bus{
		queueSize:   cfg.QueueSize,
		historySize: cfg.HistorySize,
		logger:      cfg.Logger,
		subscribers: make(map[string]*subscriber),
		waiters:     make(map[string]chan *Message),
		resolved:    make(map[string]time.Time),
	}
}

// Subscribe registers the single active handler for an agent ID and starts
// its consumer loop. Messages for one recipient are handled in FIFO order.
func (b *Bus) Subscribe(agentID string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.subscribers[agentID]; exists {
		return ErrAlreadySubscribed
	}

	sub := &subscriber{
		id:      agentID,
		handler: handler,
		queue:   make(chan *Message, b.queueSize),
	}
	b.subscribers[agentID] = sub

	b.wg.Add(1)
	go b.consume(sub)

	b.logger.Debug().Str("agentId", agentID).Msg("Subscriber registered")
	return nil
}

// Unsubscribe removes an agent's handler and stops its consumer loop
func (b *Bus) Unsubscribe(agentID string) {
	b.mu.Lock()
	sub, exists := b.subscribers[agentID]
	if exists {
		delete(b.subscribers, agentID)
	}
	b.mu.Unlock()

	if exists {
		close(sub.queue)
		b.logger.Debug().Str("agentId", agentID).Msg("Subscriber removed")
	}
}

// Publish enqueues a message onto the recipient's bounded queue, or all
// queues for a broadcast. A full recipient queue rejects the new message
// with ErrBusFull; nothing is silently dropped for direct sends.
//
// Response-kind messages with a pending waiter resolve the waiter directly
// and bypass queue delivery.
func (b *Bus) Publish(msg *Message) error {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	// Match a pending request waiter first. The waiter is one-shot: the
	// first response wins, later duplicates are discarded below.
	if msg.Type.IsResponse() && msg.CorrelationID != "" {
		if ch, ok := b.waiters[msg.CorrelationID]; ok {
			delete(b.waiters, msg.CorrelationID)
			b.markResolvedLocked(msg.CorrelationID)
			b.mu.Unlock()

			msg.Status = StatusDelivered
			b.recordDelivered(msg)
			ch <- msg
			observability.RecordBusPublish(string(msg.Type))
			return nil
		}
		if _, gone := b.resolved[msg.CorrelationID]; gone {
			b.mu.Unlock()

			b.histMu.Lock()
			b.dropped++
			b.histMu.Unlock()
			observability.RecordBusDropped("stale_correlation")
			b.logger.Debug().
				Str("correlationId", msg.CorrelationID).
				Str("type", string(msg.Type)).
				Msg("Discarded late result for resolved correlation")
			return nil
		}
	}

	if msg.Broadcast {
		err := b.broadcastLocked(msg)
		b.mu.Unlock()
		observability.RecordBusPublish(string(msg.Type))
		return err
	}

	sub, ok := b.subscribers[msg.RecipientID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSubscriber, msg.RecipientID)
	}

	select {
	case sub.queue <- msg:
		depth := len(sub.queue)
		b.mu.Unlock()
		observability.RecordBusPublish(string(msg.Type))
		observability.SetBusQueueDepth(msg.RecipientID, depth)
		return nil
	default:
		b.mu.Unlock()
		b.logger.Warn().
			Str("recipient", msg.RecipientID).
			Str("type", string(msg.Type)).
			Msg("Recipient queue full, rejecting message")
		return fmt.Errorf("%w: %s", ErrBusFull, msg.RecipientID)
	}
}

// broadcastLocked fans a message out to every subscriber queue. Full queues
// skip the message and count it as dropped; broadcast is best-effort.
func (b *Bus) broadcastLocked(msg *Message) error {
	for _, sub := range b.subscribers {
		select {
		case sub.queue <- msg:
		default:
			b.histMu.Lock()
			b.dropped++
			b.histMu.Unlock()
			observability.RecordBusDropped("queue_full")
			b.logger.Warn().
				Str("recipient", sub.id).
				Msg("Broadcast skipped full queue")
		}
	}
	return nil
}

// Request publishes a message and blocks until a response-kind message with
// the same correlation ID arrives, the timeout elapses, or ctx is done.
// Implemented with a one-shot waiter; no polling.
func (b *Bus) Request(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error) {
	if msg.CorrelationID == "" {
		msg.CorrelationID = NewCorrelationID()
	}

	ch := make(chan *Message, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := b.waiters[msg.CorrelationID]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCorrelationInUse, msg.CorrelationID)
	}
	b.waiters[msg.CorrelationID] = ch
	b.mu.Unlock()

	if err := b.Publish(msg); err != nil {
		b.removeWaiter(msg.CorrelationID)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%w: correlation %s", ErrRequestCancelled, msg.CorrelationID)
		}
		return resp, nil
	case <-timer.C:
		if resp, resolved := b.abandonWaiter(msg.CorrelationID, ch); resolved {
			return resp, nil
		}
		return nil, fmt.Errorf("%w: correlation %s after %v", ErrResponseTimeout, msg.CorrelationID, timeout)
	case <-ctx.Done():
		if resp, resolved := b.abandonWaiter(msg.CorrelationID, ch); resolved {
			return resp, nil
		}
		return nil, ctx.Err()
	}
}

// abandonWaiter removes a waiter on timeout or ctx expiry. If the waiter was
// already resolved concurrently, the response sitting in ch is returned
// instead so it is never lost to the race; a closed ch means Cancel got
// there first and there is no response to wait for.
func (b *Bus) abandonWaiter(correlationID string, ch chan *Message) (*Message, bool) {
	b.mu.Lock()
	if _, ok := b.waiters[correlationID]; ok {
		delete(b.waiters, correlationID)
		b.markResolvedLocked(correlationID)
		b.mu.Unlock()
		return nil, false
	}
	b.mu.Unlock()

	resp, ok := <-ch
	if !ok {
		return nil, false
	}
	return resp, true
}

// Cancel removes any pending waiter for a correlation ID and wakes its
// Request caller with ErrRequestCancelled. A result arriving afterwards is
// discarded; the underlying work may still run to completion.
func (b *Bus) Cancel(correlationID string) {
	b.mu.Lock()
	ch, waiting := b.waiters[correlationID]
	if waiting {
		delete(b.waiters, correlationID)
	}
	b.markResolvedLocked(correlationID)
	b.mu.Unlock()

	// The only sender is Publish, which sends strictly after removing the
	// waiter under the lock; once the entry is gone here no send can race
	// the close.
	if waiting {
		close(ch)
	}

	b.logger.Debug().Str("correlationId", correlationID).Msg("Correlation cancelled")
}

// IsCancelled reports whether a correlation ID no longer has a live waiter.
// Executors use this to stop reporting for cancelled work.
func (b *Bus) IsCancelled(correlationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, waiting := b.waiters[correlationID]; waiting {
		return false
	}
	_, gone := b.resolved[correlationID]
	return gone
}

// removeWaiter drops a waiter without marking the correlation resolved,
// used when the initial publish itself failed.
func (b *Bus) removeWaiter(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.waiters, correlationID)
}

// markResolvedLocked records a correlation ID as done and prunes old entries.
func (b *Bus) markResolvedLocked(correlationID string) {
	now := time.Now()
	b.resolved[correlationID] = now

	cutoff := now.Add(-resolvedRetention)
	for id, at := range b.resolved {
		if at.Before(cutoff) {
			delete(b.resolved, id)
		}
	}
}

// consume drains a subscriber's queue in order
func (b *Bus) consume(sub *subscriber) {
	defer b.wg.Done()

	for msg := range sub.queue {
		msg.Status = StatusDelivered
		b.recordDelivered(msg)
		observability.SetBusQueueDepth(sub.id, len(sub.queue))
		sub.handler(msg)
	}
}

// recordDelivered appends a delivered message to the bounded history
func (b *Bus) recordDelivered(msg *Message) {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	b.delivered++
	b.history = append(b.history, msg)
	if len(b.history) > b.historySize {
		// evict oldest first
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns the most recent delivered messages, newest last, capped
// by limit and by the retention bound.
func (b *Bus) History(limit int) []*Message {
	b.histMu.Lock()
	defer b.histMu.Unlock()

	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}

	out := make([]*Message, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// Stats returns a snapshot of bus state
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	depth := make(map[string]int, len(b.subscribers))
	for id, sub := range b.subscribers {
		depth[id] = len(sub.queue)
	}
	subscribers := len(b.subscribers)
	b.mu.Unlock()

	b.histMu.Lock()
	defer b.histMu.Unlock()

	return Stats{
		Subscribers: subscribers,
		QueueDepth:  depth,
		Delivered:   b.delivered,
		Dropped:     b.dropped,
		HistorySize: len(b.history),
	}
}

// Close stops all consumer loops and rejects further publishes
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Debug().Msg("Message bus closed")
	return nil
}
