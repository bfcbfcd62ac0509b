package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(queueSize int) *Bus {
	cfg := DefaultConfig()
	if queueSize > 0 {
		cfg.QueueSize = queueSize
	}
	return New(cfg)
}

func TestBus_PublishDelivers(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	received := make(chan *Message, 1)
	require.NoError(t, b.Subscribe("executor", func(msg *Message) {
		received <- msg
	}))

	msg := NewMessage(TypeToolRequest, "coordinator", "executor", ToolRequest{ToolName: "multiply"})
	require.NoError(t, b.Publish(msg))

	select {
	case got := <-received:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, StatusDelivered, got.Status)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBus_PublishUnknownRecipient(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	err := b.Publish(NewMessage(TypeToolRequest, "a", "nobody", nil))
	assert.ErrorIs(t, err, ErrNoSubscriber)
}

func TestBus_DuplicateSubscribe(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	require.NoError(t, b.Subscribe("agent", func(*Message) {}))
	assert.ErrorIs(t, b.Subscribe("agent", func(*Message) {}), ErrAlreadySubscribed)
}

func TestBus_FullQueueRejectsNew(t *testing.T) {
	b := newTestBus(2)
	defer b.Close()

	block := make(chan struct{})
	require.NoError(t, b.Subscribe("slow", func(*Message) {
		<-block
	}))

	// First message is picked up by the consumer and blocks the handler.
	require.NoError(t, b.Publish(NewMessage(TypeToolRequest, "a", "slow", nil)))
	time.Sleep(50 * time.Millisecond)

	// The next two fill the queue.
	require.NoError(t, b.Publish(NewMessage(TypeToolRequest, "a", "slow", nil)))
	require.NoError(t, b.Publish(NewMessage(TypeToolRequest, "a", "slow", nil)))

	before := b.Stats().QueueDepth["slow"]
	err := b.Publish(NewMessage(TypeToolRequest, "a", "slow", nil))
	assert.ErrorIs(t, err, ErrBusFull)
	assert.Equal(t, before, b.Stats().QueueDepth["slow"])

	close(block)
}

func TestBus_RequestResponse(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	require.NoError(t, b.Subscribe("executor", func(msg *Message) {
		result := NewMessage(TypeToolResult, "executor", msg.SenderID, ToolResult{
			ToolName: "multiply",
			Success:  true,
			Value:    345.0,
		})
		result.CorrelationID = msg.CorrelationID
		require.NoError(t, b.Publish(result))
	}))

	req := NewMessage(TypeToolRequest, "coordinator", "executor", ToolRequest{ToolName: "multiply"})
	resp, err := b.Request(context.Background(), req, time.Second)

	require.NoError(t, err)
	payload, ok := resp.ToolResultPayload()
	require.True(t, ok)
	assert.True(t, payload.Success)
	assert.Equal(t, 345.0, payload.Value)
}

func TestBus_RequestTimeout(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	require.NoError(t, b.Subscribe("executor", func(*Message) {
		// never responds
	}))

	start := time.Now()
	req := NewMessage(TypeToolRequest, "coordinator", "executor", nil)
	_, err := b.Request(context.Background(), req, 100*time.Millisecond)

	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestBus_CancelDiscardsLateResult(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	received := make(chan *Message, 1)
	require.NoError(t, b.Subscribe("coordinator", func(msg *Message) {
		received <- msg
	}))

	correlations := make(chan string, 1)
	require.NoError(t, b.Subscribe("executor", func(msg *Message) {
		correlations <- msg.CorrelationID
		// never responds
	}))

	done := make(chan error, 1)
	go func() {
		req := NewMessage(TypeToolRequest, "coordinator", "executor", nil)
		_, err := b.Request(context.Background(), req, time.Second)
		done <- err
	}()

	correlationID := <-correlations
	b.Cancel(correlationID)
	require.ErrorIs(t, <-done, ErrRequestCancelled)
	assert.True(t, b.IsCancelled(correlationID))

	late := NewMessage(TypeToolResult, "executor", "coordinator", ToolResult{ToolName: "multiply"})
	late.CorrelationID = correlationID
	require.NoError(t, b.Publish(late))

	select {
	case <-received:
		t.Fatal("late result was delivered to the recipient queue")
	case <-time.After(150 * time.Millisecond):
	}

	assert.GreaterOrEqual(t, b.Stats().Dropped, uint64(1))
}

func TestBus_CancelUnblocksInFlightRequest(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	correlations := make(chan string, 1)
	require.NoError(t, b.Subscribe("executor", func(msg *Message) {
		correlations <- msg.CorrelationID
		// never responds
	}))

	done := make(chan error, 1)
	go func() {
		req := NewMessage(TypeToolRequest, "coordinator", "executor", nil)
		_, err := b.Request(context.Background(), req, 5*time.Second)
		done <- err
	}()

	// Cancel well before the request timeout; the caller must return
	// promptly instead of sleeping out the full window.
	correlationID := <-correlations
	start := time.Now()
	b.Cancel(correlationID)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRequestCancelled)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("Request did not return after its correlation was cancelled")
	}
}

func TestBus_DuplicateResponseDropped(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	require.NoError(t, b.Subscribe("executor", func(msg *Message) {
		// Respond twice with the same correlation ID; only one may resolve.
		for i := 0; i < 2; i++ {
			result := NewMessage(TypeToolResult, "executor", msg.SenderID, ToolResult{Success: true})
			result.CorrelationID = msg.CorrelationID
			_ = b.Publish(result)
		}
	}))

	req := NewMessage(TypeToolRequest, "coordinator", "executor", nil)
	resp, err := b.Request(context.Background(), req, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)

	// The duplicate lands in the dropped counter, never in a queue.
	assert.Eventually(t, func() bool {
		return b.Stats().Dropped >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestBus_PerRecipientFIFO(t *testing.T) {
	b := newTestBus(128)
	defer b.Close()

	var mu sync.Mutex
	var order []int
	require.NoError(t, b.Subscribe("agent", func(msg *Message) {
		mu.Lock()
		order = append(order, msg.Payload.(int))
		mu.Unlock()
	}))

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish(NewMessage(TypeHeartbeat, "a", "agent", i)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 50
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestBus_Broadcast(t *testing.T) {
	b := newTestBus(0)
	defer b.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	for _, id := range []string{"one", "two"} {
		require.NoError(t, b.Subscribe(id, func(*Message) {
			wg.Done()
		}))
	}

	require.NoError(t, b.Publish(NewBroadcast(TypeHeartbeat, "registry", nil)))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast did not reach all subscribers")
	}
}

func TestBus_History(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 5
	b := New(cfg)
	defer b.Close()

	require.NoError(t, b.Subscribe("agent", func(*Message) {}))

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(NewMessage(TypeHeartbeat, "a", "agent", i)))
	}

	assert.Eventually(t, func() bool {
		return b.Stats().Delivered == 10
	}, time.Second, 10*time.Millisecond)

	history := b.History(0)
	require.Len(t, history, 5)
	// Oldest entries evicted first.
	assert.Equal(t, 5, history[0].Payload.(int))
	assert.Equal(t, 9, history[4].Payload.(int))

	assert.Len(t, b.History(2), 2)
}

func TestBus_ClosedRejectsPublish(t *testing.T) {
	b := newTestBus(0)
	require.NoError(t, b.Close())

	err := b.Publish(NewMessage(TypeHeartbeat, "a", "b", nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBus_ConcurrentRequestsDistinctCorrelations(t *testing.T) {
	b := newTestBus(128)
	defer b.Close()

	require.NoError(t, b.Subscribe("executor", func(msg *Message) {
		req, _ := msg.ToolRequestPayload()
		result := NewMessage(TypeToolResult, "executor", msg.SenderID, ToolResult{
			ToolName: req.ToolName,
			Success:  true,
			Value:    req.Parameters["n"],
		})
		result.CorrelationID = msg.CorrelationID
		_ = b.Publish(result)
	}))

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := NewMessage(TypeToolRequest, "coordinator", "executor", ToolRequest{
				ToolName:   "echo",
				Parameters: map[string]interface{}{"n": n},
			})
			resp, err := b.Request(context.Background(), req, 2*time.Second)
			require.NoError(t, err)

			payload, ok := resp.ToolResultPayload()
			require.True(t, ok)
			// Each request must get back its own value.
			assert.Equal(t, n, payload.Value)

			_, dup := seen.LoadOrStore(resp.CorrelationID, true)
			assert.False(t, dup, "correlation id reused")
		}(i)
	}
	wg.Wait()
}
