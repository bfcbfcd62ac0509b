package agent

import (
	"context"
	"testing"
	"time"

	"github.com/nanda/kirana/pkg/bus"
	"github.com/nanda/kirana/pkg/registry"
	"github.com/nanda/kirana/pkg/toolkit"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHarness(t *testing.T) (*bus.Bus, *registry.Registry, *toolkit.Manager) {
	t.Helper()

	b := bus.New(bus.Config{Logger: zerolog.Nop()})
	r := registry.New(zerolog.Nop())
	m := toolkit.NewManager()
	require.NoError(t, toolkit.RegisterBuiltinToolkits(m))

	t.Cleanup(func() { _ = b.Close() })
	return b, r, m
}

func startExecutor(t *testing.T, b *bus.Bus, r *registry.Registry, m *toolkit.Manager) *Executor {
	t.Helper()

	ex := NewExecutor(ExecutorConfig{Logger: zerolog.Nop()}, b, m, r)
	require.NoError(t, ex.Start())
	t.Cleanup(ex.Close)
	return ex
}

func TestExecutor_ExecutesToolRequest(t *testing.T) {
	b, r, m := newHarness(t)
	ex := startExecutor(t, b, r, m)

	msg := bus.NewMessage(bus.TypeToolRequest, "caller", ex.ID(), bus.ToolRequest{
		ToolName:   "multiply",
		Parameters: map[string]interface{}{"a": 15.0, "b": 23.0},
	})
	resp, err := b.Request(context.Background(), msg, 2*time.Second)
	require.NoError(t, err)

	result, ok := resp.ToolResultPayload()
	require.True(t, ok)
	assert.True(t, result.Success)
	assert.Equal(t, 345.0, result.Value)
	assert.Equal(t, "multiply", result.ToolName)

	stats := ex.Stats()
	assert.Equal(t, uint64(1), stats.Processed)
	assert.Equal(t, uint64(1), stats.Succeeded)
}

func TestExecutor_UnknownToolFailsFast(t *testing.T) {
	b, r, m := newHarness(t)
	ex := startExecutor(t, b, r, m)

	before := m.AggregateStats()

	msg := bus.NewMessage(bus.TypeToolRequest, "caller", ex.ID(), bus.ToolRequest{
		ToolName: "nonexistent",
	})
	resp, err := b.Request(context.Background(), msg, 2*time.Second)
	require.NoError(t, err)

	result, ok := resp.ToolResultPayload()
	require.True(t, ok)
	assert.False(t, result.Success)
	assert.Equal(t, string(toolkit.KindToolNotFound), result.ErrorKind)

	// An unknown tool never touches the manager's counters.
	assert.Equal(t, before, m.AggregateStats())
}

func TestExecutor_SkipsCancelledRequest(t *testing.T) {
	b, r, m := newHarness(t)
	ex := startExecutor(t, b, r, m)

	correlationID := bus.NewCorrelationID()
	b.Cancel(correlationID)

	msg := bus.NewMessage(bus.TypeToolRequest, "caller", ex.ID(), bus.ToolRequest{
		ToolName:   "add",
		Parameters: map[string]interface{}{"a": 1.0, "b": 2.0},
	})
	msg.CorrelationID = correlationID
	require.NoError(t, b.Publish(msg))

	require.Eventually(t, func() bool {
		return ex.Stats().Skipped == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), ex.Stats().Processed)
}

func TestExecutor_CapabilitiesDerivedFromTools(t *testing.T) {
	b, r, m := newHarness(t)
	ex := startExecutor(t, b, r, m)

	profile, ok := r.Get(ex.ID())
	require.True(t, ok)

	assert.Equal(t, registry.RoleToolExecutor, profile.Role)
	for _, c := range []registry.Capability{
		registry.CapabilityToolCalling,
		registry.CapabilityMath,
		registry.CapabilitySearch,
		registry.CapabilityCodeExecution,
	} {
		assert.True(t, profile.HasCapability(c), string(c))
	}
}

func TestExecutor_DuplicateStartRejected(t *testing.T) {
	b, r, m := newHarness(t)
	startExecutor(t, b, r, m)

	dup := NewExecutor(ExecutorConfig{Logger: zerolog.Nop()}, b, m, r)
	assert.Error(t, dup.Start())
}
