package toolkit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	require.NoError(t, RegisterBuiltinToolkits(m))
	return m
}

func TestManager_MultiplyDeterministic(t *testing.T) {
	m := newTestManager(t)

	result := m.Execute(context.Background(), "multiply", map[string]interface{}{
		"a": 15.0,
		"b": 23.0,
	}, time.Second)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, 345.0, result.Value)
	assert.Equal(t, KindNone, result.ErrorKind)

	stats, ok := m.GetStats("multiply")
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.TotalCalls)
	assert.Equal(t, uint64(1), stats.SuccessCount)
}

func TestManager_DivideByZero(t *testing.T) {
	m := newTestManager(t)

	result := m.Execute(context.Background(), "divide", map[string]interface{}{
		"a": 1.0,
		"b": 0.0,
	}, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, KindExecutionError, result.ErrorKind)
}

func TestManager_UnknownToolLeavesStatsUntouched(t *testing.T) {
	m := newTestManager(t)

	before := m.AggregateStats()
	result := m.Execute(context.Background(), "nonexistent", map[string]interface{}{}, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, KindToolNotFound, result.ErrorKind)
	assert.Equal(t, before, m.AggregateStats())
}

func TestManager_DuplicateRegistration(t *testing.T) {
	m := newTestManager(t)

	err := m.Register(Definition{
		Name:        "multiply",
		Category:    CategoryMath,
		Description: "duplicate",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	})
	assert.ErrorIs(t, err, ErrDuplicateTool)
}

func TestManager_Unregister(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Unregister("multiply"))
	_, ok := m.Get("multiply")
	assert.False(t, ok)

	result := m.Execute(context.Background(), "multiply", map[string]interface{}{
		"a": 1.0,
		"b": 2.0,
	}, time.Second)
	assert.Equal(t, KindToolNotFound, result.ErrorKind)

	assert.ErrorIs(t, m.Unregister("multiply"), ErrToolNotFound)
}

func TestManager_TimeoutBoundedSlack(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(Definition{
		Name:        "sleepy",
		Category:    CategorySystem,
		Description: "sleeps past its timeout",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			// Ignores cancellation on purpose: a hung handler must still be
			// abandoned at the timeout boundary.
			time.Sleep(5 * time.Second)
			return "done", nil
		},
	}))

	timeout := 100 * time.Millisecond
	start := time.Now()
	result := m.Execute(context.Background(), "sleepy", nil, timeout)
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.Equal(t, KindTimeout, result.ErrorKind)
	// Never earlier than the timeout, and within bounded slack after it.
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
}

func TestManager_HandlerPanicWrapped(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(Definition{
		Name:        "panicky",
		Category:    CategorySystem,
		Description: "always panics",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			panic("boom")
		},
	}))

	result := m.Execute(context.Background(), "panicky", nil, time.Second)

	assert.False(t, result.Success)
	assert.Equal(t, KindExecutionError, result.ErrorKind)
	assert.Contains(t, result.Error, "panicked")
}

func TestManager_ParameterValidation(t *testing.T) {
	m := newTestManager(t)

	// Missing required operand.
	result := m.Execute(context.Background(), "multiply", map[string]interface{}{
		"a": 15.0,
	}, time.Second)
	assert.False(t, result.Success)
	assert.Equal(t, KindInvalidParameters, result.ErrorKind)

	// Unknown extra parameter rejected by the schema.
	result = m.Execute(context.Background(), "multiply", map[string]interface{}{
		"a": 1.0, "b": 2.0, "c": 3.0,
	}, time.Second)
	assert.False(t, result.Success)
	assert.Equal(t, KindInvalidParameters, result.ErrorKind)
}

func TestManager_SearchAndByCategory(t *testing.T) {
	m := newTestManager(t)

	byName := m.Search("multiply")
	require.Len(t, byName, 1)
	assert.Equal(t, "multiply", byName[0].Name)

	math := m.ByCategory(CategoryMath)
	require.Len(t, math, 4)
	assert.Equal(t, "add", math[0].Name)

	assert.Empty(t, m.ByCategory(CategoryCustom))
}

func TestManager_ConcurrentStats(t *testing.T) {
	m := newTestManager(t)

	var wg sync.WaitGroup
	const calls = 40
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Execute(context.Background(), "add", map[string]interface{}{
				"a": float64(n),
				"b": 1.0,
			}, time.Second)
		}(i)
	}
	wg.Wait()

	stats, ok := m.GetStats("add")
	require.True(t, ok)
	assert.Equal(t, uint64(calls), stats.TotalCalls)
	assert.Equal(t, uint64(calls), stats.SuccessCount)
	assert.Equal(t, uint64(0), stats.FailureCount)

	aggregate := m.AggregateStats()
	assert.Equal(t, uint64(calls), aggregate.TotalCalls)
}

func TestBuiltin_SearchTool(t *testing.T) {
	m := newTestManager(t)

	result := m.Execute(context.Background(), "search", map[string]interface{}{
		"query": "machine learning algorithms",
	}, time.Second)

	require.True(t, result.Success, result.Error)
	assert.Contains(t, fmt.Sprintf("%v", result.Value), "Machine learning")
}

func TestBuiltin_RunCode(t *testing.T) {
	m := newTestManager(t)

	result := m.Execute(context.Background(), "run_code", map[string]interface{}{
		"code":     "print('hi')",
		"language": "python",
	}, time.Second)

	require.True(t, result.Success, result.Error)
	assert.Contains(t, fmt.Sprintf("%v", result.Value), "python")
}
