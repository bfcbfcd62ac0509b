package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": openTestSQLite(t),
		"memory": NewMemoryStore(),
	}
}

func TestStore_AppendAndRecent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Append(ctx, Record{
				UserID:    "user-1",
				Query:     "Calculate 15 * 23",
				Answer:    "The result of multiply is 345.",
				Success:   true,
				ToolsUsed: []string{"multiply"},
			}))
			require.NoError(t, s.Append(ctx, Record{
				UserID:  "user-1",
				Query:   "second",
				Answer:  "second answer",
				Success: false,
			}))
			require.NoError(t, s.Append(ctx, Record{
				UserID: "user-2", Query: "other", Answer: "other",
			}))

			recs, err := s.Recent(ctx, "user-1", 10)
			require.NoError(t, err)
			require.Len(t, recs, 2)

			// Oldest first.
			assert.Equal(t, "Calculate 15 * 23", recs[0].Query)
			assert.Equal(t, []string{"multiply"}, recs[0].ToolsUsed)
			assert.True(t, recs[0].Success)
			assert.Equal(t, "second", recs[1].Query)
			assert.False(t, recs[1].Success)
		})
	}
}

func TestStore_RecentHonorsLimit(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, s.Append(ctx, Record{UserID: "u", Query: "q", Answer: "a"}))
			}

			recs, err := s.Recent(ctx, "u", 3)
			require.NoError(t, err)
			assert.Len(t, recs, 3)
		})
	}
}

func TestStore_Prune(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Append(ctx, Record{
				UserID: "u", Query: "old", Answer: "old",
				CreatedAt: time.Now().Add(-48 * time.Hour),
			}))
			require.NoError(t, s.Append(ctx, Record{UserID: "u", Query: "new", Answer: "new"}))

			removed, err := s.Prune(ctx, 24*time.Hour)
			require.NoError(t, err)
			assert.Equal(t, int64(1), removed)

			recs, err := s.Recent(ctx, "u", 10)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, "new", recs[0].Query)
		})
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, Record{UserID: "u", Query: "q", Answer: "a", Success: true}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	recs, err := s.Recent(ctx, "u", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "q", recs[0].Query)
}
