package history

import (
	"context"
	"time"
)

// Record is one persisted query/answer exchange
type Record struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Success   bool      `json:"success"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists exchanges across restarts. Implementations are safe for
// concurrent use.
type Store interface {
	// Append persists one exchange
	Append(ctx context.Context, rec Record) error

	// Recent returns up to limit exchanges for a user, oldest first
	Recent(ctx context.Context, userID string, limit int) ([]Record, error)

	// Prune deletes exchanges older than the retention window and returns
	// how many were removed
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)

	Close() error
}
