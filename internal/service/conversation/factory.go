package conversation

import (
	"context"
	"strings"
)

// New creates a postgres-backed store when a database URL is configured,
// otherwise the bounded in-memory store.
func New(ctx context.Context, databaseURL string, userCap int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(userCap), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
