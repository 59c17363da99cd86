package conversation

import (
	"context"

	"github.com/chiehyu-lin/line-ai-relay/internal/model/conversation"
)

// MaxTranscriptTurns bounds a single user's stored history. Older turns are
// dropped first when the cap is exceeded.
const MaxTranscriptTurns = 20

// Store persists per-user conversation transcripts.
type Store interface {
	// Append records a turn for the user, trimming the transcript to the
	// newest MaxTranscriptTurns entries.
	Append(ctx context.Context, userID, role, text string) error
	// Recent returns up to limit newest turns in chronological order. An
	// unknown user yields an empty history, not an error.
	Recent(ctx context.Context, userID string, limit int) ([]conversation.Turn, error)
	Close() error
}
