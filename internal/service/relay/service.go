package relay

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	conversationModel "github.com/chiehyu-lin/line-ai-relay/internal/model/conversation"
	"github.com/chiehyu-lin/line-ai-relay/internal/observability"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/ai"
	conversationStore "github.com/chiehyu-lin/line-ai-relay/internal/service/conversation"
)

// historyLimit caps how many stored turns feed the prompt.
const historyLimit = 10

// loadingWindow bounds the detached indicator call.
const loadingWindow = 10 * time.Second

// Completer generates text for a composed prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LoadingTrigger starts the platform typing indicator.
type LoadingTrigger interface {
	StartLoading(ctx context.Context, chatID string, seconds int) error
}

// Source records where a reply's text came from, so callers can tell a real
// answer from substitute text.
type Source int

const (
	SourceModel Source = iota
	SourceFallback
	SourceUnavailable
)

func (s Source) String() string {
	switch s {
	case SourceModel:
		return "model"
	case SourceFallback:
		return "fallback"
	case SourceUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Reply is the outcome of relaying one user message.
type Reply struct {
	Text   string
	Source Source
}

// userLockStripes bounds the per-user lock set; a hash collision only
// serializes two unrelated users, it never breaks exclusion.
const userLockStripes = 256

// Service orchestrates one text message end to end: typing indicator,
// transcript bookkeeping, prompt composition and completion.
type Service struct {
	store     conversationStore.Store
	completer Completer // nil when no model credential is configured
	loading   LoadingTrigger
	metrics   *observability.Metrics

	userLocks [userLockStripes]sync.Mutex
}

func NewService(store conversationStore.Store, completer Completer, loading LoadingTrigger, metrics *observability.Metrics) *Service {
	return &Service{
		store:     store,
		completer: completer,
		loading:   loading,
		metrics:   metrics,
	}
}

// HandleText relays one user message and returns the reply to deliver.
// Turns for one user are serialized so concurrent webhooks cannot
// interleave the read-compose-append sequence. The assistant turn stored
// always equals the returned text, fallback included.
func (s *Service) HandleText(ctx context.Context, userID, text string) (Reply, error) {
	s.dispatchLoading(userID, text)

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Append(ctx, userID, conversationModel.RoleUser, text); err != nil {
		return Reply{}, fmt.Errorf("append user turn: %w", err)
	}

	reply := s.complete(ctx, userID, text)

	if err := s.store.Append(ctx, userID, conversationModel.RoleAssistant, reply.Text); err != nil {
		return Reply{}, fmt.Errorf("append assistant turn: %w", err)
	}

	return reply, nil
}

func (s *Service) complete(ctx context.Context, userID, text string) Reply {
	if s.completer == nil {
		s.metrics.Completions.WithLabelValues(SourceUnavailable.String()).Inc()
		return Reply{Text: ai.UnavailableReply, Source: SourceUnavailable}
	}

	turns, err := s.store.Recent(ctx, userID, historyLimit)
	if err != nil {
		// Degrade to a history-free prompt rather than dropping the
		// message; the current turn must still reach the model.
		log.Printf("[relay] load transcript for %s failed: %v", userID, err)
		turns = []conversationModel.Turn{{UserID: userID, Role: conversationModel.RoleUser, Text: text}}
	}
	promptText := ai.ComposePrompt(ai.RenderHistory(turns))

	started := time.Now()
	text, err = s.completer.Complete(ctx, promptText)
	if err != nil {
		log.Printf("[relay] completion for %s failed: %v", userID, err)
		s.metrics.Completions.WithLabelValues(SourceFallback.String()).Inc()
		return Reply{Text: ai.FallbackReply, Source: SourceFallback}
	}

	s.metrics.CompletionLatency.Observe(time.Since(started).Seconds())
	s.metrics.Completions.WithLabelValues(SourceModel.String()).Inc()
	return Reply{Text: text, Source: SourceModel}
}

// dispatchLoading fires the typing indicator on a detached goroutine. It
// must never delay or fail the reply path.
func (s *Service) dispatchLoading(userID, text string) {
	if s.loading == nil {
		return
	}

	seconds := EstimateSeconds(text)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadingWindow)
		defer cancel()

		if err := s.loading.StartLoading(ctx, userID, seconds); err != nil {
			log.Printf("[relay] loading indicator for %s failed: %v", userID, err)
			s.metrics.LoadingTriggers.WithLabelValues("error").Inc()
			return
		}
		s.metrics.LoadingTriggers.WithLabelValues("ok").Inc()
	}()
}

func (s *Service) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.userLocks[h.Sum32()%userLockStripes]
}
