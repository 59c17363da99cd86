package relay_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	model "github.com/chiehyu-lin/line-ai-relay/internal/model/conversation"
	"github.com/chiehyu-lin/line-ai-relay/internal/observability"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/ai"
	conversation "github.com/chiehyu-lin/line-ai-relay/internal/service/conversation"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/relay"
)

type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// brokenHistoryStore appends fine but fails every transcript read, like a
// database-backed store during a transient outage.
type brokenHistoryStore struct {
	conversation.Store
}

func (s *brokenHistoryStore) Recent(context.Context, string, int) ([]model.Turn, error) {
	return nil, errors.New("connection reset")
}

type blockingLoader struct {
	release chan struct{}
	err     error
}

func (l *blockingLoader) StartLoading(ctx context.Context, _ string, _ int) error {
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
		}
	}
	return l.err
}

func newService(t *testing.T, completer relay.Completer, loader relay.LoadingTrigger) (*relay.Service, conversation.Store) {
	t.Helper()
	store := conversation.NewMemoryStore(0)
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return relay.NewService(store, completer, loader, metrics), store
}

func TestHandleTextStoresBothTurns(t *testing.T) {
	completer := &fakeCompleter{reply: "你好！"}
	svc, store := newService(t, completer, nil)

	reply, err := svc.HandleText(context.Background(), "U1", "Hello")
	if err != nil {
		t.Fatalf("HandleText err: %v", err)
	}
	if reply.Source != relay.SourceModel {
		t.Fatalf("unexpected source: %v", reply.Source)
	}
	if reply.Text != "你好！" {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	if len(completer.prompts) != 1 {
		t.Fatalf("expected one completion call, got %d", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[0], "用戶: Hello") {
		t.Fatalf("prompt missing user message: %q", completer.prompts[0])
	}

	turns, err := store.Recent(context.Background(), "U1", 10)
	if err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 stored turns, got %d", len(turns))
	}
	if turns[0].Role != model.RoleUser || turns[0].Text != "Hello" {
		t.Fatalf("unexpected user turn: %+v", turns[0])
	}
	if turns[1].Role != model.RoleAssistant || turns[1].Text != "你好！" {
		t.Fatalf("unexpected assistant turn: %+v", turns[1])
	}
}

func TestHandleTextFallbackIsStored(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream down")}
	svc, store := newService(t, completer, nil)

	reply, err := svc.HandleText(context.Background(), "U1", "Hello")
	if err != nil {
		t.Fatalf("HandleText err: %v", err)
	}
	if reply.Source != relay.SourceFallback {
		t.Fatalf("unexpected source: %v", reply.Source)
	}
	if reply.Text != ai.FallbackReply {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	// What is stored must match what is sent.
	turns, err := store.Recent(context.Background(), "U1", 10)
	if err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	if len(turns) != 2 || turns[1].Text != ai.FallbackReply {
		t.Fatalf("stored assistant turn does not match fallback: %+v", turns)
	}
}

func TestHandleTextWithoutCompleter(t *testing.T) {
	svc, store := newService(t, nil, nil)

	reply, err := svc.HandleText(context.Background(), "U1", "Hello")
	if err != nil {
		t.Fatalf("HandleText err: %v", err)
	}
	if reply.Source != relay.SourceUnavailable {
		t.Fatalf("unexpected source: %v", reply.Source)
	}
	if reply.Text != ai.UnavailableReply {
		t.Fatalf("unexpected reply: %q", reply.Text)
	}

	turns, err := store.Recent(context.Background(), "U1", 10)
	if err != nil {
		t.Fatalf("Recent err: %v", err)
	}
	if len(turns) != 2 || turns[1].Text != ai.UnavailableReply {
		t.Fatalf("stored assistant turn does not match unavailable text: %+v", turns)
	}
}

func TestHandleTextHistoryReadFailureKeepsMessageInPrompt(t *testing.T) {
	completer := &fakeCompleter{reply: "answer"}
	store := &brokenHistoryStore{Store: conversation.NewMemoryStore(0)}
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	svc := relay.NewService(store, completer, nil, metrics)

	reply, err := svc.HandleText(context.Background(), "U1", "Hello")
	if err != nil {
		t.Fatalf("HandleText err: %v", err)
	}
	if reply.Source != relay.SourceModel || reply.Text != "answer" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if len(completer.prompts) != 1 {
		t.Fatalf("expected one completion call, got %d", len(completer.prompts))
	}
	// Without stored history the current turn must still reach the model.
	if !strings.Contains(completer.prompts[0], "用戶: Hello") {
		t.Fatalf("prompt missing user message: %q", completer.prompts[0])
	}
}

func TestHandleTextHistoryFeedsPrompt(t *testing.T) {
	completer := &fakeCompleter{reply: "answer"}
	svc, _ := newService(t, completer, nil)
	ctx := context.Background()

	if _, err := svc.HandleText(ctx, "U1", "第一個問題"); err != nil {
		t.Fatalf("HandleText err: %v", err)
	}
	if _, err := svc.HandleText(ctx, "U1", "第二個問題"); err != nil {
		t.Fatalf("HandleText err: %v", err)
	}

	second := completer.prompts[1]
	if !strings.Contains(second, "用戶: 第一個問題") || !strings.Contains(second, "AI: answer") {
		t.Fatalf("second prompt missing prior exchange: %q", second)
	}
	if !strings.Contains(second, "用戶: 第二個問題") {
		t.Fatalf("second prompt missing new message: %q", second)
	}
}

func TestBlockedLoadingDoesNotDelayReply(t *testing.T) {
	loader := &blockingLoader{release: make(chan struct{})}
	defer close(loader.release)

	completer := &fakeCompleter{reply: "fast"}
	svc, _ := newService(t, completer, loader)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := svc.HandleText(context.Background(), "U1", "Hello"); err != nil {
			t.Errorf("HandleText err: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reply path blocked on the loading indicator")
	}
}

func TestLoadingFailureDoesNotFailReply(t *testing.T) {
	loader := &blockingLoader{err: errors.New("status 429")}
	completer := &fakeCompleter{reply: "ok"}
	svc, _ := newService(t, completer, loader)

	reply, err := svc.HandleText(context.Background(), "U1", "Hello")
	if err != nil {
		t.Fatalf("HandleText err: %v", err)
	}
	if reply.Source != relay.SourceModel || reply.Text != "ok" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
