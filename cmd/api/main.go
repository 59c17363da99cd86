package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chiehyu-lin/line-ai-relay/internal/config"
	"github.com/chiehyu-lin/line-ai-relay/internal/handler"
	"github.com/chiehyu-lin/line-ai-relay/internal/line"
	"github.com/chiehyu-lin/line-ai-relay/internal/observability"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/ai"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/conversation"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/relay"
)

// lineRequestTimeout bounds outbound reply and loading-indicator calls.
const lineRequestTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	metrics := observability.NewMetrics("line_relay", prometheus.DefaultRegisterer)

	store, err := conversation.New(ctx, cfg.Store.DatabaseURL, cfg.Store.UserCap)
	if err != nil {
		log.Fatalf("failed to initialize conversation store: %v", err)
	}
	defer store.Close()
	if cfg.Store.DatabaseURL != "" {
		log.Println("conversation store backed by PostgreSQL")
	} else {
		log.Printf("conversation store in memory, user cap %d", cfg.Store.UserCap)
	}

	// Missing credentials degrade the service instead of refusing to start;
	// /health reports which integrations came up.
	var completer relay.Completer
	aiReady := false
	if cfg.AI.Enabled() {
		client, err := ai.NewClient(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI client: %v", err)
			log.Println("continuing without AI functionality - 請檢查 Ark 模型相關環境變數")
		} else {
			completer = client
			aiReady = true
			log.Println("AI client initialized successfully")
		}
	} else {
		log.Println("Ark 憑證未設定，AI 回覆降級為固定訊息")
	}

	var lineClient *line.Client
	var loading relay.LoadingTrigger
	if cfg.Line.ReplyEnabled() {
		lineClient = line.NewClient(cfg.Line.ChannelAccessToken, lineRequestTimeout)
		loading = lineClient
		log.Println("LINE client initialized successfully")
	} else {
		log.Println("LINE_CHANNEL_ACCESS_TOKEN 未設定，無法回覆訊息與顯示等待動畫")
	}
	if !cfg.Line.WebhookEnabled() {
		log.Println("LINE_CHANNEL_SECRET 未設定，/callback 將拒絕所有請求")
	}

	relaySvc := relay.NewService(store, completer, loading, metrics)

	router := handler.NewRouter(handler.Deps{
		Line:    cfg.Line,
		Relay:   relaySvc,
		LineAPI: lineClient,
		AIReady: aiReady,
		Metrics: metrics,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("LINE AI relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
