package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chiehyu-lin/line-ai-relay/internal/config"
	"github.com/chiehyu-lin/line-ai-relay/internal/handler/webhook"
	"github.com/chiehyu-lin/line-ai-relay/internal/line"
	"github.com/chiehyu-lin/line-ai-relay/internal/observability"
	"github.com/chiehyu-lin/line-ai-relay/internal/service/relay"
	"github.com/chiehyu-lin/line-ai-relay/pkg/utils"
)

// testLoadingWindow bounds the /test-loading indicator call.
const testLoadingWindow = 10 * time.Second

// Deps carries the wired services the router exposes.
type Deps struct {
	Line    config.LineConfig
	Relay   *relay.Service
	LineAPI *line.Client // nil when the channel access token is missing
	AIReady bool
	Metrics *observability.Metrics
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	var replier webhook.Replier
	if deps.LineAPI != nil {
		replier = deps.LineAPI
	}
	webhookHandler := webhook.New(deps.Line.ChannelSecret, deps.Relay, replier, deps.Metrics)
	webhookHandler.RegisterRoutes(r)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondText(w, http.StatusOK, "LINE Bot 服務正在運行中！")
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":                      "healthy",
			"service":                     "line-ai-relay",
			"line_bot_initialized":        deps.Line.ReplyEnabled(),
			"ai_initialized":              deps.AIReady,
			"loading_animation_available": deps.Line.ReplyEnabled(),
		})
	})

	r.Post("/test-loading", func(w http.ResponseWriter, r *http.Request) {
		handleTestLoading(w, r, deps.LineAPI)
	})

	r.Handle("/metrics", observability.Handler())

	return r
}

// handleTestLoading 測試等待動畫功能。
func handleTestLoading(w http.ResponseWriter, r *http.Request, lineAPI *line.Client) {
	var payload struct {
		UserID  string `json:"userId"`
		Seconds int    `json:"seconds"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to decode request body")
		return
	}
	if payload.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if payload.Seconds == 0 {
		payload.Seconds = 5
	}

	success := false
	if lineAPI == nil {
		log.Printf("[loading] LINE client not configured, cannot trigger indicator")
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), testLoadingWindow)
		defer cancel()
		if err := lineAPI.StartLoading(ctx, payload.UserID, payload.Seconds); err != nil {
			log.Printf("[loading] test trigger for %s failed: %v", payload.UserID, err)
		} else {
			success = true
		}
	}

	message := "等待動畫已成功觸發"
	if !success {
		message = "等待動畫觸發失敗"
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success": success,
		"message": message,
		"userId":  payload.UserID,
		"seconds": payload.Seconds,
	})
}
