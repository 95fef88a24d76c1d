package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"resumerag/internal/domain/query"
	"resumerag/internal/domain/retrieval"
	applog "resumerag/internal/platform/log"
)

// QueryHandler 简历问答接口
type QueryHandler struct {
	engine       *query.Engine
	queryTimeout time.Duration
}

func NewQueryHandler(engine *query.Engine, queryTimeout time.Duration) *QueryHandler {
	if queryTimeout <= 0 {
		queryTimeout = 2 * time.Minute
	}
	return &QueryHandler{engine: engine, queryTimeout: queryTimeout}
}

func (h *QueryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.QueryStream)
	r.Post("/query/sync", h.QuerySync)
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	SessionID string        `json:"session_id"`
	Answer    string        `json:"answer"`
	ChunkIDs  []string      `json:"chunk_ids,omitempty"`
	Metrics   query.Metrics `json:"metrics"`
}

// QueryStream POST /api/v1/query
// SSE 流式回答：token 事件逐段推送，done 事件带会话指标。
func (h *QueryHandler) QueryStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	session, err := h.engine.SubmitQuery(ctx, req.Question)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", session.ID)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for tok := range session.Tokens() {
		sseWriteEvent(w, flusher, "token", map[string]string{"content": tok})
	}
	<-session.Done()

	if err := session.Err(); err != nil {
		applog.Error("[API/Query] Session failed", "session_id", session.ID, "error", err)
		sseWriteEvent(w, flusher, "error", map[string]string{
			"session_id": session.ID,
			"error":      err.Error(),
		})
		return
	}

	sseWriteEvent(w, flusher, "done", map[string]interface{}{
		"session_id": session.ID,
		"chunk_ids":  session.ChunkIDs(),
		"metrics":    session.Metrics(),
	})
}

// QuerySync POST /api/v1/query/sync
// 聚合整段答案后一次返回。
func (h *QueryHandler) QuerySync(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	session, err := h.engine.SubmitQuery(ctx, req.Question)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var answer strings.Builder
	for tok := range session.Tokens() {
		answer.WriteString(tok)
	}
	<-session.Done()

	if err := session.Err(); err != nil {
		applog.Error("[API/Query] Session failed", "session_id", session.ID, "error", err)
		writeError(w, queryErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &queryResponse{
		SessionID: session.ID,
		Answer:    answer.String(),
		ChunkIDs:  session.ChunkIDs(),
		Metrics:   session.Metrics(),
	})
}

func queryErrorStatus(err error) int {
	switch {
	case errors.Is(err, retrieval.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, retrieval.ErrEmbeddingQuota):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// --- SSE 辅助 ---

func sseWriteEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(jsonData))
	flusher.Flush()
}
