package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"breathing-analytics/internal/analytics"
	"breathing-analytics/internal/cache"
	"breathing-analytics/internal/metrics"
	"breathing-analytics/internal/models"
	"breathing-analytics/internal/recording"
)

// ResultStore хранилище результатов анализа
type ResultStore interface {
	StoreAnalysis(ctx context.Context, result models.AnalysisResult) error
	GetAnalysis(ctx context.Context, sessionID string) (models.AnalysisResult, error)
	RecentSessions(ctx context.Context, limit int) ([]string, error)
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
}

// Publisher получатель сводок анализа
type Publisher interface {
	Publish(result models.AnalysisResult) error
}

// Handler обработчик HTTP запросов
type Handler struct {
	pipeline  *analytics.Pipeline
	pool      *analytics.Pool
	store     ResultStore
	publisher Publisher
	maxBody   int64
}

// NewHandler создает новый обработчик. publisher может быть nil.
func NewHandler(pipeline *analytics.Pipeline, pool *analytics.Pool, store ResultStore, publisher Publisher, maxBody int64) *Handler {
	return &Handler{
		pipeline:  pipeline,
		pool:      pool,
		store:     store,
		publisher: publisher,
		maxBody:   maxBody,
	}
}

// Routes регистрирует обработчики
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/analyze", h.Analyze)
	mux.HandleFunc("/analyze/batch", h.BatchAnalyze)
	mux.HandleFunc("/analysis", h.GetAnalysis)
	mux.HandleFunc("/sessions", h.RecentSessions)
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/stats", h.GetStats)
}

// Deliver сохраняет результат, публикует сводку и обновляет метрики
func (h *Handler) Deliver(ctx context.Context, result models.AnalysisResult, elapsed time.Duration) {
	metrics.ObserveAnalysis(result, elapsed)

	err := h.store.StoreAnalysis(ctx, result)
	metrics.RedisOperations.WithLabelValues("store_analysis", metrics.OperationStatus(err)).Inc()
	if err != nil {
		slog.Warn("failed to store analysis", "session_id", result.SessionID, "error", err)
	}

	if h.publisher != nil {
		err := h.publisher.Publish(result)
		metrics.PublishOperations.WithLabelValues(metrics.OperationStatus(err)).Inc()
		if err != nil {
			slog.Warn("failed to publish analysis summary", "session_id", result.SessionID, "error", err)
		}
	}

	slog.Info("recording analyzed",
		"session_id", result.SessionID,
		"frames", result.FrameCount,
		"rate_bpm", result.Rate.RateBPM,
		"confidence", result.Rate.Confidence,
		"fatigue_windows", len(result.FatigueWindows),
		"elapsed", elapsed)
}

// ProcessResults доставляет результаты пула до закрытия канала
func (h *Handler) ProcessResults(ctx context.Context, results <-chan analytics.Outcome) {
	for outcome := range results {
		h.Deliver(ctx, outcome.Result, outcome.Elapsed)
	}
}

// Analyze обрабатывает POST /analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/analyze"
	start := time.Now()
	defer observeDuration(r.Method, endpoint, start)

	if r.Method != http.MethodPost {
		fail(w, r.Method, endpoint, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	rec, err := recording.Decode(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		fail(w, r.Method, endpoint, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if msg := validate(rec); msg != "" {
		fail(w, r.Method, endpoint, http.StatusBadRequest, msg)
		return
	}

	result := h.pipeline.AnalyzeRecording(rec)
	h.Deliver(r.Context(), result, time.Since(start))

	respond(w, r.Method, endpoint, http.StatusOK, result)
}

// BatchAnalyze обрабатывает POST /analyze/batch, записи анализируются пулом асинхронно
func (h *Handler) BatchAnalyze(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/analyze/batch"
	start := time.Now()
	defer observeDuration(r.Method, endpoint, start)

	if r.Method != http.MethodPost {
		fail(w, r.Method, endpoint, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var batch []models.Recording
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody)).Decode(&batch); err != nil {
		fail(w, r.Method, endpoint, http.StatusBadRequest, "Invalid JSON")
		return
	}

	accepted := []string{}
	rejected := 0
	for _, rec := range batch {
		if validate(rec) != "" {
			rejected++
			continue
		}
		if rec.SessionID == "" {
			rec.SessionID = uuid.NewString()
		}
		recording.Normalize(&rec)

		if !h.pool.Submit(rec) {
			rejected++
			continue
		}
		accepted = append(accepted, rec.SessionID)
	}
	metrics.QueueSize.Set(float64(h.pool.QueueSize()))

	respond(w, r.Method, endpoint, http.StatusAccepted, map[string]interface{}{
		"status":      "accepted",
		"total":       len(batch),
		"accepted":    len(accepted),
		"rejected":    rejected,
		"session_ids": accepted,
	})
}

// GetAnalysis обрабатывает GET /analysis
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/analysis"
	start := time.Now()
	defer observeDuration(r.Method, endpoint, start)

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		fail(w, r.Method, endpoint, http.StatusBadRequest, "session_id parameter is required")
		return
	}

	result, err := h.store.GetAnalysis(r.Context(), sessionID)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		metrics.RedisOperations.WithLabelValues("get_analysis", "miss").Inc()
		fail(w, r.Method, endpoint, http.StatusNotFound, "analysis not found")
		return
	case err != nil:
		metrics.RedisOperations.WithLabelValues("get_analysis", "error").Inc()
		slog.Error("failed to get analysis", "session_id", sessionID, "error", err)
		fail(w, r.Method, endpoint, http.StatusInternalServerError, "Failed to retrieve analysis")
		return
	}

	metrics.RedisOperations.WithLabelValues("get_analysis", "success").Inc()
	respond(w, r.Method, endpoint, http.StatusOK, result)
}

// RecentSessions обрабатывает GET /sessions
func (h *Handler) RecentSessions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/sessions"
	start := time.Now()
	defer observeDuration(r.Method, endpoint, start)

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			fail(w, r.Method, endpoint, http.StatusBadRequest, "limit must be in [1,1000]")
			return
		}
		limit = n
	}

	sessions, err := h.store.RecentSessions(r.Context(), limit)
	metrics.RedisOperations.WithLabelValues("recent_sessions", metrics.OperationStatus(err)).Inc()
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		fail(w, r.Method, endpoint, http.StatusInternalServerError, "Failed to retrieve sessions")
		return
	}

	respond(w, r.Method, endpoint, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	redisOK := h.store.Ping(ctx) == nil

	status := "healthy"
	httpStatus := http.StatusOK
	if !redisOK {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"redis":     redisOK,
		"timestamp": time.Now(),
	})
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/stats"
	start := time.Now()
	defer observeDuration(r.Method, endpoint, start)

	respond(w, r.Method, endpoint, http.StatusOK, map[string]interface{}{
		"pool":      h.pool.GetStats(),
		"redis":     h.store.GetStats(),
		"params":    h.pipeline.Params(),
		"timestamp": time.Now(),
	})
}

// validate возвращает текст ошибки для некорректной записи
func validate(rec models.Recording) string {
	if rec.SampleRateHz <= 0 {
		return "sample_rate_hz must be positive"
	}
	return ""
}

func observeDuration(method, endpoint string, start time.Time) {
	metrics.RequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
}

func fail(w http.ResponseWriter, method, endpoint string, status int, msg string) {
	metrics.RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	http.Error(w, msg, status)
}

func respond(w http.ResponseWriter, method, endpoint string, status int, body interface{}) {
	metrics.RequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
