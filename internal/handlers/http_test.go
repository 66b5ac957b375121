package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"breathing-analytics/internal/analytics"
	"breathing-analytics/internal/cache"
	"breathing-analytics/internal/models"
)

type memoryStore struct {
	mu      sync.Mutex
	results map[string]models.AnalysisResult
	order   []string
	pingErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{results: make(map[string]models.AnalysisResult)}
}

func (s *memoryStore) StoreAnalysis(ctx context.Context, result models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.SessionID] = result
	s.order = append(s.order, result.SessionID)
	return nil
}

func (s *memoryStore) GetAnalysis(ctx context.Context, sessionID string) (models.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[sessionID]
	if !ok {
		return models.AnalysisResult{}, cache.ErrNotFound
	}
	return result, nil
}

func (s *memoryStore) RecentSessions(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.order[i])
	}
	return out, nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	return s.pingErr
}

func (s *memoryStore) GetStats() map[string]interface{} {
	return map[string]interface{}{"stored": len(s.results)}
}

type recordingPublisher struct {
	mu       sync.Mutex
	sessions []string
}

func (p *recordingPublisher) Publish(result models.AnalysisResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, result.SessionID)
	return nil
}

func newTestServer(t *testing.T, store *memoryStore, publisher Publisher) (*http.ServeMux, *analytics.Pool) {
	t.Helper()
	pipeline := analytics.NewPipeline(analytics.DefaultParams(), nil)
	pool := analytics.NewPool(pipeline, 2)
	t.Cleanup(pool.Stop)

	mux := http.NewServeMux()
	NewHandler(pipeline, pool, store, publisher, 1<<20).Routes(mux)
	return mux, pool
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeEndpoint(t *testing.T) {
	store := newMemoryStore()
	publisher := &recordingPublisher{}
	mux, _ := newTestServer(t, store, publisher)

	body := `{"session_id":"s1","sample_rate_hz":15,"frames":[
		{"index":0,"timestamp_ms":0,"landmarks":{"Left Shoulder":{"x":0.4,"y":0.3,"z":0,"visibility":1}}}
	]}`
	resp := serve(mux, http.MethodPost, "/analyze", body)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.SessionID != "s1" || result.FrameCount != 1 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if result.Rate.Method != models.MethodInsufficientData {
		t.Errorf("Expected insufficient data for one frame, got %s", result.Rate.Method)
	}
	if _, err := store.GetAnalysis(context.Background(), "s1"); err != nil {
		t.Errorf("Expected result to be stored: %v", err)
	}
	if len(publisher.sessions) != 1 || publisher.sessions[0] != "s1" {
		t.Errorf("Expected summary to be published, got %v", publisher.sessions)
	}
}

func TestAnalyzeEndpointRejectsBadRequests(t *testing.T) {
	mux, _ := newTestServer(t, newMemoryStore(), nil)

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{not json", http.StatusBadRequest},
		{"missing sample rate", http.MethodPost, `{"frames":[]}`, http.StatusBadRequest},
		{"negative sample rate", http.MethodPost, `{"sample_rate_hz":-1,"frames":[]}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		if resp := serve(mux, tc.method, "/analyze", tc.body); resp.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, resp.Code)
		}
	}
}

func TestBatchAnalyzeEndpoint(t *testing.T) {
	mux, pool := newTestServer(t, newMemoryStore(), nil)

	body := `[
		{"session_id":"a","sample_rate_hz":15,"frames":[]},
		{"session_id":"b","sample_rate_hz":0,"frames":[]},
		{"sample_rate_hz":30,"frames":[]},
		{"session_id":"d","sample_rate_hz":15,"frames":[]}
	]`
	resp := serve(mux, http.MethodPost, "/analyze/batch", body)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.Code)
	}
	var out struct {
		Total      int      `json:"total"`
		Accepted   int      `json:"accepted"`
		Rejected   int      `json:"rejected"`
		SessionIDs []string `json:"session_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	// пул не запущен, очередь вмещает две записи
	if out.Total != 4 || out.Accepted != 2 || out.Rejected != 2 {
		t.Errorf("Unexpected batch counts: %+v", out)
	}
	if len(out.SessionIDs) != 2 || out.SessionIDs[0] != "a" || out.SessionIDs[1] == "" {
		t.Errorf("Unexpected session ids: %v", out.SessionIDs)
	}
	if pool.QueueSize() != 2 {
		t.Errorf("Expected 2 queued recordings, got %d", pool.QueueSize())
	}
}

func TestGetAnalysisEndpoint(t *testing.T) {
	store := newMemoryStore()
	store.StoreAnalysis(context.Background(), models.AnalysisResult{SessionID: "known", FrameCount: 42})
	mux, _ := newTestServer(t, store, nil)

	if resp := serve(mux, http.MethodGet, "/analysis", ""); resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without session_id, got %d", resp.Code)
	}
	if resp := serve(mux, http.MethodGet, "/analysis?session_id=unknown", ""); resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", resp.Code)
	}

	resp := serve(mux, http.MethodGet, "/analysis?session_id=known", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}
	var result models.AnalysisResult
	json.NewDecoder(resp.Body).Decode(&result)
	if result.FrameCount != 42 {
		t.Errorf("Expected stored result, got %+v", result)
	}
}

func TestRecentSessionsEndpoint(t *testing.T) {
	store := newMemoryStore()
	for _, id := range []string{"one", "two", "three"} {
		store.StoreAnalysis(context.Background(), models.AnalysisResult{SessionID: id})
	}
	mux, _ := newTestServer(t, store, nil)

	for _, limit := range []string{"0", "1001", "abc"} {
		if resp := serve(mux, http.MethodGet, "/sessions?limit="+limit, ""); resp.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", limit, resp.Code)
		}
	}

	resp := serve(mux, http.MethodGet, "/sessions?limit=2", "")
	var out struct {
		Count    int      `json:"count"`
		Sessions []string `json:"sessions"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Count != 2 || out.Sessions[0] != "three" {
		t.Errorf("Expected two most recent sessions, got %+v", out)
	}
}

func TestHealthCheck(t *testing.T) {
	store := newMemoryStore()
	mux, _ := newTestServer(t, store, nil)

	if resp := serve(mux, http.MethodGet, "/health", ""); resp.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.Code)
	}

	store.pingErr = errors.New("connection refused")
	if resp := serve(mux, http.MethodGet, "/health", ""); resp.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when redis is down, got %d", resp.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	mux, _ := newTestServer(t, newMemoryStore(), nil)

	resp := serve(mux, http.MethodGet, "/stats", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var out map[string]json.RawMessage
	json.NewDecoder(resp.Body).Decode(&out)
	for _, key := range []string{"pool", "redis", "params", "timestamp"} {
		if _, ok := out[key]; !ok {
			t.Errorf("Expected %q in stats", key)
		}
	}
}

func TestProcessResultsDeliversOutcomes(t *testing.T) {
	store := newMemoryStore()
	publisher := &recordingPublisher{}
	pipeline := analytics.NewPipeline(analytics.DefaultParams(), nil)
	pool := analytics.NewPool(pipeline, 4)
	h := NewHandler(pipeline, pool, store, publisher, 1<<20)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ProcessResults(context.Background(), pool.Results())
	}()

	pool.Start(2)
	pool.Submit(models.Recording{SessionID: "queued", SampleRateHz: 15})

	deadline := time.After(5 * time.Second)
	for {
		if _, err := store.GetAnalysis(context.Background(), "queued"); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for delivery")
		case <-time.After(10 * time.Millisecond):
		}
	}

	pool.Stop()
	<-done

	if len(publisher.sessions) != 1 {
		t.Errorf("Expected one published summary, got %v", publisher.sessions)
	}
}
