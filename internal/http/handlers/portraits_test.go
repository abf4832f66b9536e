package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"portraits/internal/admission"
	"portraits/internal/domain"
	"portraits/internal/http/handlers"
	"portraits/internal/http/httpapi"
	"portraits/internal/orchestrator"
	"portraits/internal/pipeline"
	"portraits/internal/providers/stylize"
)

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*domain.Job)}
}

func (m *memJobs) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *job
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.jobs[job.ID] = &stored
	return nil
}

func (m *memJobs) TransitionProcessing(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok && job.Status == domain.JobStatusQueued {
		job.Status = domain.JobStatusProcessing
	}
	return nil
}

func (m *memJobs) FinalizeSuccess(ctx context.Context, jobID, previewKey, hdKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = domain.JobStatusCompleted
	job.PreviewKey = previewKey
	job.HDKey = hdKey
	return true, nil
}

func (m *memJobs) FinalizeFailure(ctx context.Context, jobID, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	return true, nil
}

func (m *memJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobs) CountActive(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if !job.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (m *memJobs) CountActiveForUser(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if job.UserID == userID && !job.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (m *memJobs) SweepStale(ctx context.Context, olderThan time.Time, message string) (int64, error) {
	return 0, nil
}

type memRates struct {
	mu      sync.Mutex
	buckets map[string]int
}

func (m *memRates) WindowSum(ctx context.Context, identityHash, endpoint string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, n := range m.buckets {
		sum += n
	}
	return sum, nil
}

func (m *memRates) Increment(ctx context.Context, identityHash, endpoint string, windowStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets == nil {
		m.buckets = make(map[string]int)
	}
	m.buckets[identityHash]++
	return nil
}

func (m *memRates) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type openBlocklist struct{}

func (openBlocklist) IsBlocked(ctx context.Context, identityHash string) (bool, error) {
	return false, nil
}

func (openBlocklist) Block(ctx context.Context, identityHash, reason string, duration time.Duration) error {
	return nil
}

type noopSecLog struct{}

func (noopSecLog) Log(eventType, identityHash string, context map[string]any) {}

type okUploads struct{}

func (okUploads) Resolve(ctx context.Context, ownerID, uploadID string) (string, error) {
	return "https://uploads.example.com/" + uploadID + ".jpg", nil
}

type syncProvider struct{}

func (syncProvider) Submit(ctx context.Context, req stylize.SubmitRequest) (*stylize.Outcome, error) {
	return &stylize.Outcome{ResultURL: "https://cdn.stylize.example.com/out.png"}, nil
}

func (syncProvider) Poll(ctx context.Context, handle *stylize.QueueHandle) (string, error) {
	return "https://cdn.stylize.example.com/out.png", nil
}

type okPipeline struct{}

func (okPipeline) Process(ctx context.Context, jobID, sourceURL string) (*pipeline.Artifacts, error) {
	return &pipeline.Artifacts{
		HDKey:      "outputs/hd-" + jobID + ".jpg",
		PreviewKey: "outputs/preview-" + jobID + ".jpg",
	}, nil
}

type noopNotifier struct{}

func (noopNotifier) GenerationComplete(ctx context.Context, ownerID, jobID, viewURL string) error {
	return nil
}

func newTestAPI(t *testing.T, jobs *memJobs, userActiveLimit int) http.Handler {
	return newTestAPIWithLimit(t, jobs, userActiveLimit, 100)
}

func newTestAPIWithLimit(t *testing.T, jobs *memJobs, userActiveLimit, maxRequests int) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	controller := admission.NewController(admission.Config{
		Limits:            map[string]admission.Limit{admission.EndpointCreateJob: {MaxRequests: maxRequests, WindowMinutes: 10}},
		GlobalActiveLimit: 10,
		UserActiveLimit:   userActiveLimit,
	}, &memRates{}, jobs, openBlocklist{}, noopSecLog{}, logger)

	orch := orchestrator.New(orchestrator.Options{
		Jobs:       jobs,
		Provider:   syncProvider{},
		Pipeline:   okPipeline{},
		Notifier:   noopNotifier{},
		Logger:     logger,
		RetryDelay: time.Millisecond,
	})
	svc := orchestrator.NewService(context.Background(), controller, jobs, okUploads{}, orch,
		func(key string) string { return "https://cdn.example.com/" + key }, logger)
	return httpapi.NewRouter(handlers.NewApp(svc, logger), logger, nil)
}

func TestCreatePortraitAccepted(t *testing.T) {
	api := newTestAPI(t, newMemJobs(), 5)

	body := `{"images": ["u-1", "u-2"], "style": "watercolor"}`
	req := httptest.NewRequest("POST", "/v1/portraits", strings.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("job_id empty")
	}
	if resp.Status != "queued" {
		t.Fatalf("status = %q, want queued", resp.Status)
	}
}

func TestCreatePortraitDeniedReturns429WithRetryAfter(t *testing.T) {
	jobs := newMemJobs()
	jobs.Create(context.Background(), &domain.Job{
		ID: "busy-1", UserID: "user-1", UploadIDs: []string{"u"},
		Style: "anime", Status: domain.JobStatusProcessing,
	})
	api := newTestAPI(t, jobs, 1)

	body := `{"images": ["u-1"], "style": "watercolor"}`
	req := httptest.NewRequest("POST", "/v1/portraits", strings.NewReader(body))
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429: %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing")
	}
	var resp struct {
		Error             string `json:"error"`
		Reason            string `json:"reason"`
		RetryAfterSeconds int    `json:"retry_after_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "admission_denied" || resp.Reason != "busy" {
		t.Fatalf("body = %+v", resp)
	}
	if resp.RetryAfterSeconds <= 0 {
		t.Fatalf("retry_after_seconds = %d, want positive", resp.RetryAfterSeconds)
	}
}

func TestCreatePortraitRejectsBadPayload(t *testing.T) {
	api := newTestAPI(t, newMemJobs(), 5)

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"images": [`},
		{"unknown style", `{"images": ["u-1"], "style": "cubist"}`},
		{"no images", `{"style": "anime"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/portraits", strings.NewReader(tc.body))
			req.Header.Set("X-User-ID", "user-1")
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestBodyOrderIDDoesNotGrantPrivilege(t *testing.T) {
	api := newTestAPIWithLimit(t, newMemJobs(), 5, 1)

	post := func(body string, user string, orderHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/v1/portraits", strings.NewReader(body))
		req.Header.Set("X-User-ID", user)
		if orderHeader != "" {
			req.Header.Set("X-Order-ID", orderHeader)
		}
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(`{"images": ["u-1"], "style": "watercolor"}`, "user-1", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d, want 202: %s", rec.Code, rec.Body)
	}

	// The window only admits one request, so a second plain one is denied.
	if rec := post(`{"images": ["u-1"], "style": "watercolor"}`, "user-2", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429: %s", rec.Code, rec.Body)
	}

	// An order reference in the request body is untrusted and must not lift
	// the limit.
	rec := post(`{"images": ["u-1"], "style": "watercolor", "order_id": "spoofed"}`, "user-3", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("body order_id status = %d, want 429: %s", rec.Code, rec.Body)
	}

	// The header set by the auth layer after payment verification does.
	if rec := post(`{"images": ["u-1"], "style": "watercolor"}`, "user-4", "order-1"); rec.Code != http.StatusAccepted {
		t.Fatalf("verified order status = %d, want 202: %s", rec.Code, rec.Body)
	}
}

func TestPortraitStatusResponses(t *testing.T) {
	jobs := newMemJobs()
	jobs.Create(context.Background(), &domain.Job{
		ID: "done-1", UserID: "user-1", UploadIDs: []string{"u"},
		Style: "anime", Status: domain.JobStatusCompleted,
		PreviewKey: "outputs/preview-done-1.jpg", HDKey: "outputs/hd-done-1.jpg",
	})
	jobs.Create(context.Background(), &domain.Job{
		ID: "bad-1", UserID: "user-1", UploadIDs: []string{"u"},
		Style: "anime", Status: domain.JobStatusFailed,
		ErrorMessage: "We couldn't generate your portrait. Please try again.",
	})
	api := newTestAPI(t, jobs, 5)

	t.Run("completed exposes preview only", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/portraits/done-1", nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["status"] != "completed" {
			t.Fatalf("status = %v", resp["status"])
		}
		if resp["preview_url"] != "https://cdn.example.com/outputs/preview-done-1.jpg" {
			t.Fatalf("preview_url = %v", resp["preview_url"])
		}
		if strings.Contains(rec.Body.String(), "outputs/hd-") {
			t.Fatal("hd artifact leaked into status response")
		}
	})

	t.Run("failed exposes user-safe error", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/portraits/bad-1", nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		var resp map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp["status"] != "failed" {
			t.Fatalf("status = %v", resp["status"])
		}
		if resp["error"] == nil || resp["preview_url"] != nil {
			t.Fatalf("body = %v", resp)
		}
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/v1/portraits/11111111-1111-1111-1111-111111111111", nil)
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestStylesEndpoint(t *testing.T) {
	api := newTestAPI(t, newMemJobs(), 5)

	req := httptest.NewRequest("GET", "/v1/styles", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Styles []domain.Style `json:"styles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Styles) != 7 {
		t.Fatalf("styles = %d, want 7", len(resp.Styles))
	}
	if resp.Styles[0].ID != "renaissance" || resp.Styles[0].Name != "Renaissance" {
		t.Fatalf("first style = %+v", resp.Styles[0])
	}
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, newMemJobs(), 5)

	req := httptest.NewRequest("GET", "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
