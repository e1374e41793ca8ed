package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-search/internal/blob"
	"github.com/jonathan/talent-search/internal/db/sqlite"
	"github.com/jonathan/talent-search/internal/intake"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/server/ratelimit"
	"github.com/jonathan/talent-search/internal/signature"
	"github.com/jonathan/talent-search/internal/types"
	"github.com/jonathan/talent-search/internal/webhook"
)

const testSecret = "whsec_server_test"

type countingNotifier struct {
	mu    sync.Mutex
	count int
	ids   []uuid.UUID
}

func (n *countingNotifier) Notify(_ context.Context, search *types.Search) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	n.ids = append(n.ids, search.ID)
}

func (n *countingNotifier) Wait() {}

func (n *countingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type harness struct {
	server   *Server
	store    *sqlite.Store
	signer   *signature.Signer
	notifier *countingNotifier
}

type harnessOption func(*Config, *Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "searches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)

	signer, err := signature.NewSigner(testSecret)
	require.NoError(t, err)

	notifier := &countingNotifier{}
	machine := lifecycle.New(store, notifier, nil)
	hooks, err := webhook.NewHandler(signer, machine, nil)
	require.NoError(t, err)

	cfg := Config{Port: 0, MaxUploadBytes: 1 << 20}
	deps := Deps{
		Searches: store,
		Grading:  machine,
		Intake:   intake.NewService(store, blobs, nil),
		Webhooks: hooks,
		Checks:   map[string]Pinger{"database": store, "blob": blobs},
		Notifier: notifier,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	srv, err := New(cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { srv.rateLimiter.Stop() })

	return &harness{server: srv, store: store, signer: signer, notifier: notifier}
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) seed(t *testing.T, status types.Status) uuid.UUID {
	t.Helper()
	search := &types.Search{
		ID:             uuid.New(),
		Name:           "Ari",
		JobDescription: "Own the payments platform.",
		ContactName:    "Ari",
		ContactEmail:   "ari@example.com",
		Status:         status,
		Criteria:       types.Criteria{JobTitle: "Staff Engineer"},
	}
	require.NoError(t, h.store.CreateSearch(context.Background(), search))
	return search.ID
}

func (h *harness) callback(t *testing.T, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, h.signer.Sign([]byte(body)))
	return h.do(t, req)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func confirmBody(weights ...float64) string {
	names := []string{"Role Fit", "Skills", "Domain", "Team Fit"}
	dims := make([]types.Dimension, 0, len(weights))
	w := make(map[string]float64, len(weights))
	for i, v := range weights {
		dims = append(dims, types.Dimension{Name: names[i], Reason: "because"})
		w[names[i]] = v
	}
	b, _ := json.Marshal(types.ConfirmGradingRequest{Dimensions: dims, Weights: w})
	return string(b)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthConnections(t *testing.T) {
	t.Run("all reachable", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(t, httptest.NewRequest(http.MethodGet, "/health/connections", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, map[string]any{"database": "ok", "blob": "ok"}, body["checks"])
	})

	t.Run("one down", func(t *testing.T) {
		h := newHarness(t, func(_ *Config, d *Deps) {
			d.Checks["replay"] = pingFunc(func(context.Context) error { return errors.New("connection refused") })
		})
		rec := h.do(t, httptest.NewRequest(http.MethodGet, "/health/connections", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "degraded", body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "unavailable", checks["replay"])
		assert.Equal(t, "ok", checks["database"])
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "talent_search_http_requests_total")
}

func TestSuggestion(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/grading/suggestion?job_title=SRE", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Dimensions []types.Dimension  `json:"dimensions"`
		Weights    map[string]float64 `json:"weights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Dimensions, 4)

	var sum float64
	for _, w := range got.Weights {
		sum += w
	}
	assert.InDelta(t, 100, sum, 0.001)
}

func multipartBrief(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("attachments", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func validBrief() map[string]string {
	return map[string]string{
		"name":            "Ari",
		"job_title":       "Staff Engineer",
		"job_description": "Own the payments platform.",
		"seniority":       "staff",
		"contact_name":    "Ari",
		"contact_email":   "ari@example.com",
		"company":         "Acme",
	}
}

func TestCreateSearch(t *testing.T) {
	h := newHarness(t)

	body, contentType := multipartBrief(t, validBrief(), map[string]string{"brief.pdf": "%PDF-1.4", "empty.txt": ""})
	req := httptest.NewRequest(http.MethodPost, "/searches", body)
	req.Header.Set("Content-Type", contentType)

	rec := h.do(t, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created intake.Created
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "/ai-search/grading?searchId="+created.ID.String(), created.Next)
	assert.Len(t, created.GradingSuggestion.Dimensions, 4)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/searches/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail types.SearchDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, types.StatusSubmitted, detail.Status)
	assert.Equal(t, "Staff Engineer", detail.Criteria.JobTitle)
	require.Len(t, detail.Attachments, 1)
	assert.Equal(t, "brief.pdf", detail.Attachments[0].FileName)
	require.Len(t, detail.Events, 1)
	assert.Equal(t, types.EventFormSubmitted, detail.Events[0].Type)
}

func TestCreateSearch_InvalidBrief(t *testing.T) {
	h := newHarness(t)

	fields := validBrief()
	fields["contact_email"] = "not-an-email"
	body, contentType := multipartBrief(t, fields, nil)
	req := httptest.NewRequest(http.MethodPost, "/searches", body)
	req.Header.Set("Content-Type", contentType)

	rec := h.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "email", got["rule"])
}

func TestCreateSearch_TooLarge(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.MaxUploadBytes = 1024 })

	body, contentType := multipartBrief(t, validBrief(), map[string]string{"big.bin": strings.Repeat("x", 4096)})
	req := httptest.NewRequest(http.MethodPost, "/searches", body)
	req.Header.Set("Content-Type", contentType)

	rec := h.do(t, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetSearch_Errors(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/searches/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/searches/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmGrading(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, types.StatusSubmitted)
	path := "/searches/" + id.String() + "/confirm-grading"

	rec := h.do(t, httptest.NewRequest(http.MethodPost, path, strings.NewReader(confirmBody(35, 35, 20, 10))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"status": "ok", "next": "/searches/" + id.String()}, decodeBody(t, rec))
	assert.Equal(t, 1, h.notifier.calls())

	search, err := h.store.GetSearch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusGradingConfirmed, search.Status)
	assert.InDelta(t, 35, search.Weights["Role Fit"], 0.001)

	// A second confirmation is a conflict and does not notify again.
	rec = h.do(t, httptest.NewRequest(http.MethodPost, path, strings.NewReader(confirmBody(35, 35, 20, 10))))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, h.notifier.calls())
}

func TestConfirmGrading_Rejections(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, types.StatusSubmitted)
	path := "/searches/" + id.String() + "/confirm-grading"

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantRule string
	}{
		{"weights over", path, confirmBody(40, 35, 20, 10), http.StatusBadRequest, "weight_sum"},
		{"weights under", path, confirmBody(30, 30, 20, 10), http.StatusBadRequest, "weight_sum"},
		{"missing weights", path, `{"dimensions":[{"name":"A"}]}`, http.StatusBadRequest, "schema"},
		{"not json", path, `{`, http.StatusBadRequest, "schema"},
		{"bad id", "/searches/nope/confirm-grading", confirmBody(100), http.StatusBadRequest, ""},
		{"unknown id", "/searches/" + uuid.NewString() + "/confirm-grading", confirmBody(100), http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantRule != "" {
				assert.Equal(t, tt.wantRule, decodeBody(t, rec)["rule"])
			}
		})
	}

	search, err := h.store.GetSearch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, search.Status)
	assert.Zero(t, h.notifier.calls())
}

func TestWebhook_Lifecycle(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, types.StatusSubmitted)

	rec := h.do(t, httptest.NewRequest(http.MethodPost, "/searches/"+id.String()+"/confirm-grading",
		strings.NewReader(confirmBody(50, 50))))
	require.Equal(t, http.StatusOK, rec.Code)

	processing := fmt.Sprintf(`{"search_id":%q,"status":"processing","n8n_run_id":"run-1"}`, id)
	rec = h.callback(t, "/webhooks/automation/search-updated", processing)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	ready := fmt.Sprintf(`{"search_id":%q,"status":"ready","result_url":"https://results.example.com/r/1"}`, id)
	rec = h.callback(t, "/webhooks/n8n/search-updated", ready)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A late processing delivery is a duplicate, not an error.
	rec = h.callback(t, "/webhooks/automation/search-updated", processing)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/searches/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail types.SearchDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, types.StatusReady, detail.Status)
	require.NotNil(t, detail.ResultURL)
	assert.Equal(t, "https://results.example.com/r/1", *detail.ResultURL)
	require.NotNil(t, detail.AutomationRunID)
	assert.Equal(t, "run-1", *detail.AutomationRunID)
	// grading_confirmed plus two applied callbacks.
	assert.Len(t, detail.Events, 3)
}

func TestWebhook_Rejections(t *testing.T) {
	h := newHarness(t)
	submitted := h.seed(t, types.StatusSubmitted)
	path := "/webhooks/automation/search-updated"

	t.Run("bad signature", func(t *testing.T) {
		body := fmt.Sprintf(`{"search_id":%q,"status":"ready"}`, submitted)
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(signature.HeaderName, "sha256="+strings.Repeat("0", 64))

		rec := h.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"invalid signature"}`, rec.Body.String())
	})

	t.Run("missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		rec := h.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("schema violation", func(t *testing.T) {
		rec := h.callback(t, path, fmt.Sprintf(`{"search_id":%q,"status":"done"}`, submitted))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decodeBody(t, rec)["fields"])
	})

	t.Run("unknown search", func(t *testing.T) {
		rec := h.callback(t, path, fmt.Sprintf(`{"search_id":%q,"status":"ready"}`, uuid.New()))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("before grading", func(t *testing.T) {
		rec := h.callback(t, path, fmt.Sprintf(`{"search_id":%q,"status":"processing"}`, submitted))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		body := `{"summary":"` + strings.Repeat("x", maxJSONBody) + `"}`
		rec := h.callback(t, path, body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	search, err := h.store.GetSearch(context.Background(), submitted)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, search.Status)
}

func TestWebhook_NotConfigured(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) {
		hooks, err := webhook.NewHandler(nil, nil, nil)
		if err != nil {
			panic(err)
		}
		d.Webhooks = hooks
	})

	rec := h.callback(t, "/webhooks/automation/search-updated", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"webhook not configured"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	t.Run("any origin by default", func(t *testing.T) {
		h := newHarness(t)
		req := httptest.NewRequest(http.MethodOptions, "/searches", nil)
		req.Header.Set("Origin", "https://ui.example.com")

		rec := h.do(t, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Signature")
	})

	t.Run("allow list", func(t *testing.T) {
		h := newHarness(t, func(c *Config, _ *Deps) { c.CORSOrigins = []string{"https://ui.example.com"} })

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://ui.example.com")
		assert.Equal(t, "https://ui.example.com", h.do(t, req).Header().Get("Access-Control-Allow-Origin"))

		req = httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		assert.Empty(t, h.do(t, req).Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) {
		c.RateLimit = &ratelimit.Config{
			Enabled:       true,
			DefaultLimit:  1000,
			DefaultWindow: time.Minute,
			EndpointConfigs: []ratelimit.EndpointConfig{
				{Path: "/grading/suggestion", Method: "GET", Limit: 1, Window: time.Minute, Burst: 1},
			},
		}
	})

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/grading/suggestion", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/grading/suggestion", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeBody(t, rec)["error"])

	// Health is never limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, h.do(t, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	}
}

func TestRecoverer(t *testing.T) {
	h := newHarness(t)
	handler := h.server.jsonRecoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestNotFoundRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
