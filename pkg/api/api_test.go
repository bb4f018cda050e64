package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/councilkit/council/pkg/models"
	"github.com/councilkit/council/pkg/orchestrator"
	"github.com/councilkit/council/pkg/pacer"
)

// stubInvoker answers every invocation with a fixed deliverable, keeping
// handler tests free of HTTP backends.
type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, inv models.ModelInvocation, _ string) (*models.InvocationResult, error) {
	return &models.InvocationResult{
		Content:      "# Plan\n\n## Steps\n1. build it\n2. ship it\n",
		ProviderUsed: inv.Provider,
		ModelUsed:    inv.Model,
		Status:       models.InvocationOK,
	}, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	generous := map[models.ProviderID]models.RateLimit{}
	for _, id := range models.ProviderPriority {
		generous[id] = models.RateLimit{RPS: 1000, Burst: 1000, Concurrency: 16}
	}
	orch := orchestrator.New(orchestrator.Options{
		Invoker: stubInvoker{},
		Pacers:  pacer.NewSet(generous),
	})
	return NewServer(orch, nil).Router(nil)
}

// closeNotifyRecorder adds the http.CloseNotifier method gin's Stream
// requires but httptest.ResponseRecorder lacks.
type closeNotifyRecorder struct{ *httptest.ResponseRecorder }

func (closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(closeNotifyRecorder{rec}, req)
	return rec
}

func runBody() map[string]any {
	return map[string]any{
		"query": "design an ingestion endpoint",
		"credentials": map[string]string{
			"openai": "sk-test-0123456789abcdef",
		},
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	rec := doJSON(t, newTestRouter(), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "disabled", body["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := doJSON(t, newTestRouter(), http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRun(t *testing.T) {
	rec := doJSON(t, newTestRouter(), http.MethodPost, "/api/v1/runs", runBody())

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.RunSuccess, result.Status)
	assert.Contains(t, result.Output, "# Plan")
}

func TestCreateRunMissingQuery(t *testing.T) {
	body := runBody()
	delete(body, "query")

	rec := doJSON(t, newTestRouter(), http.MethodPost, "/api/v1/runs", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunMissingCredentials(t *testing.T) {
	body := runBody()
	delete(body, "credentials")

	rec := doJSON(t, newTestRouter(), http.MethodPost, "/api/v1/runs", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions", runBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	var sess models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, models.SessionRunning, sess.Status)

	require.Eventually(t, func() bool {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sess.ID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var got models.Session
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			return false
		}
		return got.Status == models.SessionSuccess
	}, 5*time.Second, 20*time.Millisecond)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/sessions?org_scope=", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []models.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Sessions, 1)
}

func TestGetSessionNotFound(t *testing.T) {
	rec := doJSON(t, newTestRouter(), http.MethodGet, "/api/v1/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelSessionNotFound(t *testing.T) {
	rec := doJSON(t, newTestRouter(), http.MethodPost, "/api/v1/sessions/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTerminalSessionConflicts(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions", runBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var sess models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	require.Eventually(t, func() bool {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sess.ID, nil)
		var got models.Session
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		return got.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStreamEvents(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions", runBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var sess models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))

	stream := doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sess.ID+"/events", nil)
	require.Equal(t, http.StatusOK, stream.Code)
	assert.Equal(t, "text/event-stream", stream.Header().Get("Content-Type"))

	body := stream.Body.String()
	assert.Contains(t, body, "event:phase_start")
	assert.Contains(t, body, "event:final_answer_end")

	// The single observer slot is taken.
	second := doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+sess.ID+"/events", nil)
	assert.Equal(t, http.StatusConflict, second.Code)
}
