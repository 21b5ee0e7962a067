package server

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

	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/metrics"
	"github.com/copyleftdev/ssoscry/internal/tasks"
	"github.com/copyleftdev/ssoscry/internal/tasks/mocks"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCodes struct {
	mu       sync.Mutex
	code     string
	err      error
	provider string
}

func (s *stubCodes) Code(_ context.Context, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = provider
	return s.code, s.err
}

func (s *stubCodes) lastProvider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *stubCodes) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type harness struct {
	srv     *httptest.Server
	manager *tasks.Manager
	browser *mocks.MockBrowserExecutor
	codes   *stubCodes
}

func newHarness(t *testing.T, apiKey string, setup ...func(*mocks.MockBrowserExecutor)) *harness {
	t.Helper()
	cfg := &config.Config{
		Security: config.SecurityConfig{AllowedOrigins: []string{"*"}, ApiKey: apiKey},
		MFA:      config.MFAConfig{Provider: "desktop"},
		Credentials: config.CredentialsConfig{
			Email: "qa@example.com", EmployeeID: "C603694", Password: "hunter2",
		},
		Apps: config.AppsConfig{
			Fileroom: config.FileroomConfig{BaseURL: "https://production.sureprep.com/", Domain: "Automation-01"},
		},
	}
	h := &harness{browser: mocks.NewMockBrowserExecutor(), codes: &stubCodes{code: "123456"}}
	for _, fn := range setup {
		fn(h.browser)
	}
	h.manager = tasks.NewManager(cfg, h.browser, nil, zap.NewNop())
	h.srv = httptest.NewServer(NewRouter(cfg, h.manager, h.codes, metrics.New(), zap.NewNop()))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, header ...string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, "key")

	resp, payload := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", payload["status"])

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIKeyAuth(t *testing.T) {
	h := newHarness(t, "key")

	resp, payload := h.do(t, http.MethodPost, "/api/v1/mfa/code", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "API key required", payload["error"])

	resp, _ = h.do(t, http.MethodPost, "/api/v1/mfa/code", "", "X-API-Key", "nope")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/mfa/code", "", "Authorization", "Bearer key")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitAndGetTask(t *testing.T) {
	h := newHarness(t, "")

	body := `{"name":"adhoc","actions":[{"type":"navigate","value":"https://example.com"}],"credentials":{"username":"u","password":"p"}}`
	resp, payload := h.do(t, http.MethodPost, "/api/v1/tasks", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := payload["task_id"].(string)

	require.Eventually(t, func() bool {
		_, p := h.do(t, http.MethodGet, "/api/v1/tasks/"+id, "")
		return p["status"] == string(taskstypes.StatusCompleted)
	}, 2*time.Second, 20*time.Millisecond)

	executed := h.browser.ExecutedTasks()
	require.Len(t, executed, 1)
	assert.Equal(t, "u", executed[0].Credentials.Username)
}

func TestSubmitTask_BadRequests(t *testing.T) {
	h := newHarness(t, "")

	resp, _ := h.do(t, http.MethodPost, "/api/v1/tasks", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, payload := h.do(t, http.MethodPost, "/api/v1/tasks", `{"actions":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Task must contain at least one action", payload["error"])
}

func TestGetTask_Errors(t *testing.T) {
	h := newHarness(t, "")

	resp, _ := h.do(t, http.MethodGet, "/api/v1/tasks/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProvide2FACode(t *testing.T) {
	h := newHarness(t, "", func(b *mocks.MockBrowserExecutor) { b.WaitForCode = true })

	body := `{"actions":[{"type":"mfa"}],"two_factor_auth":{"expected":true,"provider":"manual"}}`
	_, payload := h.do(t, http.MethodPost, "/api/v1/tasks", body)
	id := payload["task_id"].(string)

	require.Eventually(t, func() bool {
		_, p := h.do(t, http.MethodGet, "/api/v1/tasks/"+id, "")
		return p["status"] == string(taskstypes.StatusWaitingFor2FA)
	}, 2*time.Second, 20*time.Millisecond)

	resp, _ := h.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/2fa", `{"code":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/2fa", `{"code":"654321"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, p := h.do(t, http.MethodGet, "/api/v1/tasks/"+id, "")
		return p["status"] == string(taskstypes.StatusCompleted)
	}, 2*time.Second, 20*time.Millisecond)

	resp, _ = h.do(t, http.MethodPost, "/api/v1/tasks/"+id+"/2fa", `{"code":"654321"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStartLogin(t *testing.T) {
	h := newHarness(t, "")

	resp, payload := h.do(t, http.MethodPost, "/api/v1/logins/fileroom", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, err := uuid.Parse(payload["task_id"].(string))
	require.NoError(t, err)

	task, err := h.manager.GetTaskStatus(id)
	require.NoError(t, err)
	assert.Equal(t, "fileroom", task.Name)

	resp, payload = h.do(t, http.MethodPost, "/api/v1/logins/payroll", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, payload["error"], "unknown flow")

	// scd base URL is not configured in the harness.
	resp, _ = h.do(t, http.MethodPost, "/api/v1/logins/scd", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMFACode(t *testing.T) {
	h := newHarness(t, "")

	resp, payload := h.do(t, http.MethodPost, "/api/v1/mfa/code", `{"provider":"totp"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "123456", payload["code"])
	assert.Equal(t, "totp", h.codes.lastProvider())

	h.codes.fail(errors.New("PingID window not found"))
	resp, payload = h.do(t, http.MethodPost, "/api/v1/mfa/code", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, payload["error"], "window not found")
}
