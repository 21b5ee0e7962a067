package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
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

func testConfig() *config.Config {
	return &config.Config{
		Browser: config.BrowserConfig{MaxSessions: 1, Headless: true},
	}
}

func navigateTask(name string) *taskstypes.Task {
	return taskstypes.NewTask(name, []taskstypes.Action{
		{Type: taskstypes.ActionNavigate, Value: "https://example.com"},
		{Type: taskstypes.ActionWaitVisible, Selector: "#content"},
	}, nil, taskstypes.TwoFactorAuthInfo{}, "")
}

func waitForStatus(t *testing.T, m *tasks.Manager, id uuid.UUID, want taskstypes.TaskStatus) *taskstypes.Task {
	t.Helper()
	var last *taskstypes.Task
	require.Eventually(t, func() bool {
		task, err := m.GetTaskStatus(id)
		if err != nil {
			return false
		}
		last = task
		return task.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return last
}

func TestManager_SubmitTask(t *testing.T) {
	mockBrowser := mocks.NewMockBrowserExecutor()
	manager := tasks.NewManager(testConfig(), mockBrowser, nil, zap.NewNop())

	task := navigateTask("")
	require.NoError(t, manager.SubmitTask(task))

	done := waitForStatus(t, manager, task.ID, taskstypes.StatusCompleted)
	assert.Equal(t, task.ID, done.ID)
	assert.Len(t, done.Actions, 2)
	require.NotNil(t, done.Result)
	assert.True(t, done.Result.Success)
	assert.Len(t, mockBrowser.ExecutedTasks(), 1)
}

func TestManager_SubmitDuplicate(t *testing.T) {
	manager := tasks.NewManager(testConfig(), mocks.NewMockBrowserExecutor(), nil, nil)
	task := navigateTask("")

	require.NoError(t, manager.SubmitTask(task))
	assert.Error(t, manager.SubmitTask(task))
}

func TestManager_FailedTask(t *testing.T) {
	mockBrowser := mocks.NewMockBrowserExecutor()
	m := metrics.New()
	manager := tasks.NewManager(testConfig(), mockBrowser, m, zap.NewNop())

	task := navigateTask("fileroom")
	mockBrowser.SetExecutionResult(task.ID.String(), &taskstypes.TaskResult{
		Steps: []taskstypes.StepReport{{Name: "Click Sign On", Status: taskstypes.StepFailed}},
	}, errors.New("element not found"))
	require.NoError(t, manager.SubmitTask(task))

	done := waitForStatus(t, manager, task.ID, taskstypes.StatusFailed)
	assert.False(t, done.Result.Success)
	assert.Equal(t, "element not found", done.Result.Error)
	assert.Len(t, done.Result.Steps, 1)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return strings.Contains(rec.Body.String(), `ssoscry_login_runs_total{flow="fileroom",status="failed"} 1`)
	}, time.Second, 10*time.Millisecond)
}

func TestManager_GetUnknownTask(t *testing.T) {
	manager := tasks.NewManager(testConfig(), mocks.NewMockBrowserExecutor(), nil, nil)

	_, err := manager.GetTaskStatus(uuid.New())

	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
}

func TestManager_Provide2FACode(t *testing.T) {
	mockBrowser := mocks.NewMockBrowserExecutor()
	mockBrowser.WaitForCode = true
	manager := tasks.NewManager(testConfig(), mockBrowser, nil, zap.NewNop())

	task := taskstypes.NewTask("", nil, nil, taskstypes.TwoFactorAuthInfo{Expected: true, Provider: taskstypes.TFAProviderManual}, "")
	require.NoError(t, manager.SubmitTask(task))

	waitForStatus(t, manager, task.ID, taskstypes.StatusWaitingFor2FA)
	require.NoError(t, manager.Provide2FACode(task.ID, "123456"))

	done := waitForStatus(t, manager, task.ID, taskstypes.StatusCompleted)
	require.Len(t, done.Result.Steps, 1)
	assert.Equal(t, taskstypes.ActionMFA, done.Result.Steps[0].Action)
}

func TestManager_Provide2FACode_NotWaiting(t *testing.T) {
	manager := tasks.NewManager(testConfig(), mocks.NewMockBrowserExecutor(), nil, nil)
	task := navigateTask("")
	require.NoError(t, manager.SubmitTask(task))
	waitForStatus(t, manager, task.ID, taskstypes.StatusCompleted)

	err := manager.Provide2FACode(task.ID, "123456")
	assert.ErrorIs(t, err, tasks.ErrNotWaitingCode)

	err = manager.Provide2FACode(uuid.New(), "123456")
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
}

func TestManager_Callback(t *testing.T) {
	type received struct {
		auth    string
		payload map[string]interface{}
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		got <- received{auth: r.Header.Get("Authorization"), payload: payload}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Security.CallbackToken = "s3cret"
	manager := tasks.NewManager(cfg, mocks.NewMockBrowserExecutor(), nil, zap.NewNop())

	task := navigateTask("scd")
	task.CallbackURL = srv.URL
	require.NoError(t, manager.SubmitTask(task))

	select {
	case r := <-got:
		assert.Equal(t, "Bearer s3cret", r.auth)
		assert.Equal(t, task.ID.String(), r.payload["id"])
		assert.Equal(t, "completed", r.payload["status"])
		assert.Equal(t, "scd", r.payload["name"])
	case <-time.After(2 * time.Second):
		t.Fatal("callback was not delivered")
	}
}

func TestManager_ShutdownCancelsRunningTasks(t *testing.T) {
	mockBrowser := mocks.NewMockBrowserExecutor()
	mockBrowser.Block = true
	manager := tasks.NewManager(testConfig(), mockBrowser, nil, zap.NewNop())

	task := navigateTask("")
	require.NoError(t, manager.SubmitTask(task))
	waitForStatus(t, manager, task.ID, taskstypes.StatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, manager.Shutdown(ctx))

	done, err := manager.GetTaskStatus(task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskstypes.StatusCancelled, done.Status)
	assert.True(t, mockBrowser.WasShutdownCalled())
	assert.ErrorIs(t, manager.SubmitTask(navigateTask("")), tasks.ErrShuttingDown)
}

func TestManager_ShutdownExecutorError(t *testing.T) {
	mockBrowser := mocks.NewMockBrowserExecutor()
	mockBrowser.SetShutdownError(errors.New("chrome did not exit"))
	manager := tasks.NewManager(testConfig(), mockBrowser, nil, nil)

	err := manager.Shutdown(context.Background())

	assert.ErrorContains(t, err, "chrome did not exit")
}
