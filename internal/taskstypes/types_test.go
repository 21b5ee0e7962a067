package taskstypes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	actions := []Action{
		{Name: "Navigate to login page", Type: ActionNavigate, Value: "https://example.com"},
		{Type: ActionWaitVisible, Selector: "#content"},
	}

	task := NewTask("fileroom", actions, &Credentials{Username: "u", Password: "p"}, TwoFactorAuthInfo{Expected: true, Provider: TFAProviderDesktop}, "")

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "fileroom", task.Name)
	assert.Equal(t, StatusPending, task.Status)
	assert.Len(t, task.Actions, 2)
	assert.NotNil(t, task.TfaCodeChan)
	assert.Equal(t, "Navigate to login page", task.Actions[0].Label())
	assert.Equal(t, "wait_visible", task.Actions[1].Label())
}

func TestTask_WaitForTFACode(t *testing.T) {
	task := NewTask("", nil, nil, TwoFactorAuthInfo{Expected: true, Provider: TFAProviderManual}, "")

	go func() {
		time.Sleep(50 * time.Millisecond)
		task.TfaCodeChan <- "123456"
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	code, err := task.WaitForTFACode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
}

func TestTask_WaitForTFACode_Cancelled(t *testing.T) {
	task := &Task{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := task.WaitForTFACode(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, task.TfaCodeChan)
}

func TestTask_SetResult(t *testing.T) {
	task := &Task{}

	task.SetResult(false, "failed", nil, nil, errors.New("boom"))
	assert.Equal(t, "boom", task.Result.Error)

	task.SetResult(true, "ok", "data", map[string]interface{}{"k": "v"}, nil)
	assert.True(t, task.Result.Success)
	assert.Empty(t, task.Result.Error)
	assert.Equal(t, "v", task.Result.CustomData["k"])
}

func TestTaskResult_FailedStep(t *testing.T) {
	r := &TaskResult{Steps: []StepReport{
		{Name: "Navigate", Status: StepPassed},
		{Name: "Click Sign On", Status: StepFailed, Error: "timeout"},
		{Name: "Never", Status: StepFailed},
	}}

	step, ok := r.FailedStep()
	require.True(t, ok)
	assert.Equal(t, "Click Sign On", step.Name)

	_, ok = (&TaskResult{Steps: []StepReport{{Status: StepPassed}}}).FailedStep()
	assert.False(t, ok)
}

func TestTaskStatuses(t *testing.T) {
	statuses := []TaskStatus{
		StatusPending,
		StatusRunning,
		StatusWaitingFor2FA,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	}

	seen := make(map[string]bool)
	for _, status := range statuses {
		assert.False(t, seen[string(status)], "Duplicate status: %s", status)
		seen[string(status)] = true
	}

	assert.True(t, StatusCompleted.Finished())
	assert.True(t, StatusCancelled.Finished())
	assert.False(t, StatusWaitingFor2FA.Finished())
}
