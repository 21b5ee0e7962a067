package mocks

import (
	"context"
	"sync"

	"github.com/copyleftdev/ssoscry/internal/tasks"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
)

// MockBrowserExecutor implements the tasks.BrowserExecutor interface for testing
type MockBrowserExecutor struct {
	mu             sync.Mutex
	executedTasks  []*taskstypes.Task
	results        map[string]*taskstypes.TaskResult
	errors         map[string]error
	shutdownCalled bool
	shutdownError  error

	// WaitForCode makes tasks expecting 2FA block on their code channel.
	WaitForCode bool
	// Block makes every task wait until its context is cancelled.
	Block bool
}

// NewMockBrowserExecutor creates a new mock browser executor
func NewMockBrowserExecutor() *MockBrowserExecutor {
	return &MockBrowserExecutor{
		results: make(map[string]*taskstypes.TaskResult),
		errors:  make(map[string]error),
	}
}

// ExecuteTask implements the BrowserExecutor interface
func (m *MockBrowserExecutor) ExecuteTask(ctx context.Context, task *taskstypes.Task, r tasks.Reporter) (*taskstypes.TaskResult, error) {
	m.mu.Lock()
	m.executedTasks = append(m.executedTasks, task)
	waitForCode, block := m.WaitForCode, m.Block
	result, hasResult := m.results[task.ID.String()]
	err := m.errors[task.ID.String()]
	m.mu.Unlock()

	r.SetCurrentAction(0)

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	steps := []taskstypes.StepReport{}
	if waitForCode && task.TwoFactorAuth.Expected {
		r.SetStatus(taskstypes.StatusWaitingFor2FA)
		if _, err := task.WaitForTFACode(ctx); err != nil {
			return nil, err
		}
		r.SetStatus(taskstypes.StatusRunning)
		steps = append(steps, taskstypes.StepReport{
			Name:   "Enter passcode",
			Action: taskstypes.ActionMFA,
			Status: taskstypes.StepPassed,
		})
	}

	if hasResult {
		return result, err
	}
	return &taskstypes.TaskResult{
		Success: true,
		Message: "Task executed successfully by mock executor",
		Steps:   steps,
	}, nil
}

// Shutdown implements the BrowserExecutor interface
func (m *MockBrowserExecutor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownCalled = true
	return m.shutdownError
}

// ExecutedTasks returns the tasks that were executed
func (m *MockBrowserExecutor) ExecutedTasks() []*taskstypes.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*taskstypes.Task(nil), m.executedTasks...)
}

// WasShutdownCalled returns whether Shutdown was called
func (m *MockBrowserExecutor) WasShutdownCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.shutdownCalled
}

// SetExecutionResult sets a predefined result for a task ID
func (m *MockBrowserExecutor) SetExecutionResult(taskID string, result *taskstypes.TaskResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[taskID] = result
	m.errors[taskID] = err
}

// SetShutdownError sets the error to return from Shutdown
func (m *MockBrowserExecutor) SetShutdownError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownError = err
}
