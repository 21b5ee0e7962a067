package tasks

import (
	"context"

	"github.com/copyleftdev/ssoscry/internal/taskstypes"
)

// BrowserExecutor defines the interface for executing browser tasks.
// This decouples the task manager from the specific browser implementation.
type BrowserExecutor interface {
	// ExecuteTask runs the actions of task until one fails or ctx is done.
	// Progress is reported through r, which is never nil.
	ExecuteTask(ctx context.Context, task *taskstypes.Task, r Reporter) (*taskstypes.TaskResult, error)

	// Shutdown allows for graceful cleanup of browser resources if needed at this level.
	Shutdown(ctx context.Context) error
}

// Reporter receives progress from an executor while a task runs.
type Reporter interface {
	SetStatus(status taskstypes.TaskStatus)
	SetCurrentAction(index int)
}

// NopReporter is used when a task runs outside a Manager.
type NopReporter struct{}

func (NopReporter) SetStatus(taskstypes.TaskStatus) {}
func (NopReporter) SetCurrentAction(int)            {}
