package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/metrics"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrNotWaitingCode = errors.New("task is not waiting for a 2FA code")
	ErrShuttingDown   = errors.New("task manager is shutting down")
)

const callbackTimeout = 10 * time.Second

type Manager struct {
	cfg             *config.Config
	browserExecutor BrowserExecutor
	logger          *zap.Logger
	metrics         *metrics.Metrics
	client          *http.Client

	mu       sync.RWMutex
	tasks    map[uuid.UUID]*taskstypes.Task
	cancels  map[uuid.UUID]context.CancelFunc
	closed   bool
	running  sync.WaitGroup
	notifies sync.WaitGroup
}

// NewManager creates a new task manager with the provided browser executor and logger.
func NewManager(cfg *config.Config, browserExecutor BrowserExecutor, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:             cfg,
		browserExecutor: browserExecutor,
		logger:          logger,
		metrics:         m,
		client:          &http.Client{Timeout: callbackTimeout},
		tasks:           make(map[uuid.UUID]*taskstypes.Task),
		cancels:         make(map[uuid.UUID]context.CancelFunc),
	}
}

// SubmitTask stores the task and starts executing it in the background.
func (m *Manager) SubmitTask(task *taskstypes.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrShuttingDown
	}
	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}
	if task.TfaCodeChan == nil {
		task.TfaCodeChan = make(chan string, 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.tasks[task.ID] = task
	m.cancels[task.ID] = cancel

	m.running.Add(1)
	go m.executeTask(ctx, task)

	return nil
}

// GetTaskStatus returns a copy of a task with its current status.
func (m *Manager) GetTaskStatus(id uuid.UUID) (*taskstypes.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, exists := m.tasks[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	taskCopy := *task
	taskCopy.Actions = append([]taskstypes.Action(nil), task.Actions...)
	if task.Result != nil {
		result := *task.Result
		taskCopy.Result = &result
	}
	return &taskCopy, nil
}

// Provide2FACode sends a 2FA code to a task waiting for one.
func (m *Manager) Provide2FACode(id uuid.UUID, code string) error {
	m.mu.RLock()
	task, exists := m.tasks[id]
	var status taskstypes.TaskStatus
	if exists {
		status = task.Status
	}
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if status != taskstypes.StatusWaitingFor2FA {
		return fmt.Errorf("%w (status: %s)", ErrNotWaitingCode, status)
	}

	select {
	case task.TfaCodeChan <- code:
		m.logger.Info("2FA code provided", zap.Stringer("task_id", id))
		return nil
	default:
		return fmt.Errorf("a 2FA code for task %s is already pending", id)
	}
}

func (m *Manager) executeTask(ctx context.Context, task *taskstypes.Task) {
	defer m.running.Done()
	defer m.forget(task.ID)

	log := m.logger.With(zap.Stringer("task_id", task.ID), zap.String("task", task.Name))
	m.updateTaskStatus(task, taskstypes.StatusRunning)
	log.Info("Task started", zap.Int("actions", len(task.Actions)))

	result, err := m.browserExecutor.ExecuteTask(ctx, task, &taskReporter{m: m, task: task})

	m.mu.Lock()
	if result == nil {
		result = &taskstypes.TaskResult{}
	}
	switch {
	case err != nil && ctx.Err() != nil:
		result.Success = false
		result.Error = err.Error()
		task.UpdateStatus(taskstypes.StatusCancelled)
	case err != nil:
		result.Success = false
		result.Error = err.Error()
		task.UpdateStatus(taskstypes.StatusFailed)
	default:
		task.UpdateStatus(taskstypes.StatusCompleted)
	}
	task.Result = result
	status := task.Status
	m.mu.Unlock()

	if err != nil {
		log.Warn("Task finished with error", zap.String("status", string(status)), zap.Error(err))
	} else {
		log.Info("Task completed")
	}
	m.metrics.ObserveLogin(flowLabel(task), string(status))

	if task.CallbackURL != "" {
		m.notifies.Add(1)
		go func() {
			defer m.notifies.Done()
			m.notifyCallback(task)
		}()
	}
}

func flowLabel(task *taskstypes.Task) string {
	if task.Name == "" {
		return "adhoc"
	}
	return task.Name
}

func (m *Manager) forget(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
		delete(m.cancels, id)
	}
}

func (m *Manager) updateTaskStatus(task *taskstypes.Task, status taskstypes.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.UpdateStatus(status)
}

type taskReporter struct {
	m    *Manager
	task *taskstypes.Task
}

func (r *taskReporter) SetStatus(status taskstypes.TaskStatus) {
	r.m.updateTaskStatus(r.task, status)
}

func (r *taskReporter) SetCurrentAction(index int) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.task.CurrentAction = index
	r.task.UpdatedAt = time.Now().UTC()
}

type callbackPayload struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name,omitempty"`
	Status        string                 `json:"status"`
	Result        *taskstypes.TaskResult `json:"result,omitempty"`
	CurrentAction int                    `json:"current_action"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// notifyCallback posts the final task state to the task's callback URL.
func (m *Manager) notifyCallback(task *taskstypes.Task) {
	m.mu.RLock()
	payload := callbackPayload{
		ID:            task.ID.String(),
		Name:          task.Name,
		Status:        string(task.Status),
		Result:        task.Result,
		CurrentAction: task.CurrentAction,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}
	body, err := json.Marshal(payload)
	m.mu.RUnlock()

	log := m.logger.With(zap.Stringer("task_id", task.ID), zap.String("callback_url", task.CallbackURL))
	if err != nil {
		log.Error("Failed to marshal callback payload", zap.Error(err))
		return
	}

	req, err := http.NewRequest(http.MethodPost, task.CallbackURL, bytes.NewReader(body))
	if err != nil {
		log.Error("Failed to create callback request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if m.cfg != nil && m.cfg.Security.CallbackToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.Security.CallbackToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		log.Warn("Callback request failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Info("Callback notification sent", zap.Int("status", resp.StatusCode))
	} else {
		log.Warn("Callback notification rejected", zap.Int("status", resp.StatusCode))
	}
}

// Shutdown stops accepting tasks, cancels running ones and waits for them and
// any pending callbacks before shutting the executor down.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for id, cancel := range m.cancels {
		m.logger.Info("Cancelling task during shutdown", zap.Stringer("task_id", id))
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		m.notifies.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown timeout reached while waiting for tasks")
		return ctx.Err()
	}

	if err := m.browserExecutor.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down browser executor: %w", err)
	}
	m.logger.Info("Task manager shut down")
	return nil
}
