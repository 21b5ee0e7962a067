package taskstypes

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task status constants
type TaskStatus string

const (
	StatusPending       TaskStatus = "pending"
	StatusRunning       TaskStatus = "running"
	StatusWaitingFor2FA TaskStatus = "waiting_for_2fa"
	StatusCompleted     TaskStatus = "completed"
	StatusFailed        TaskStatus = "failed"
	StatusCancelled     TaskStatus = "cancelled"
)

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Action type constants
type ActionType string

const (
	ActionNavigate    ActionType = "navigate"
	ActionWaitVisible ActionType = "wait_visible"
	ActionWaitHidden  ActionType = "wait_hidden"
	ActionWaitDelay   ActionType = "wait_delay"
	ActionClick       ActionType = "click"
	ActionClickForce  ActionType = "click_force"
	ActionInput       ActionType = "type"
	ActionFill        ActionType = "fill"
	ActionCheck       ActionType = "check"
	ActionSelect      ActionType = "select"
	ActionScroll      ActionType = "scroll"
	ActionScreenshot  ActionType = "screenshot"
	ActionAssertURL   ActionType = "assert_url"
	ActionGetDOM      ActionType = "get_dom"
	ActionRunScript   ActionType = "run_script"
	ActionLogin       ActionType = "login"
	ActionMFA         ActionType = "mfa"
)

// Selector strategies
const (
	ByCSS   = "css"
	ByXPath = "xpath"
)

// TFA provider constants
type TFAProvider string

const (
	TFAProviderDesktop TFAProvider = "desktop"
	TFAProviderTOTP    TFAProvider = "totp"
	TFAProviderManual  TFAProvider = "manual"
)

// TFACodePlaceholder in a type/fill value is replaced by the current code.
const TFACodePlaceholder = "{{task.tfa_code}}"

// Action represents a browser action to be performed
type Action struct {
	Name     string        `json:"name,omitempty"`
	Type     ActionType    `json:"type"`
	Selector string        `json:"selector,omitempty"`
	By       string        `json:"by,omitempty"`
	Value    string        `json:"value,omitempty"`
	Format   string        `json:"format,omitempty"`
	Attach   bool          `json:"attach,omitempty"`
	Secret   bool          `json:"secret,omitempty"`
	Timeout  time.Duration `json:"-"`
}

// SelectorOrDefault returns the selector if set, otherwise returns the default selector
func (a *Action) SelectorOrDefault(defaultSelector string) string {
	if a.Selector == "" {
		return defaultSelector
	}
	return a.Selector
}

// Label names the action in reports.
func (a *Action) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return string(a.Type)
}

// Credentials for authentication actions
type Credentials struct {
	Username string `json:"-"`
	Password string `json:"-"`
}

// TwoFactorAuthInfo for 2FA configuration and state
type TwoFactorAuthInfo struct {
	Expected bool        `json:"expected"`
	Provider TFAProvider `json:"provider,omitempty"`
	Code     string      `json:"-"`
}

// Attachment is an artifact produced by a step.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Step report status constants
const (
	StepPassed = "passed"
	StepFailed = "failed"
)

// StepReport records one executed action.
type StepReport struct {
	Name        string        `json:"name"`
	Action      ActionType    `json:"action"`
	Status      string        `json:"status"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// Task struct definition
type Task struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name,omitempty"`
	Status           TaskStatus        `json:"status"`
	Actions          []Action          `json:"actions"`
	Credentials      *Credentials      `json:"-"`
	TwoFactorAuth    TwoFactorAuthInfo `json:"two_factor_auth"`
	CurrentAction    int               `json:"current_action"`
	Result           *TaskResult       `json:"result,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	BrowserContextID string            `json:"-"`
	CallbackURL      string            `json:"callback_url,omitempty"`
	TfaCodeChan      chan string       `json:"-"`
}

// NewTask creates a pending task with a fresh ID and code channel.
func NewTask(name string, actions []Action, creds *Credentials, tfa TwoFactorAuthInfo, callback string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:            uuid.New(),
		Name:          name,
		Status:        StatusPending,
		Actions:       actions,
		Credentials:   creds,
		TwoFactorAuth: tfa,
		CreatedAt:     now,
		UpdatedAt:     now,
		CallbackURL:   callback,
		TfaCodeChan:   make(chan string, 1),
	}
}

// ManualCodeTimeout bounds how long a task waits for a posted code.
const ManualCodeTimeout = 5 * time.Minute

// WaitForTFACode waits for a 2FA code to be provided through the task's channel
func (t *Task) WaitForTFACode(ctx context.Context) (string, error) {
	if t.TfaCodeChan == nil {
		t.TfaCodeChan = make(chan string, 1)
	}

	ctx, cancel := context.WithTimeout(ctx, ManualCodeTimeout)
	defer cancel()

	select {
	case code := <-t.TfaCodeChan:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TaskResult contains the execution result
type TaskResult struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message,omitempty"`
	Data       interface{}            `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Steps      []StepReport           `json:"steps,omitempty"`
	CustomData map[string]interface{} `json:"custom_data,omitempty"`
}

// FailedStep returns the first failed step, if any.
func (r *TaskResult) FailedStep() (StepReport, bool) {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return s, true
		}
	}
	return StepReport{}, false
}

// UpdateStatus updates the task status and timestamp
func (t *Task) UpdateStatus(status TaskStatus) {
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
}

// SetResult sets the task result
func (t *Task) SetResult(success bool, message string, data interface{}, customData map[string]interface{}, err error) {
	if t.Result == nil {
		t.Result = &TaskResult{}
	}

	t.Result.Success = success
	t.Result.Message = message
	t.Result.Data = data
	t.Result.CustomData = customData

	if err != nil {
		t.Result.Error = err.Error()
	} else {
		t.Result.Error = ""
	}
	t.UpdatedAt = time.Now().UTC()
}
