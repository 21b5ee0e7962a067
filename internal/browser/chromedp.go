package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/dom"
	"github.com/copyleftdev/ssoscry/internal/logging"
	"github.com/copyleftdev/ssoscry/internal/tasks"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Compile-time check to ensure Manager implements the interface
var _ tasks.BrowserExecutor = (*Manager)(nil)

// CodeSource hands out one-time codes by provider name. An empty name means
// the configured default.
type CodeSource interface {
	Code(ctx context.Context, provider string) (string, error)
}

const diagnosticsTimeout = 10 * time.Second

type Manager struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	cfg             *config.BrowserConfig
	codes           CodeSource
	logger          *zap.Logger
	sem             *semaphore.Weighted
	activeCtxWg     sync.WaitGroup
}

func NewManager(cfg *config.BrowserConfig, codes CodeSource, logger *zap.Logger) (*Manager, error) {
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("browser.maxSessions must be at least 1, got %d", cfg.MaxSessions)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.WindowSize(1280, 1024),
		chromedp.IgnoreCertErrors,
	)

	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	} else {
		opts = append(opts, chromedp.Flag("guest", true))
	}

	allocatorCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Manager{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: cancel,
		cfg:             cfg,
		codes:           codes,
		logger:          logger,
		sem:             semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}, nil
}

// newSession opens a browser tab that is closed when ctx is done or the
// returned cancel func is called.
func (m *Manager) newSession(ctx context.Context) (context.Context, context.CancelFunc) {
	sugar := m.logger.Named("chromedp").Sugar()
	browserCtx, browserCancel := chromedp.NewContext(
		m.allocatorCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Warnf),
	)
	stop := context.AfterFunc(ctx, browserCancel)
	return browserCtx, func() {
		stop()
		browserCancel()
	}
}

// ExecuteTask implements the tasks.BrowserExecutor interface.
func (m *Manager) ExecuteTask(ctx context.Context, task *taskstypes.Task, r tasks.Reporter) (*taskstypes.TaskResult, error) {
	if r == nil {
		r = tasks.NopReporter{}
	}
	if m.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.TaskTimeout)
		defer cancel()
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire browser slot: %w", err)
	}
	defer m.sem.Release(1)

	m.activeCtxWg.Add(1)
	defer m.activeCtxWg.Done()

	browserCtx, closeSession := m.newSession(ctx)
	defer closeSession()

	log := m.logger.With(zap.Stringer("task_id", task.ID), zap.String("task", task.Name))
	result := &taskstypes.TaskResult{
		Success: true,
		Message: "Task completed successfully",
	}

	for i, action := range task.Actions {
		r.SetCurrentAction(i)
		if i > 0 && m.cfg.SlowMo > 0 {
			if err := chromedp.Run(browserCtx, chromedp.Sleep(m.cfg.SlowMo)); err != nil {
				return m.fail(result, action, i, err)
			}
		}

		step, err := m.runStep(browserCtx, task, action, r, log)
		if err != nil {
			step.Attachments = append(step.Attachments, m.diagnose(browserCtx, log)...)
		}
		result.Steps = append(result.Steps, step)
		if err != nil {
			return m.fail(result, action, i, err)
		}
	}

	log.Info("All actions completed", zap.Int("steps", len(result.Steps)))
	return result, nil
}

func (m *Manager) fail(result *taskstypes.TaskResult, action taskstypes.Action, i int, err error) (*taskstypes.TaskResult, error) {
	result.Success = false
	result.Message = fmt.Sprintf("Failed on action %d: %s", i, action.Label())
	result.Error = err.Error()
	return result, fmt.Errorf("step %q failed: %w", action.Label(), err)
}

func (m *Manager) runStep(ctx context.Context, task *taskstypes.Task, action taskstypes.Action, r tasks.Reporter, log *zap.Logger) (taskstypes.StepReport, error) {
	step := taskstypes.StepReport{Name: action.Label(), Action: action.Type, Status: taskstypes.StepPassed}
	start := time.Now()
	log = log.With(zap.String("step", step.Name), zap.String("action", string(action.Type)))
	log.Debug("Running step")

	var (
		out Output
		err error
	)
	switch action.Type {
	case taskstypes.ActionMFA:
		err = m.enterPasscode(ctx, task, action, r, log)
	default:
		var cdpAction chromedp.Action
		cdpAction, err = GenerateActionSequence(action, task.Credentials, "", &out)
		if err == nil {
			err = chromedp.Run(ctx, cdpAction)
		}
		if err == nil && task.TwoFactorAuth.Expected && watchesFor2FA(action.Type) {
			err = m.handle2FAPrompt(ctx, task, r, log)
		}
	}

	step.Duration = time.Since(start)
	if err != nil {
		step.Status = taskstypes.StepFailed
		step.Error = err.Error()
		log.Warn("Step failed", zap.Duration("took", step.Duration), zap.Error(err))
		return step, err
	}

	if len(out.Screenshot) > 0 {
		step.Attachments = append(step.Attachments, taskstypes.Attachment{
			Name:        "screenshot",
			ContentType: screenshotContentType(action.Value),
			Body:        out.Screenshot,
		})
	}
	if action.Attach && !action.Secret {
		if text := m.stepText(ctx, action, out, log); text != "" {
			step.Attachments = append(step.Attachments, taskstypes.Attachment{Name: step.Name, ContentType: "text/plain", Text: text})
		}
	}
	log.Info("Step passed", zap.Duration("took", step.Duration))
	return step, nil
}

func watchesFor2FA(t taskstypes.ActionType) bool {
	return t == taskstypes.ActionNavigate || t == taskstypes.ActionClick || t == taskstypes.ActionClickForce
}

// stepText is what an attached step records: its output, the value it
// entered, or the page URL it led to.
func (m *Manager) stepText(ctx context.Context, action taskstypes.Action, out Output, log *zap.Logger) string {
	if text := attachmentText(out); text != "" {
		return text
	}
	switch action.Type {
	case taskstypes.ActionFill, taskstypes.ActionInput, taskstypes.ActionSelect:
		return action.Value
	case taskstypes.ActionNavigate, taskstypes.ActionAssertURL:
		var url string
		if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
			log.Debug("Failed to read page URL", zap.Error(err))
			return ""
		}
		return url
	}
	return ""
}

func attachmentText(out Output) string {
	if out.Text != "" {
		return out.Text
	}
	if out.Value != nil {
		return fmt.Sprint(out.Value)
	}
	return ""
}

// FullScreenshot encodes PNG only at quality 100.
func screenshotContentType(quality string) string {
	if quality == "100" {
		return "image/png"
	}
	return "image/jpeg"
}

// passcode fetches one code for the task, waiting on the API for manual
// tasks.
func (m *Manager) passcode(ctx context.Context, task *taskstypes.Task, r tasks.Reporter) (string, error) {
	if task.TwoFactorAuth.Provider == taskstypes.TFAProviderManual {
		r.SetStatus(taskstypes.StatusWaitingFor2FA)
		code, err := task.WaitForTFACode(ctx)
		r.SetStatus(taskstypes.StatusRunning)
		if err != nil {
			return "", fmt.Errorf("2FA code wait error: %w", err)
		}
		return code, nil
	}
	if m.codes == nil {
		return "", errors.New("no MFA provider configured")
	}
	return m.codes.Code(ctx, string(task.TwoFactorAuth.Provider))
}

// enterPasscode waits for the passcode prompt, asks for exactly one code and
// fills it in. No code means the step fails.
func (m *Manager) enterPasscode(ctx context.Context, task *taskstypes.Task, action taskstypes.Action, r tasks.Reporter, log *zap.Logger) error {
	selector := action.SelectorOrDefault(DefaultPasscodeSelector)
	by, err := dom.QueryOption(action.By)
	if err != nil {
		return err
	}

	timeout := m.cfg.PasscodeTimeout
	if action.Timeout > 0 {
		timeout = action.Timeout
	}
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := chromedp.Run(waitCtx, dom.WaitVisibleAction(selector, by)); err != nil {
		return fmt.Errorf("passcode prompt %q did not appear: %w", selector, err)
	}

	code, err := m.passcode(ctx, task, r)
	if err != nil {
		return fmt.Errorf("failed to get passcode: %w", err)
	}
	if code == "" {
		return errors.New("no passcode was returned")
	}
	log.Info("Entering passcode", zap.String("code", logging.Mask(code)))

	fill, err := GenerateActionSequence(action, nil, code, nil)
	if err != nil {
		return err
	}
	return chromedp.Run(ctx, fill)
}

// handle2FAPrompt answers a prompt that appeared after navigating or clicking.
func (m *Manager) handle2FAPrompt(ctx context.Context, task *taskstypes.Task, r tasks.Reporter, log *zap.Logger) error {
	found, selector := m.detect2FAPrompt(ctx, log)
	if !found {
		return nil
	}
	log.Info("Detected 2FA prompt", zap.String("selector", selector))

	code, err := m.passcode(ctx, task, r)
	if err != nil {
		return fmt.Errorf("failed to get passcode: %w", err)
	}
	if code == "" {
		return errors.New("no passcode was returned")
	}

	if err := chromedp.Run(ctx, chromedp.Tasks{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, code, chromedp.ByQuery),
		chromedp.Submit(selector, chromedp.ByQuery),
	}); err != nil {
		return fmt.Errorf("failed to input 2FA code: %w", err)
	}
	return nil
}

var (
	tfaSelectors = []string{
		DefaultPasscodeSelector,
		"input[name='otp']", "input[name='security_code']", "input[autocomplete='one-time-code']",
		"#verification_code", "input[id*='2fa']", "input[id*='mfa']",
	}
	tfaTextPatterns = []string{
		"enter verification code", "two-factor authentication", "security code", "enter the code", "enter passcode",
	}
)

const fallbackCodeSelector = "input[name='code'], input[placeholder*='code'], input[aria-label*='code']"

// detect2FAPrompt returns the selector of the code input when the page asks
// for one.
func (m *Manager) detect2FAPrompt(ctx context.Context, log *zap.Logger) (bool, string) {
	for _, selector := range tfaSelectors {
		var isPresent bool
		if err := chromedp.Run(ctx, dom.IsElementPresentAction(selector, &isPresent)); err != nil {
			log.Debug("Error checking 2FA selector", zap.String("selector", selector), zap.Error(err))
			continue
		}
		if isPresent {
			return true, selector
		}
	}

	var pageText string
	if err := chromedp.Run(ctx, dom.GetTextContentAction(&pageText)); err != nil {
		log.Debug("Error getting page text for 2FA check", zap.Error(err))
		return false, ""
	}
	lower := strings.ToLower(pageText)
	for _, pattern := range tfaTextPatterns {
		if strings.Contains(lower, pattern) {
			return true, fallbackCodeSelector
		}
	}
	return false, ""
}

// diagnose captures a screenshot and the simplified DOM of the current page.
// It gives up quietly when the page is gone.
func (m *Manager) diagnose(ctx context.Context, log *zap.Logger) []taskstypes.Attachment {
	if ctx.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, diagnosticsTimeout)
	defer cancel()

	var atts []taskstypes.Attachment
	var shot []byte
	if err := chromedp.Run(ctx, dom.ScreenshotAction(90, &shot)); err != nil {
		log.Debug("Failure screenshot unavailable", zap.Error(err))
	} else {
		atts = append(atts, taskstypes.Attachment{Name: "failure screenshot", ContentType: "image/jpeg", Body: shot})
	}

	var raw string
	if err := chromedp.Run(ctx, dom.GetFullHTMLAction(&raw)); err != nil {
		log.Debug("Failure DOM unavailable", zap.Error(err))
		return atts
	}
	simplified, err := dom.GetSimplifiedDOM(raw, simplifiedDOMLimit)
	if err != nil {
		log.Debug("Failed to simplify DOM", zap.Error(err))
		return atts
	}
	return append(atts, taskstypes.Attachment{Name: "page", ContentType: "text/html", Text: simplified})
}

// Check starts a session and returns the browser product string.
func (m *Manager) Check(ctx context.Context) (string, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire browser slot: %w", err)
	}
	defer m.sem.Release(1)

	browserCtx, closeSession := m.newSession(ctx)
	defer closeSession()

	var product string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, p, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
			product = p
			return err
		}),
	)
	if err != nil {
		return "", fmt.Errorf("browser check failed: %w", err)
	}
	return product, nil
}

// Shutdown implements the tasks.BrowserExecutor interface.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager")

	shutdownComplete := make(chan struct{})
	go func() {
		m.activeCtxWg.Wait()
		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		m.logger.Info("All active browser sessions have finished")
	case <-ctx.Done():
		m.logger.Warn("Shutdown timeout reached while waiting for active browser sessions")
		m.allocatorCancel()
		return ctx.Err()
	}

	m.allocatorCancel()
	m.logger.Info("Browser manager shutdown complete")
	return nil
}
