// Package authenticator retrieves a one-time passcode from the PingID desktop
// application: it launches the app, enters the PIN, asks for a code, copies
// it and reads it back from the clipboard.
package authenticator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/copyleftdev/ssoscry/internal/config"
	"github.com/copyleftdev/ssoscry/internal/desktop"
	"github.com/copyleftdev/ssoscry/internal/logging"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle             State = "idle"
	StateLaunching        State = "launching"
	StateConnectingWindow State = "connecting_window"
	StateEnteringPIN      State = "entering_pin"
	StateAwaitingCode     State = "awaiting_code"
	StateCopyingCode      State = "copying_code"
	StateReadingClipboard State = "reading_clipboard"
	StateDone             State = "done"
	StateAborted          State = "aborted"
)

var (
	ErrLaunchFailure   = errors.New("authenticator could not be launched")
	ErrWindowNotFound  = desktop.ErrWindowNotFound
	ErrControlNotFound = desktop.ErrControlNotFound
	ErrClipboardEmpty  = errors.New("clipboard is empty or unreadable")
)

// StepError records where a retrieval stopped.
type StepError struct {
	State   State
	Control string
	Err     error
}

func (e *StepError) Error() string {
	if e.Control != "" {
		return fmt.Sprintf("%s (%s): %v", e.State, e.Control, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type Launcher interface {
	Launch(ctx context.Context, path string) error
}

type Clipboard interface {
	ReadAll() (string, error)
}

// Retriever returns one code per call.
type Retriever interface {
	Retrieve(ctx context.Context) (string, error)
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workflow is safe to reuse but not to run concurrently; wrap it in
// Exclusive when callers may overlap.
type Workflow struct {
	cfg       config.AuthenticatorConfig
	launcher  Launcher
	clipboard Clipboard
	locator   *desktop.Locator
	resolver  *desktop.Resolver
	logger    *zap.Logger
	sleep     Sleeper
	observers []func(State)

	pinProbes  []desktop.Probe
	nextProbes []desktop.Probe
	copyProbes []desktop.Probe
}

type Option func(*Workflow)

// WithSleeper replaces the settle-delay clock.
func WithSleeper(s Sleeper) Option {
	return func(w *Workflow) { w.sleep = s }
}

// WithObserver is called on every state entered, in order.
func WithObserver(fn func(State)) Option {
	return func(w *Workflow) { w.observers = append(w.observers, fn) }
}

func NewWorkflow(cfg config.AuthenticatorConfig, d desktop.Desktop, l Launcher, c Clipboard, logger *zap.Logger, opts ...Option) (*Workflow, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workflow{
		cfg:       cfg,
		launcher:  l,
		clipboard: c,
		locator:   desktop.NewLocator(d, cfg.PollInterval, logger),
		resolver:  desktop.NewResolver(logger),
		logger:    logger,
		sleep:     sleepCtx,
	}

	var err error
	if w.pinProbes, err = desktop.Probes(cfg.Controls.PINInput); err != nil {
		return nil, fmt.Errorf("pin input selectors: %w", err)
	}
	if w.nextProbes, err = desktop.Probes(cfg.Controls.NextButton); err != nil {
		return nil, fmt.Errorf("next button selectors: %w", err)
	}
	if w.copyProbes, err = desktop.Probes(cfg.Controls.CopyButton); err != nil {
		return nil, fmt.Errorf("copy button selectors: %w", err)
	}

	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// retrieval is the state of a single Retrieve call.
type retrieval struct {
	*Workflow
	state  State
	window desktop.Window
}

func (r *retrieval) enter(s State) {
	r.state = s
	r.logger.Debug("Authenticator state", zap.String("state", string(s)))
	for _, fn := range r.observers {
		fn(s)
	}
}

func (r *retrieval) fail(control string, err error) error {
	return &StepError{State: r.state, Control: control, Err: err}
}

// Retrieve runs one full launch-to-clipboard pass and returns the code. Any
// failure aborts the pass; nothing is retried.
func (w *Workflow) Retrieve(ctx context.Context) (string, error) {
	r := &retrieval{Workflow: w, state: StateIdle}
	r.enter(StateIdle)

	code, err := r.run(ctx)
	if err != nil {
		if r.window != nil && w.cfg.CloseOnFailure {
			w.closeWindow(r.window)
		}
		r.enter(StateAborted)
		w.logger.Error("MFA code retrieval aborted", zap.Error(err))
		return "", err
	}

	r.enter(StateDone)
	w.logger.Info("Retrieved MFA code from clipboard", zap.String("code", logging.Mask(code)))
	return code, nil
}

func (r *retrieval) run(ctx context.Context) (string, error) {
	cfg := r.cfg

	r.enter(StateLaunching)
	r.logger.Info("Launching authenticator", zap.String("path", cfg.ExecutablePath))
	if err := r.launcher.Launch(ctx, cfg.ExecutablePath); err != nil {
		return "", r.fail("", fmt.Errorf("%w: %v", ErrLaunchFailure, err))
	}
	if err := r.sleep(ctx, cfg.LaunchSettle); err != nil {
		return "", r.fail("", err)
	}

	r.enter(StateConnectingWindow)
	win, err := r.locator.Locate(ctx, cfg.TitleHint, cfg.WindowTimeout)
	if err != nil {
		return "", r.fail("", err)
	}
	r.window = win

	r.enter(StateEnteringPIN)
	if err := r.sleep(ctx, cfg.LoadSettle); err != nil {
		return "", r.fail("", err)
	}
	pin, err := r.resolver.Resolve(ctx, win, "pin input", r.pinProbes...)
	if err != nil {
		return "", r.fail("pin input", err)
	}
	if err := r.enterPIN(ctx, pin); err != nil {
		return "", r.fail("pin input", err)
	}

	r.enter(StateAwaitingCode)
	if err := r.press(ctx, win, "next button", r.nextProbes); err != nil {
		return "", err
	}
	if err := r.sleep(ctx, cfg.CodeSettle); err != nil {
		return "", r.fail("", err)
	}

	r.enter(StateCopyingCode)
	if err := r.press(ctx, win, "copy button", r.copyProbes); err != nil {
		return "", err
	}
	if err := r.sleep(ctx, cfg.CopySettle); err != nil {
		return "", r.fail("", err)
	}

	r.enter(StateReadingClipboard)
	raw, err := r.clipboard.ReadAll()
	if err != nil {
		return "", r.fail("", fmt.Errorf("%w: %v", ErrClipboardEmpty, err))
	}
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", r.fail("", ErrClipboardEmpty)
	}

	r.closeWindow(win)
	return code, nil
}

// enterPIN types the PIN one character at a time; PingID drops input that
// arrives too fast.
func (r *retrieval) enterPIN(ctx context.Context, pin desktop.Control) error {
	if err := pin.Focus(ctx); err != nil {
		return fmt.Errorf("failed to focus pin input: %w", err)
	}
	if err := r.sleep(ctx, r.cfg.FocusPause); err != nil {
		return err
	}
	for i, ch := range []rune(r.cfg.PIN) {
		if i > 0 {
			if err := r.sleep(ctx, r.cfg.KeyPause); err != nil {
				return err
			}
		}
		if err := pin.TypeKeys(ctx, string(ch)); err != nil {
			return fmt.Errorf("failed to type pin: %w", err)
		}
	}
	r.logger.Info("Entered PIN")
	return r.sleep(ctx, r.cfg.AfterPINPause)
}

func (r *retrieval) press(ctx context.Context, win desktop.Window, purpose string, probes []desktop.Probe) error {
	btn, err := r.resolver.Resolve(ctx, win, purpose, probes...)
	if err != nil {
		return r.fail(purpose, err)
	}
	if err := btn.Click(ctx); err != nil {
		return r.fail(purpose, fmt.Errorf("click failed: %w", err))
	}
	r.logger.Info("Clicked control", zap.String("purpose", purpose))
	return nil
}

// closeWindow is best-effort and bounded so a hung window cannot hold the
// result back.
func (w *Workflow) closeWindow(win desktop.Window) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := win.Close(ctx); err != nil {
		w.logger.Debug("Failed to close authenticator window", zap.Error(err))
	}
}

// Inspect connects to the authenticator window, launching it first when
// launch is set, and writes its controls to out.
func (w *Workflow) Inspect(ctx context.Context, out io.Writer, launch bool) error {
	if launch {
		if err := w.launcher.Launch(ctx, w.cfg.ExecutablePath); err != nil {
			return fmt.Errorf("%w: %v", ErrLaunchFailure, err)
		}
		if err := w.sleep(ctx, w.cfg.LaunchSettle+w.cfg.InspectSettle); err != nil {
			return err
		}
	}
	win, err := w.locator.Locate(ctx, w.cfg.TitleHint, w.cfg.WindowTimeout)
	if err != nil {
		return err
	}
	return desktop.Inspect(ctx, win, out)
}
