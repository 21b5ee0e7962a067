// Package mocks provides in-memory desktop, window and control fakes for
// exercising the locator, resolver and retrieval workflow without a GUI.
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/copyleftdev/ssoscry/internal/desktop"
)

var errNoControl = errors.New("mock: no such control")

// MockDesktop returns a scripted window list on each enumeration.
type MockDesktop struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	Appears int // enumeration (1-based) from which Target is listed; 0 never
	Target  desktop.Window
	Others  []desktop.Window
}

// NewMockDesktop lists others on every call and target from the appears-th
// call on. appears == 0 means the target never shows up.
func NewMockDesktop(target desktop.Window, appears int, others ...desktop.Window) *MockDesktop {
	return &MockDesktop{Target: target, Appears: appears, Others: others}
}

// FailEnumerations makes the first len(errs) enumerations return errs[i].
func (m *MockDesktop) FailEnumerations(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = errs
}

func (m *MockDesktop) Windows(_ context.Context) ([]desktop.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= len(m.errs) && m.errs[m.calls-1] != nil {
		return nil, m.errs[m.calls-1]
	}
	windows := append([]desktop.Window{}, m.Others...)
	if m.Target != nil && m.Appears > 0 && m.calls >= m.Appears {
		windows = append(windows, m.Target)
	}
	return windows, nil
}

// Calls reports how many times Windows was called.
func (m *MockDesktop) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockWindow holds controls reachable through each lookup strategy.
type MockWindow struct {
	mu       sync.Mutex
	title    string
	indexed  map[desktop.Kind][]desktop.Control
	byID     map[string]desktop.Control
	byTitle  map[string]desktop.Control
	scan     map[desktop.Kind][]desktop.Control
	lookups  []string
	closed   int
	CloseErr error
}

func NewMockWindow(title string) *MockWindow {
	return &MockWindow{
		title:   title,
		indexed: make(map[desktop.Kind][]desktop.Control),
		byID:    make(map[string]desktop.Control),
		byTitle: make(map[string]desktop.Control),
		scan:    make(map[desktop.Kind][]desktop.Control),
	}
}

// AddIndexed makes c reachable by position among controls of kind.
func (w *MockWindow) AddIndexed(kind desktop.Kind, c desktop.Control) *MockWindow {
	w.indexed[kind] = append(w.indexed[kind], c)
	return w
}

func (w *MockWindow) AddByID(id string, c desktop.Control) *MockWindow {
	w.byID[id] = c
	return w
}

func (w *MockWindow) AddByTitle(title string, c desktop.Control) *MockWindow {
	w.byTitle[title] = c
	return w
}

// AddScanned makes c visible only to descendant scans.
func (w *MockWindow) AddScanned(kind desktop.Kind, c desktop.Control) *MockWindow {
	w.scan[kind] = append(w.scan[kind], c)
	return w
}

func (w *MockWindow) Title() string { return w.title }

func (w *MockWindow) record(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lookups = append(w.lookups, s)
}

func (w *MockWindow) ChildByIndex(_ context.Context, kind desktop.Kind, index int) (desktop.Control, error) {
	w.record(fmt.Sprintf("index:%s:%d", kind, index))
	list := w.indexed[kind]
	if index < 0 || index >= len(list) {
		return nil, errNoControl
	}
	return list[index], nil
}

func (w *MockWindow) ChildByID(_ context.Context, id string, kind desktop.Kind) (desktop.Control, error) {
	w.record(fmt.Sprintf("id:%s:%s", kind, id))
	if c, ok := w.byID[id]; ok {
		return c, nil
	}
	return nil, errNoControl
}

func (w *MockWindow) ChildByTitle(_ context.Context, title string, kind desktop.Kind) (desktop.Control, error) {
	w.record(fmt.Sprintf("title:%s:%s", kind, title))
	if c, ok := w.byTitle[title]; ok {
		return c, nil
	}
	return nil, errNoControl
}

func (w *MockWindow) Descendants(_ context.Context, kind desktop.Kind) ([]desktop.Control, error) {
	w.record(fmt.Sprintf("scan:%s", kind))
	if kind == desktop.KindAny {
		var all []desktop.Control
		for _, list := range w.indexed {
			all = append(all, list...)
		}
		for _, list := range w.scan {
			all = append(all, list...)
		}
		return all, nil
	}
	return append(append([]desktop.Control{}, w.indexed[kind]...), w.scan[kind]...), nil
}

func (w *MockWindow) Close(_ context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return w.CloseErr
}

// Lookups returns every lookup made against the window, in order.
func (w *MockWindow) Lookups() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.lookups...)
}

func (w *MockWindow) Closed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// MockControl records focus, keystrokes and clicks.
type MockControl struct {
	mu      sync.Mutex
	info    desktop.ControlInfo
	focused int
	typed   []string
	clicks  int

	FocusErr error
	TypeErr  error
	ClickErr error
	OnClick  func()
}

func NewMockControl(kind desktop.Kind, name, automationID string) *MockControl {
	return &MockControl{info: desktop.ControlInfo{Kind: kind, Name: name, AutomationID: automationID}}
}

func (c *MockControl) Info() desktop.ControlInfo { return c.info }

func (c *MockControl) Focus(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused++
	return c.FocusErr
}

func (c *MockControl) TypeKeys(_ context.Context, keys string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TypeErr != nil {
		return c.TypeErr
	}
	c.typed = append(c.typed, keys)
	return nil
}

func (c *MockControl) Click(_ context.Context) error {
	c.mu.Lock()
	c.clicks++
	err, hook := c.ClickErr, c.OnClick
	c.mu.Unlock()
	if err == nil && hook != nil {
		hook()
	}
	return err
}

// Typed returns each TypeKeys payload in call order.
func (c *MockControl) Typed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.typed...)
}

func (c *MockControl) Clicks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks
}

func (c *MockControl) Focused() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// MockClipboard is a settable clipboard.
type MockClipboard struct {
	mu    sync.Mutex
	value string
	reads int
	Err   error
}

func (c *MockClipboard) Set(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
}

func (c *MockClipboard) ReadAll() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	return c.value, c.Err
}

func (c *MockClipboard) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// MockLauncher records launch requests.
type MockLauncher struct {
	mu    sync.Mutex
	paths []string
	Err   error
}

func (l *MockLauncher) Launch(_ context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
	return l.Err
}

func (l *MockLauncher) Launches() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.paths...)
}
