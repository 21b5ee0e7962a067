// Package desktop finds top-level windows of an external application and the
// input and button controls inside them.
package desktop

import "context"

// Kind is a UI Automation control type name, e.g. "Edit" or "Button".
type Kind string

const (
	KindEdit   Kind = "Edit"
	KindButton Kind = "Button"
	// KindAny matches every control type.
	KindAny Kind = ""
)

// ControlInfo describes a control for logs and inspection output.
type ControlInfo struct {
	Kind         Kind   `json:"kind"`
	Name         string `json:"name"`
	AutomationID string `json:"automation_id"`
}

// Control is a single interactive element inside a window. It is only valid
// while the owning window is open.
type Control interface {
	Info() ControlInfo
	Focus(ctx context.Context) error
	TypeKeys(ctx context.Context, keys string) error
	Click(ctx context.Context) error
}

// Window is a live top-level application window.
type Window interface {
	Title() string
	// ChildByIndex returns the index-th descendant of the given kind.
	ChildByIndex(ctx context.Context, kind Kind, index int) (Control, error)
	ChildByID(ctx context.Context, automationID string, kind Kind) (Control, error)
	ChildByTitle(ctx context.Context, title string, kind Kind) (Control, error)
	// Descendants lists every descendant of the given kind, KindAny for all.
	Descendants(ctx context.Context, kind Kind) ([]Control, error)
	Close(ctx context.Context) error
}

// Desktop enumerates the top-level windows of the current session.
type Desktop interface {
	Windows(ctx context.Context) ([]Window, error)
}
