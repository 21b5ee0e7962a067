package desktop

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrControlNotFound is returned when every probe for a control failed.
var ErrControlNotFound = errors.New("control not found")

// Probe is one lookup strategy for a control. Find returns a nil control or
// an error when the strategy does not apply to the current window.
type Probe struct {
	Name string
	Find func(ctx context.Context, w Window) (Control, error)
}

// ByIndex finds the index-th descendant of kind.
func ByIndex(kind Kind, index int) Probe {
	return Probe{
		Name: fmt.Sprintf("index %d of %s", index, kindName(kind)),
		Find: func(ctx context.Context, w Window) (Control, error) {
			return w.ChildByIndex(ctx, kind, index)
		},
	}
}

// ByID finds a control by its automation id.
func ByID(automationID string, kind Kind) Probe {
	return Probe{
		Name: fmt.Sprintf("%s with automation id %q", kindName(kind), automationID),
		Find: func(ctx context.Context, w Window) (Control, error) {
			return w.ChildByID(ctx, automationID, kind)
		},
	}
}

// ByTitle finds a control by its visible name.
func ByTitle(title string, kind Kind) Probe {
	return Probe{
		Name: fmt.Sprintf("%s titled %q", kindName(kind), title),
		Find: func(ctx context.Context, w Window) (Control, error) {
			return w.ChildByTitle(ctx, title, kind)
		},
	}
}

// FirstOf scans every descendant and returns the first one of kind.
func FirstOf(kind Kind) Probe {
	return Probe{
		Name: fmt.Sprintf("first %s among descendants", kindName(kind)),
		Find: func(ctx context.Context, w Window) (Control, error) {
			all, err := w.Descendants(ctx, kind)
			if err != nil {
				return nil, err
			}
			if len(all) == 0 {
				return nil, fmt.Errorf("no %s descendants", kindName(kind))
			}
			return all[0], nil
		},
	}
}

func kindName(k Kind) string {
	if k == KindAny {
		return "control"
	}
	return string(k)
}

type Resolver struct {
	Logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{Logger: logger}
}

// Resolve runs probes in order and returns the first control found. Later
// probes are not tried once one succeeds.
func (r *Resolver) Resolve(ctx context.Context, w Window, purpose string, probes ...Probe) (Control, error) {
	for i, p := range probes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := p.Find(ctx, w)
		if err == nil && c != nil {
			r.Logger.Info("Resolved control",
				zap.String("purpose", purpose),
				zap.String("strategy", p.Name),
				zap.Int("priority", i+1))
			return c, nil
		}
		if err == nil {
			err = errors.New("no match")
		}
		r.Logger.Debug("Control lookup failed",
			zap.String("purpose", purpose),
			zap.String("strategy", p.Name),
			zap.Error(err))
	}
	return nil, fmt.Errorf("%w: %s (%d strategies tried)", ErrControlNotFound, purpose, len(probes))
}
