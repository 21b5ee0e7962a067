package desktop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrWindowNotFound is returned when no window title matched before the
// attempts ran out.
var ErrWindowNotFound = errors.New("window not found")

const defaultPollInterval = time.Second

// Locator polls the desktop for a window whose title contains a hint.
type Locator struct {
	Desktop  Desktop
	Interval time.Duration
	Logger   *zap.Logger
}

func NewLocator(d Desktop, interval time.Duration, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Locator{Desktop: d, Interval: interval, Logger: logger}
}

// Locate enumerates the desktop at most attempts times, one interval apart,
// and returns the first window whose title contains hint (case-sensitive).
// Enumeration errors count as a failed attempt.
func (l *Locator) Locate(ctx context.Context, hint string, attempts int) (Window, error) {
	if attempts < 1 {
		attempts = 1
	}

	var (
		found Window
		tried int
	)
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(l.Interval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tried++
		windows, err := l.Desktop.Windows(ctx)
		if err != nil {
			l.Logger.Debug("Window enumeration failed", zap.Int("attempt", tried), zap.Error(err))
			return retry.RetryableError(err)
		}
		for _, w := range windows {
			if strings.Contains(w.Title(), hint) {
				found = w
				return nil
			}
		}
		return retry.RetryableError(ErrWindowNotFound)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		l.Logger.Warn("Window not found", zap.String("title_hint", hint), zap.Int("attempts", tried))
		return nil, fmt.Errorf("%w: no title containing %q after %d attempts", ErrWindowNotFound, hint, tried)
	}

	l.Logger.Info("Connected to window", zap.String("title", found.Title()), zap.Int("attempts", tried))
	return found, nil
}
