package desktop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/copyleftdev/ssoscry/internal/desktop"
	"github.com/copyleftdev/ssoscry/internal/desktop/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestLocator(d desktop.Desktop) *desktop.Locator {
	return desktop.NewLocator(d, time.Millisecond, zap.NewNop())
}

func TestLocator_FindsWindowOnFirstAttempt(t *testing.T) {
	target := mocks.NewMockWindow("PingID")
	d := mocks.NewMockDesktop(target, 1, mocks.NewMockWindow("Notepad"))

	w, err := newTestLocator(d).Locate(context.Background(), "PingID", 10)

	require.NoError(t, err)
	assert.Equal(t, "PingID", w.Title())
	assert.Equal(t, 1, d.Calls())
}

func TestLocator_WaitsForWindowToAppear(t *testing.T) {
	target := mocks.NewMockWindow("PingID - Authenticate")
	d := mocks.NewMockDesktop(target, 4)

	w, err := newTestLocator(d).Locate(context.Background(), "PingID", 10)

	require.NoError(t, err)
	assert.Same(t, target, w)
	assert.Equal(t, 4, d.Calls())
}

func TestLocator_FirstMatchWins(t *testing.T) {
	first := mocks.NewMockWindow("PingID (1)")
	second := mocks.NewMockWindow("PingID (2)")
	d := mocks.NewMockDesktop(nil, 0, mocks.NewMockWindow("Explorer"), first, second)

	w, err := newTestLocator(d).Locate(context.Background(), "PingID", 3)

	require.NoError(t, err)
	assert.Same(t, first, w)
}

func TestLocator_MatchIsCaseSensitive(t *testing.T) {
	d := mocks.NewMockDesktop(mocks.NewMockWindow("pingid"), 1)

	_, err := newTestLocator(d).Locate(context.Background(), "PingID", 2)

	assert.ErrorIs(t, err, desktop.ErrWindowNotFound)
	assert.Equal(t, 2, d.Calls())
}

func TestLocator_EnumerationErrorsCountAsAttempts(t *testing.T) {
	target := mocks.NewMockWindow("PingID")
	d := mocks.NewMockDesktop(target, 1)
	d.FailEnumerations(errors.New("uia busy"), errors.New("uia busy"))

	w, err := newTestLocator(d).Locate(context.Background(), "PingID", 3)

	require.NoError(t, err)
	assert.Same(t, target, w)
	assert.Equal(t, 3, d.Calls())
}

func TestLocator_NonPositiveAttemptsStillTriesOnce(t *testing.T) {
	d := mocks.NewMockDesktop(nil, 0)

	_, err := newTestLocator(d).Locate(context.Background(), "PingID", 0)

	assert.ErrorIs(t, err, desktop.ErrWindowNotFound)
	assert.Equal(t, 1, d.Calls())
}

func TestLocator_CancelledContext(t *testing.T) {
	d := mocks.NewMockDesktop(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := desktop.NewLocator(d, time.Hour, zap.NewNop())
	_, err := l.Locate(ctx, "PingID", 5)

	assert.ErrorIs(t, err, context.Canceled)
}

// The desktop is never enumerated more than the configured number of times
// when no window matches.
func TestLocator_AttemptBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		attempts := rapid.IntRange(1, 12).Draw(rt, "attempts")
		d := mocks.NewMockDesktop(nil, 0, mocks.NewMockWindow("Outlook"), mocks.NewMockWindow("Teams"))

		_, err := desktop.NewLocator(d, time.Microsecond, zap.NewNop()).
			Locate(context.Background(), "PingID", attempts)

		if !errors.Is(err, desktop.ErrWindowNotFound) {
			rt.Fatalf("expected ErrWindowNotFound, got %v", err)
		}
		if d.Calls() != attempts {
			rt.Fatalf("expected %d enumerations, got %d", attempts, d.Calls())
		}
	})
}
