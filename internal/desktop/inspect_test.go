package desktop_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/copyleftdev/ssoscry/internal/desktop"
	"github.com/copyleftdev/ssoscry/internal/desktop/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	w := mocks.NewMockWindow("PingID").
		AddIndexed(desktop.KindEdit, mocks.NewMockControl(desktop.KindEdit, "PIN", "JavaFX42")).
		AddIndexed(desktop.KindButton, mocks.NewMockControl(desktop.KindButton, "Next", "JavaFX49"))

	var out bytes.Buffer
	require.NoError(t, desktop.Inspect(context.Background(), w, &out))

	text := out.String()
	assert.Contains(t, text, "Window Title: PingID")
	assert.Contains(t, text, "JavaFX42")
	assert.Contains(t, text, "JavaFX49")
	assert.Contains(t, text, "AUTOMATION ID")
}
