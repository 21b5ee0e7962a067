package desktop

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"
)

// ExecLauncher starts an executable detached from the current process.
type ExecLauncher struct {
	Logger *zap.Logger
}

// Launch starts path without arguments and does not wait for it. The child
// keeps running after ssoscry exits.
func (l ExecLauncher) Launch(_ context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("executable path is empty")
	}
	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", path, err)
	}
	if l.Logger != nil {
		l.Logger.Info("Launched application", zap.String("path", path), zap.Int("pid", cmd.Process.Pid))
	}
	return cmd.Process.Release()
}

// SystemClipboard reads the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) ReadAll() (string, error) {
	if clipboard.Unsupported {
		return "", fmt.Errorf("clipboard is not supported on this host")
	}
	return clipboard.ReadAll()
}
