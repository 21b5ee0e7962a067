// Package uia implements the desktop interfaces on Windows UI Automation.
//
// Every operation runs a short PowerShell script against
// System.Windows.Automation and decodes the JSON it prints. Windows are
// addressed by native handle and controls by a locator that is resolved again
// for every action, so nothing is cached between calls.
package uia

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/copyleftdev/ssoscry/internal/desktop"
	"go.uber.org/zap"
)

//go:embed prelude.ps1
var prelude string

// Compile-time check to ensure Provider implements the interface
var _ desktop.Desktop = (*Provider)(nil)

type Provider struct {
	shell  string
	logger *zap.Logger
}

// NewProvider locates PowerShell. It fails on hosts other than Windows.
func NewProvider(logger *zap.Logger) (*Provider, error) {
	if runtime.GOOS != "windows" {
		return nil, fmt.Errorf("ui automation is only available on windows, not %s", runtime.GOOS)
	}
	shell, err := exec.LookPath("powershell.exe")
	if err != nil {
		return nil, fmt.Errorf("powershell not found: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{shell: shell, logger: logger}, nil
}

func (p *Provider) run(ctx context.Context, script string, out interface{}) error {
	cmd := exec.CommandContext(ctx, p.shell, "-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-Command", "-")
	cmd.Stdin = strings.NewReader(prelude + "\n" + script + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ui automation script failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), out); err != nil {
		return fmt.Errorf("failed to decode ui automation output: %w", err)
	}
	return nil
}

type windowRecord struct {
	Handle int64  `json:"handle"`
	Title  string `json:"title"`
}

// Windows lists the top-level windows under the desktop root.
func (p *Provider) Windows(ctx context.Context) ([]desktop.Window, error) {
	var records []windowRecord
	if err := p.run(ctx, windowsScript, &records); err != nil {
		return nil, err
	}
	windows := make([]desktop.Window, 0, len(records))
	for _, r := range records {
		windows = append(windows, &Window{p: p, handle: r.Handle, title: r.Title})
	}
	return windows, nil
}

const windowsScript = `$list = @()
foreach ($w in $AE::RootElement.FindAll($TS::Children, [System.Windows.Automation.Condition]::TrueCondition)) {
    $list += @{ handle = [long]$w.Current.NativeWindowHandle; title = $w.Current.Name }
}
Write-Result @($list)`

// psQuote renders s as a single-quoted PowerShell literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// locator addresses a control inside a window for one script invocation.
type locator struct {
	window int64
	by     string
	kind   desktop.Kind
	value  string
	index  int
}

func (l locator) find() string {
	return fmt.Sprintf("$e = Get-Required (Get-Window %d) %s %s %s %d",
		l.window, psQuote(l.by), psQuote(string(l.kind)), psQuote(l.value), l.index)
}
