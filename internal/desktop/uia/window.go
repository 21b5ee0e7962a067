package uia

import (
	"context"
	"fmt"
	"strings"

	"github.com/copyleftdev/ssoscry/internal/desktop"
)

var (
	_ desktop.Window  = (*Window)(nil)
	_ desktop.Control = (*Control)(nil)
)

type Window struct {
	p      *Provider
	handle int64
	title  string
}

func (w *Window) Title() string { return w.title }

func (w *Window) Handle() int64 { return w.handle }

type lookupResult struct {
	Found   bool                `json:"found"`
	Control desktop.ControlInfo `json:"control"`
}

func (w *Window) lookup(ctx context.Context, loc locator) (desktop.Control, error) {
	script := fmt.Sprintf(`$e = Find-Control (Get-Window %d) %s %s %s %d
if ($null -eq $e) { Write-Result @{ found = $false } } else { Write-Result @{ found = $true; control = (Get-ControlInfo $e) } }`,
		loc.window, psQuote(loc.by), psQuote(string(loc.kind)), psQuote(loc.value), loc.index)

	var res lookupResult
	if err := w.p.run(ctx, script, &res); err != nil {
		return nil, err
	}
	if !res.Found {
		return nil, nil
	}
	return &Control{p: w.p, loc: loc, info: res.Control}, nil
}

func (w *Window) ChildByIndex(ctx context.Context, kind desktop.Kind, index int) (desktop.Control, error) {
	return w.lookup(ctx, locator{window: w.handle, by: "index", kind: kind, index: index})
}

func (w *Window) ChildByID(ctx context.Context, automationID string, kind desktop.Kind) (desktop.Control, error) {
	return w.lookup(ctx, locator{window: w.handle, by: "id", kind: kind, value: automationID})
}

func (w *Window) ChildByTitle(ctx context.Context, title string, kind desktop.Kind) (desktop.Control, error) {
	return w.lookup(ctx, locator{window: w.handle, by: "title", kind: kind, value: title})
}

func (w *Window) Descendants(ctx context.Context, kind desktop.Kind) ([]desktop.Control, error) {
	script := fmt.Sprintf(`$list = @()
foreach ($e in (Get-Window %d).FindAll($TS::Descendants, (Get-KindCondition %s))) { $list += (Get-ControlInfo $e) }
Write-Result @($list)`, w.handle, psQuote(string(kind)))

	var infos []desktop.ControlInfo
	if err := w.p.run(ctx, script, &infos); err != nil {
		return nil, err
	}
	controls := make([]desktop.Control, 0, len(infos))
	for i, info := range infos {
		loc := locator{window: w.handle, by: "index", kind: kind, index: i}
		controls = append(controls, &Control{p: w.p, loc: loc, info: info})
	}
	return controls, nil
}

func (w *Window) Close(ctx context.Context) error {
	script := fmt.Sprintf(`$p = $null
if ((Get-Window %d).TryGetCurrentPattern([System.Windows.Automation.WindowPattern]::Pattern, [ref]$p)) { $p.Close() } else { throw 'window does not support closing' }`, w.handle)
	return w.p.run(ctx, script, nil)
}

type Control struct {
	p    *Provider
	loc  locator
	info desktop.ControlInfo
}

func (c *Control) Info() desktop.ControlInfo { return c.info }

func (c *Control) Focus(ctx context.Context) error {
	return c.p.run(ctx, c.loc.find()+"\n$e.SetFocus()", nil)
}

// TypeKeys focuses the control and sends keys as literal text.
func (c *Control) TypeKeys(ctx context.Context, keys string) error {
	script := fmt.Sprintf("%s\n$e.SetFocus()\n[System.Windows.Forms.SendKeys]::SendWait(%s)",
		c.loc.find(), psQuote(escapeSendKeys(keys)))
	return c.p.run(ctx, script, nil)
}

func (c *Control) Click(ctx context.Context) error {
	script := c.loc.find() + `
$p = $null
if ($e.TryGetCurrentPattern([System.Windows.Automation.InvokePattern]::Pattern, [ref]$p)) { $p.Invoke() } else { throw 'control does not support invoke' }`
	return c.p.run(ctx, script, nil)
}

// escapeSendKeys wraps SendKeys metacharacters in braces so they are typed
// literally.
func escapeSendKeys(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '+', '^', '%', '~', '(', ')', '[', ']', '{', '}':
			b.WriteByte('{')
			b.WriteRune(r)
			b.WriteByte('}')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
