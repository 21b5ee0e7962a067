package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/ssoscry/internal/dom"
	"github.com/copyleftdev/ssoscry/internal/taskstypes"
)

// DefaultPasscodeSelector is the passcode input of the PingID web prompt.
const DefaultPasscodeSelector = ".passcode-input"

const (
	defaultAssertTimeout = 5 * time.Second
	simplifiedDOMLimit   = 20000
)

// Output collects what an action produced.
type Output struct {
	Screenshot []byte
	Text       string
	Value      interface{}
}

// GenerateActionSequence translates a task Action into a chromedp Action.
// Results of screenshot, get_dom and run_script are written to out. For the
// mfa action tfaCode must already be known; waiting for the prompt and
// fetching the code are the executor's job.
func GenerateActionSequence(taskAction taskstypes.Action, taskCreds *taskstypes.Credentials, tfaCode string, out *Output) (chromedp.Action, error) {
	if out == nil {
		out = &Output{}
	}

	resolveValue := func(value string) string {
		if strings.Contains(value, taskstypes.TFACodePlaceholder) && tfaCode != "" {
			return strings.ReplaceAll(value, taskstypes.TFACodePlaceholder, tfaCode)
		}
		return value
	}

	by, err := dom.QueryOption(taskAction.By)
	if err != nil {
		return nil, err
	}
	sel := taskAction.Selector
	requireSelector := func() error {
		if sel == "" {
			return fmt.Errorf("%s action requires a selector", taskAction.Type)
		}
		return nil
	}

	switch taskAction.Type {
	case taskstypes.ActionNavigate:
		if taskAction.Value == "" {
			return nil, fmt.Errorf("navigate action requires a non-empty URL value")
		}
		return dom.NavigateAction(taskAction.Value), nil

	case taskstypes.ActionWaitVisible:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.WaitVisibleAction(sel, by), nil

	case taskstypes.ActionWaitHidden:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.WaitHiddenAction(sel, by), nil

	case taskstypes.ActionWaitDelay:
		dur, err := time.ParseDuration(taskAction.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid duration value for wait_delay '%s': %w", taskAction.Value, err)
		}
		return chromedp.Sleep(dur), nil

	case taskstypes.ActionClick:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.ClickAction(sel, by), nil

	case taskstypes.ActionClickForce:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.ForceClickAction(sel, taskAction.By), nil

	case taskstypes.ActionInput:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.TypeAction(sel, resolveValue(taskAction.Value), by), nil

	case taskstypes.ActionFill:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.FillAction(sel, resolveValue(taskAction.Value), by), nil

	case taskstypes.ActionCheck:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.CheckAction(sel, by), nil

	case taskstypes.ActionSelect:
		if err := requireSelector(); err != nil {
			return nil, err
		}
		return dom.SelectAction(sel, resolveValue(taskAction.Value), taskAction.By), nil

	case taskstypes.ActionScroll:
		switch {
		case taskAction.Value == "top":
			return chromedp.Evaluate(`window.scrollTo(0, 0)`, nil), nil
		case taskAction.Value == "bottom":
			return chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil), nil
		case sel != "":
			return dom.ScrollIntoViewAction(sel, by), nil
		}
		return nil, fmt.Errorf("invalid scroll action requires 'top', 'bottom', or a selector")

	case taskstypes.ActionScreenshot:
		quality := 90
		if q, err := strconv.Atoi(taskAction.Value); err == nil && q >= 0 && q <= 100 {
			quality = q
		}
		return dom.ScreenshotAction(quality, &out.Screenshot), nil

	case taskstypes.ActionAssertURL:
		if taskAction.Value == "" {
			return nil, fmt.Errorf("assert_url action requires the expected URL in value")
		}
		timeout := taskAction.Timeout
		if timeout <= 0 {
			timeout = defaultAssertTimeout
		}
		return dom.AssertURLAction(taskAction.Value, timeout), nil

	case taskstypes.ActionGetDOM:
		if sel == "" {
			sel = "body"
		}
		switch taskAction.Format {
		case "full_html":
			return dom.GetOuterHTMLAction(sel, &out.Text, by), nil
		case "simplified_html":
			var raw string
			return chromedp.Tasks{
				dom.GetOuterHTMLAction(sel, &raw, by),
				chromedp.ActionFunc(func(context.Context) error {
					simplified, err := dom.GetSimplifiedDOM(raw, simplifiedDOMLimit)
					if err != nil {
						return fmt.Errorf("failed to simplify DOM: %w", err)
					}
					out.Text = simplified
					return nil
				}),
			}, nil
		default:
			return dom.GetTextAction(sel, taskAction.By, &out.Text), nil
		}

	case taskstypes.ActionRunScript:
		if taskAction.Value == "" {
			return nil, fmt.Errorf("run_script action requires script code in value")
		}
		return dom.RunScriptAction(taskAction.Value, &out.Value), nil

	case taskstypes.ActionLogin:
		if taskCreds == nil || taskCreds.Username == "" || taskCreds.Password == "" {
			return nil, fmt.Errorf("credentials required for login action but not provided or incomplete")
		}
		userSel := "#username"
		passSel := "#password"
		submitSel := "button[type='submit'], input[type='submit']"

		return chromedp.Tasks{
			chromedp.WaitVisible(userSel, chromedp.ByQuery),
			chromedp.SendKeys(userSel, taskCreds.Username, chromedp.ByQuery),
			chromedp.WaitVisible(passSel, chromedp.ByQuery),
			chromedp.SendKeys(passSel, taskCreds.Password, chromedp.ByQuery),
			chromedp.WaitVisible(submitSel, chromedp.ByQuery),
			chromedp.Click(submitSel, chromedp.ByQuery),
		}, nil

	case taskstypes.ActionMFA:
		if tfaCode == "" {
			return nil, fmt.Errorf("mfa action requires a passcode")
		}
		return dom.FillAction(taskAction.SelectorOrDefault(DefaultPasscodeSelector), tfaCode, by), nil

	default:
		return nil, fmt.Errorf("unknown action type: %s", taskAction.Type)
	}
}
