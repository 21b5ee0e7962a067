package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Selector strategies accepted by the element actions.
const (
	ByCSS   = "css"
	ByXPath = "xpath"
)

// QueryOption maps a selector strategy to the chromedp query option. An
// empty strategy means CSS.
func QueryOption(by string) (chromedp.QueryOption, error) {
	switch strings.ToLower(by) {
	case "", ByCSS:
		return chromedp.ByQuery, nil
	case ByXPath:
		return chromedp.BySearch, nil
	default:
		return nil, fmt.Errorf("unknown selector strategy %q", by)
	}
}

func NavigateAction(url string) chromedp.Action {
	return chromedp.Navigate(url)
}

func ClickAction(selector string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.Tasks{
		chromedp.WaitVisible(selector, by),
		chromedp.Click(selector, by),
	}
}

// ForceClickAction clicks through the DOM instead of the mouse, so overlays
// and animations on top of the element do not intercept it.
func ForceClickAction(selector, by string) chromedp.Action {
	return chromedp.Tasks{
		waitReady(selector, by),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var clicked bool
			if err := chromedp.Evaluate(forceClickScript(selector, by), &clicked).Do(ctx); err != nil {
				return err
			}
			if !clicked {
				return fmt.Errorf("element %q not found for click", selector)
			}
			return nil
		}),
	}
}

func waitReady(selector, by string) chromedp.Action {
	opt, err := QueryOption(by)
	if err != nil {
		return chromedp.ActionFunc(func(context.Context) error { return err })
	}
	return chromedp.WaitReady(selector, opt)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// elementExpr returns a JavaScript expression evaluating to the first match
// or null.
func elementExpr(selector, by string) string {
	if strings.EqualFold(by, ByXPath) {
		return fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, jsString(selector))
	}
	return fmt.Sprintf(`document.querySelector(%s)`, jsString(selector))
}

func forceClickScript(selector, by string) string {
	return fmt.Sprintf(`(() => { const el = %s; if (!el) return false; el.click(); return true; })()`, elementExpr(selector, by))
}

// TypeAction appends text to the element's current value.
func TypeAction(selector, text string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.SendKeys(selector, text, by)
}

// FillAction replaces the element's value with text.
func FillAction(selector, text string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.Tasks{
		chromedp.WaitVisible(selector, by),
		chromedp.Clear(selector, by),
		chromedp.SendKeys(selector, text, by),
	}
}

// CheckAction ticks a checkbox unless it is already ticked.
func CheckAction(selector string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var checked bool
		if err := chromedp.JavascriptAttribute(selector, "checked", &checked, by).Do(ctx); err != nil {
			return fmt.Errorf("failed to read checked state of %q: %w", selector, err)
		}
		if checked {
			return nil
		}
		return chromedp.Click(selector, by).Do(ctx)
	})
}

// SelectAction picks the option whose value or visible label equals value.
func SelectAction(selector, value, by string) chromedp.Action {
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el || !el.options) return false;
		const want = %s;
		for (const o of el.options) {
			if (o.value === want || o.text.trim() === want) {
				el.value = o.value;
				el.dispatchEvent(new Event('input', { bubbles: true }));
				el.dispatchEvent(new Event('change', { bubbles: true }));
				return true;
			}
		}
		return false;
	})()`, elementExpr(selector, by), jsString(value))

	return chromedp.Tasks{
		waitReady(selector, by),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var ok bool
			if err := chromedp.Evaluate(script, &ok).Do(ctx); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("option %q not found in %q", value, selector)
			}
			return nil
		}),
	}
}

// AssertURLAction polls the page location until it equals want or timeout
// elapses.
func AssertURLAction(want string, timeout time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(timeout)
		var current string
		for {
			if err := chromedp.Location(&current).Do(ctx); err != nil {
				return err
			}
			if current == want {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("expected page URL %q, got %q", want, current)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	})
}

func ScreenshotAction(quality int, res *[]byte) chromedp.Action {
	return chromedp.FullScreenshot(res, quality)
}

func WaitVisibleAction(selector string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.WaitVisible(selector, by)
}

func WaitHiddenAction(selector string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.WaitNotVisible(selector, by)
}

func RunScriptAction(script string, res interface{}) chromedp.Action {
	return chromedp.Evaluate(script, res)
}

func ScrollIntoViewAction(selector string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.ScrollIntoView(selector, by)
}

// IsElementPresentAction checks if an element exists without waiting for visibility.
func IsElementPresentAction(selector string, isPresent *bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)).Do(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			*isPresent = false
			return nil
		}
		*isPresent = len(nodes) > 0
		return nil
	})
}
