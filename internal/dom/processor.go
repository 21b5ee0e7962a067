package dom

import (
	"bytes"
	"io"
	"strings"

	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"
)

func GetFullHTMLAction(res *string) chromedp.Action {
	return chromedp.Evaluate(`document.documentElement.outerHTML`, res)
}

func GetTextContentAction(res *string) chromedp.Action {
	return chromedp.Evaluate(`document.body ? document.body.innerText : ""`, res)
}

func GetOuterHTMLAction(selector string, res *string, by chromedp.QueryOption) chromedp.Action {
	return chromedp.OuterHTML(selector, res, by)
}

// GetTextAction returns the innerText of the first match, or of the body when
// nothing matches.
func GetTextAction(selector, by string, res *string) chromedp.Action {
	return chromedp.Evaluate(`(() => { const el = `+elementExpr(selector, by)+`; return (el || document.body).innerText; })()`, res)
}

var droppedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "meta": true, "link": true, "svg": true, "iframe": true,
}

// keptTags maps the elements written to the output to whether they get a
// closing tag.
var keptTags = map[string]bool{
	"html": true, "head": true, "body": true, "title": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "div": true, "span": true, "br": false, "hr": false,
	"ul": true, "ol": true, "li": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "th": true, "td": true,
	"a": true, "button": true, "input": false, "textarea": true, "select": true, "option": true, "label": true,
	"form": true, "img": false, "strong": true, "em": true,
}

var keptAttrs = map[string]bool{
	"href": true, "alt": true, "title": true, "id": true, "class": true,
	"type": true, "value": true, "placeholder": true, "name": true,
	"checked": true, "disabled": true, "aria-label": true, "role": true,
}

// valueless attributes are kept even when empty.
var valueless = map[string]bool{"value": true, "checked": true, "disabled": true}

// GetSimplifiedDOM strips scripts, styling and noise attributes so a failed
// page can be attached to a report. Output longer than limit is truncated;
// limit <= 0 means no limit.
func GetSimplifiedDOM(htmlContent string, limit int) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := simplifyNode(&buf, doc); err != nil {
		return "", err
	}
	out := strings.TrimSpace(buf.String())
	if limit > 0 && len(out) > limit {
		out = out[:limit] + "…"
	}
	return out, nil
}

func simplifyNode(w io.Writer, n *html.Node) error {
	switch n.Type {
	case html.ErrorNode, html.CommentNode, html.DoctypeNode:
		return nil
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			_, err := io.WriteString(w, html.EscapeString(text)+" ")
			return err
		}
		return nil
	case html.ElementNode:
		if droppedTags[n.Data] {
			return nil
		}
	}

	closing, kept := keptTags[n.Data]
	kept = kept && n.Type == html.ElementNode
	if kept {
		if err := writeOpenTag(w, n); err != nil {
			return err
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := simplifyNode(w, c); err != nil {
			return err
		}
	}
	if kept && closing {
		if _, err := io.WriteString(w, "</"+n.Data+">"); err != nil {
			return err
		}
	}
	return nil
}

func writeOpenTag(w io.Writer, n *html.Node) error {
	var b strings.Builder
	b.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		if !keptAttrs[a.Key] {
			continue
		}
		val := strings.TrimSpace(a.Val)
		if val == "" && !valueless[a.Key] {
			continue
		}
		// Never echo what was typed into a password field.
		if a.Key == "value" && isPasswordInput(n) {
			val = ""
		}
		b.WriteString(" " + a.Key + `="` + html.EscapeString(val) + `"`)
	}
	b.WriteString(">")
	_, err := io.WriteString(w, b.String())
	return err
}

func isPasswordInput(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "type" && strings.EqualFold(a.Val, "password") {
			return true
		}
	}
	return false
}
