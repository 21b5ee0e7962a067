package flows

import (
	"fmt"
	"strings"
)

const (
	lower = "abcdefghijklmnopqrstuvwxyz"
	upper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// literal quotes s as an XPath 1.0 string literal.
func literal(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

// nameContains matches expr containing name, ignoring ASCII case and
// collapsing whitespace.
func nameContains(expr, name string) string {
	return fmt.Sprintf(`contains(translate(normalize-space(%s), %q, %q), %s)`, expr, lower, upper, literal(strings.ToUpper(name)))
}

// Link matches an anchor or role=link element by its text.
func Link(name string) string {
	return fmt.Sprintf(`//*[self::a or @role="link"][%s or %s]`, nameContains(".", name), nameContains("@aria-label", name))
}

// Button matches a button, a button-like input or role=button element by its
// text, value or aria-label.
func Button(name string) string {
	return fmt.Sprintf(`//*[self::button or @role="button" or (self::input and (@type="button" or @type="submit"))][%s or %s or %s]`,
		nameContains(".", name), nameContains("@value", name), nameContains("@aria-label", name))
}

// Textbox matches a text input by aria-label, placeholder or the text of its
// label.
func Textbox(name string) string {
	labelled := fmt.Sprintf(`@id = //label[%s]/@for`, nameContains(".", name))
	return fmt.Sprintf(`//*[self::textarea or (self::input and (not(@type) or @type="text" or @type="email")) or @role="textbox"][%s or %s or %s]`,
		nameContains("@aria-label", name), nameContains("@placeholder", name), labelled)
}

// Option matches an entry of a native or scripted dropdown by its text.
func Option(name string) string {
	return fmt.Sprintf(`//*[self::option or @role="option"][%s]`, nameContains(".", name))
}
