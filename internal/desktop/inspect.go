package desktop

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
)

// Inspect writes the window title and every descendant control so selector
// chains can be tuned against a new release of the application.
func Inspect(ctx context.Context, w Window, out io.Writer) error {
	controls, err := w.Descendants(ctx, KindAny)
	if err != nil {
		return fmt.Errorf("failed to list controls: %w", err)
	}

	fmt.Fprintf(out, "Window Title: %s\n\n", w.Title())
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKIND\tNAME\tAUTOMATION ID")
	for i, c := range controls {
		info := c.Info()
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, info.Kind, info.Name, info.AutomationID)
	}
	return tw.Flush()
}
