package web

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/charimport/internal/core"
)

// ErrorAlert renders an HTMX error fragment with the remediation hints.
func ErrorAlert(msg core.UserMessage, hints []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<div class="alert alert-error" role="alert" data-code="%s"><p>%s</p>`,
			templ.EscapeString(msg.Code), templ.EscapeString(msg.Message)); err != nil {
			return err
		}
		if msg.Action != "" {
			if _, err := fmt.Fprintf(w, `<p class="alert-action">%s</p>`, templ.EscapeString(msg.Action)); err != nil {
				return err
			}
		}
		if err := writeHints(w, hints); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

// ReportSummary renders the tally of a preview or import for HTMX clients.
func ReportSummary(out *core.Outcome) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		r := out.Report
		class := "alert-success"
		if out.LowYield {
			class = "alert-warning"
		}
		if _, err := fmt.Fprintf(w, `<div class="alert %s" role="status" data-dialect="%s">`,
			class, templ.EscapeString(out.Dialect)); err != nil {
			return err
		}
		if out.Run != nil {
			if _, err := fmt.Fprintf(w, `<p class="import-id">Import %s</p>`, templ.EscapeString(out.Run.ID)); err != nil {
				return err
			}
		}
		if r != nil {
			if _, err := fmt.Fprintf(w,
				`<dl><dt>Rows</dt><dd>%d</dd><dt>Accepted</dt><dd>%d</dd><dt>Skipped</dt><dd>%d</dd><dt>Success rate</dt><dd>%.0f%%</dd></dl>`,
				r.TotalRows, r.Accepted, r.Skipped(), r.SuccessRate()*100); err != nil {
				return err
			}
		}
		if err := writeHints(w, out.Hints); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</div>`)
		return err
	})
}

func writeHints(w io.Writer, hints []string) error {
	if len(hints) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, `<ul class="hints">`); err != nil {
		return err
	}
	for _, h := range hints {
		if _, err := fmt.Fprintf(w, `<li>%s</li>`, templ.EscapeString(h)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, `</ul>`)
	return err
}
