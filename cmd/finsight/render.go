package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/sorrymaker9331/finsight/core"
)

// renderReport writes the report in the requested format. Markdown output to
// a terminal is styled with glamour; piped output stays plain so it can be
// processed downstream.
func renderReport(w *os.File, report *core.Report, format string) error {
	switch format {
	case "json":
		out, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
		return nil
	case "markdown", "md":
		md := report.Markdown()
		if term.IsTerminal(int(w.Fd())) {
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
			if err == nil {
				if styled, rerr := r.Render(md); rerr == nil {
					fmt.Fprint(w, styled)
					return nil
				}
			}
		}
		fmt.Fprint(w, md)
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
