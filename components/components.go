package components

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Welcome renders the page kickoff serves on "/" when no home view was configured.
// It lists the environment and the routes the bootstrap registered so a fresh project can be
// checked in the browser.
func Welcome(name string, env string, routes ...string) templ.Component {
	if name == "" {
		name = "kickoff"
	}
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			`<!doctype html><html><head><meta charset="utf-8"><title>%s</title></head><body><h1>%s</h1><p>Running in <strong>%s</strong></p>`,
			templ.EscapeString(name),
			templ.EscapeString(name),
			templ.EscapeString(env),
		)
		if err != nil {
			return err
		}
		if len(routes) > 0 {
			if _, err := io.WriteString(w, "<ul>"); err != nil {
				return err
			}
			for _, route := range routes {
				if _, err := fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, templ.EscapeString(route), templ.EscapeString(route)); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, "</ul>"); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, "</body></html>")
		return err
	})
}
