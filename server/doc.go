/*
Package server provides the HTTP application that kickoff configures.
Handlers in this stack take an application-specific state object (used for dependency injection)
and a [Apollo] object with helpers for the request: parsed cookies and bodies, locals and views.

Basic example:

	import (
		"context"
		"log"

		"myapp/state"

		"github.com/prior-it/kickoff/bootstrap"
		"github.com/prior-it/kickoff/config"
		"github.com/prior-it/kickoff/server"
	)

	func main() {
		state := state.New()
		srv := server.New(state, nil)

		// Attach the standard middleware stack and routes
		env := bootstrap.Global(srv, "DEVELOPMENT", &config.Options{
			Views:       &config.ViewOptions{Path: "./views"},
			UptimeRoute: "/uptime",
		})
		srv.Logger().Info("Configured", "env", env)

		// Attach routes
		srv.Page("/", "home")
		srv.Post("/users", CreateUser)

		// Run server
		log.Fatal(srv.Start(context.Background(), nil))
	}

	func CreateUser(apollo *server.Apollo, _ *state.State) error {
		var user struct {
			Name string `schema:"name"`
		}
		if err := apollo.ParseForm(&user); err != nil {
			return err
		}
		apollo.Redirect("/")
		return nil
	}
*/
package server
