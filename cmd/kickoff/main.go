package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/prior-it/kickoff/bootstrap"
	"github.com/prior-it/kickoff/components"
	"github.com/prior-it/kickoff/config"
	"github.com/prior-it/kickoff/server"
)

var (
	debug       bool
	showVersion bool
	homeView    string
)

var version = "dev"

func init() {
	args := os.Args[1:]
	flag.Usage = helpMessage
	flag.BoolVar(&debug, "d", false, "Debug mode")
	flag.BoolVar(&showVersion, "v", false, "Show version information")
	flag.StringVar(&homeView, "home", "", "View to render on / (requires [options.views])")
	if err := flag.CommandLine.Parse(args); err != nil {
		log.Fatal(err)
	}
}

func helpMessage() {
	cmdName := os.Args[0]
	output := flag.CommandLine.Output()
	fmt.Fprintf(output, "Usage of %s:\n\n", cmdName)
	fmt.Fprintln(
		output,
		"This tool serves the current directory with the middleware configured in config.toml.",
	)
	fmt.Fprintln(output, "NODE_ENV and PORT are read from the environment.")
	fmt.Fprintln(output)

	fmt.Fprintln(output, "Flags:")
	flag.PrintDefaults()
}

type state struct{}

func (state) Close(_ context.Context) {}

func main() {
	if showVersion {
		fmt.Println(version)
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("Could not access the current working directory: %v\n", err)
	}
	wd := os.DirFS(cwd)
	if debug {
		fmt.Printf("Working directory: %q\n", cwd)
	}
	cfg, err := config.Load(wd)
	if err != nil {
		log.Fatalf("Could not find your kickoff configuration: %v\n", err)
	}
	if debug {
		cfg.App.Debug = true
		cfg.Log.Level = config.LogLevelDebug
		fmt.Println("Kickoff configuration loaded successfully")
	}

	srv, env := bootstrap.Minimal(state{}, cfg, config.LookupEnvironment(os.LookupEnv))
	if homeView != "" {
		srv.Page("/", homeView)
	} else {
		routes := []string{}
		for _, route := range []string{cfg.Options.UptimeRoute, cfg.Options.MetricsRoute} {
			if route != "" {
				routes = append(routes, route)
			}
		}
		srv.Get("/", func(apollo *server.Apollo, _ state) error {
			return apollo.RenderComponent(components.Welcome(cfg.App.Name, env, routes...))
		})
	}
	srv.Logger().Info("Application configured", "env", env, "port", srv.Setting(server.SettingPort))

	if err := srv.Start(context.Background(), nil); err != nil {
		srv.Logger().Error("Server stopped", "error", err)
		os.Exit(1)
	}
}
