package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/km-arc/cubex/framework/app"
	"github.com/km-arc/cubex/framework/config"
	"github.com/km-arc/cubex/framework/routing"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
)

// Setup is called on every new application before a command uses it.
// Programs embedding the CLI set it to register their controllers and
// routes.
var Setup func(*app.Application) error

// NewRootCommand creates the root command of the cubex binary.
func NewRootCommand() *cobra.Command {
	var envFiles []string

	cmd := &cobra.Command{
		Use:   "cubex",
		Short: "Cubex - route, configure and serve a Cubex application",
		Long: `Cubex serves an application's routes over HTTP or runs a single path
from the command line. Services and routes are read from the files named by
CUBEX_SERVICES and CUBEX_ROUTES.`,
		Version:      fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "env files to load (default .env)")

	load := func() (*app.Application, error) {
		a, err := app.New(app.WithConfig(config.Load(envFiles...)))
		if err != nil {
			return nil, err
		}
		if Setup != nil {
			if err := Setup(a); err != nil {
				_ = a.Close(context.Background())
				return nil, err
			}
		}
		return a, nil
	}

	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newRunCommand(load))
	cmd.AddCommand(newRoutesCommand(load))
	return cmd
}

type loader func() (*app.Application, error)

func newServeCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the application over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}

func newRunCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run <path> [key=value...]",
		Short: "Dispatch a path from the command line",
		Long: `Run dispatches path through the application's routes and prints the
response body. key=value arguments are passed as query input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			status, err := a.RunCLI(cmd.Context(), args[0], args[1:], cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if status >= 400 {
				return fmt.Errorf("%s: status %d", args[0], status)
			}
			return nil
		},
	}
}

func newRoutesCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the route tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			printRoutes(cmd.OutOrStdout(), a.Routes())
			return nil
		},
	}
}

func printRoutes(w io.Writer, routes []*routing.Route) {
	routing.Walk(routes, func(r *routing.Route, pattern string, depth int) {
		verbs := strings.Join(r.Verbs(), "|")
		if ex := r.ExcludedVerbs(); len(ex) > 0 {
			verbs += " !" + strings.Join(ex, "|!")
		}
		target := "-"
		switch v := r.Result().(type) {
		case nil:
		case string:
			target = v
		default:
			target = fmt.Sprintf("%T", v)
		}
		fmt.Fprintf(w, "%s%-8s %s -> %s\n", strings.Repeat("  ", depth), verbs, pattern, target)
	})
}
