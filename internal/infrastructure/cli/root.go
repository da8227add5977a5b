// Package cli wires the cobra command tree. Every command except serve is a
// thin client that talks to the running daemon over its Unix socket.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doeshing/aiosd/internal/app"
	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/infrastructure/config"
	"github.com/doeshing/aiosd/internal/infrastructure/ipc"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(opts Options) *cobra.Command {
	var socketOverride string

	root := &cobra.Command{
		Use:   "aiosd",
		Short: "aiosd - natural language command daemon",
		Long: "aiosd runs a local daemon that translates natural language into shell\n" +
			"commands using a local language-model backend, with per-session context\n" +
			"and a safety gate in front of execution.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&socketOverride, "socket", "", "daemon socket path (defaults to the configured path)")

	socketPath := func(ctx context.Context) string {
		if socketOverride != "" {
			return socketOverride
		}
		cfg, err := config.NewFileLoader("").Load(ctx)
		if err != nil {
			return config.Default().Daemon.SocketPath
		}
		return cfg.Daemon.SocketPath
	}

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newStatusCommand(socketPath))
	root.AddCommand(newAskCommand(socketPath))
	root.AddCommand(newExecCommand(socketPath))
	root.AddCommand(newChatCommand(socketPath))
	root.AddCommand(newClassifyCommand(socketPath))
	root.AddCommand(newContextCommand(socketPath))
	root.AddCommand(newModelCommand(socketPath))
	root.AddCommand(newFeedbackCommand(socketPath))
	root.AddCommand(newHistoryCommand())
	return root
}

func newServeCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, err := app.BuildContainer(ctx, opts.Verbose)
			if err != nil {
				return err
			}
			defer container.Shutdown()

			return container.Server.Run(ctx)
		},
	}
}

// withClient dials the daemon, runs fn, and closes the session.
func withClient(ctx context.Context, socket string, fn func(*ipc.Client) error) error {
	client, err := ipc.Dial(ctx, socket)
	if err != nil {
		return fmt.Errorf("%w (is the daemon running? try: aiosd serve)", err)
	}
	defer client.Close()
	return fn(client)
}

// exitForStatus maps non-success response statuses to process exit codes so
// scripts can branch on the outcome.
func exitForStatus(resp domain.Response) error {
	switch resp.Status {
	case domain.StatusSuccess:
		return nil
	case domain.StatusUnsafe:
		fmt.Fprintln(os.Stderr, "unsafe:", resp.Message)
		return exitError{code: 3}
	case domain.StatusUnclear:
		fmt.Fprintln(os.Stderr, "unclear:", resp.Message)
		return exitError{code: 4}
	default:
		return fmt.Errorf("%s", resp.Message)
	}
}

// exitError carries an exit code through cobra's error path.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }
func (e exitError) ExitCode() int { return e.code }
