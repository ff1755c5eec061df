package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/rch/pkg/hook"
	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Run the hook driver once against a single request read from stdin",
	Long: `hook reads one PreToolUse-shaped JSON request from stdin, decides whether
to intercept it, and if so hands it off to a remote worker. It writes its
decision as JSON to stdout and exits 0 to allow the agent to proceed locally,
or with the remote command's own exit code (and a deny decision on stdout)
once the command has already run remotely.

hook never returns a non-zero exit code for its own failures; anything that
goes wrong before a command actually executes remotely falls open to allow(0)
so a broken daemon or fleet never blocks the agent.`,
	RunE: runHook,
}

func runHook(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		// A broken config must not block the agent either; log to stderr
		// and fail open rather than returning an error from the process.
		fmt.Fprintf(os.Stderr, "rch hook: config error, failing open: %v\n", err)
		return writeAllowAndExit(cmd)
	}

	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		fmt.Fprintf(os.Stderr, "rch hook: reading stdin, failing open: %v\n", err)
		return writeAllowAndExit(cmd)
	}

	// A termination signal received while a build is running remotely must
	// still let hook.Run release its reservation (Outcome=Cancelled)
	// best-effort before this process exits, rather than leaving it for the
	// daemon's sweeper to reclaim as Abandoned.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := hook.NewDependencies(cfg)
	outcome := hook.Run(ctx, deps, raw)

	if err := hook.WriteResponse(cmd.OutOrStdout(), outcome.Response); err != nil {
		fmt.Fprintf(os.Stderr, "rch hook: writing response: %v\n", err)
	}

	os.Exit(outcome.ExitCode)
	return nil
}

func writeAllowAndExit(cmd *cobra.Command) error {
	_ = hook.WriteResponse(cmd.OutOrStdout(), hook.Response{})
	os.Exit(0)
	return nil
}
