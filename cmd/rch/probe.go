package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/rch/pkg/client"
	"github.com/cuemby/rch/pkg/protocol"
	"github.com/spf13/cobra"
)

const (
	defaultDialTimeout    = 2 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

var probeCmd = &cobra.Command{
	Use:   "probe <worker-id>",
	Short: "Force an immediate health check of one worker",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c, err := client.Dial(cfg.SocketPath, defaultDialTimeout)
	if err != nil {
		return fmt.Errorf("connecting to daemon at %s: %w", cfg.SocketPath, err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	defer cancel()

	payload, err := c.Probe(ctx, args[0])
	if err != nil {
		if rchErr, ok := err.(*protocol.Error); ok {
			return fmt.Errorf("probe %s: %s", args[0], rchErr.Message)
		}
		return fmt.Errorf("probe %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s  health=%s  circuit=%s  last_probe=%dms\n",
		payload.WorkerID, payload.Health, payload.Circuit, payload.LastProbeLatencyMs)
	return nil
}
