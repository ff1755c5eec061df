package main

import (
	"context"
	"fmt"

	"github.com/cuemby/rch/pkg/client"
	"github.com/cuemby/rch/pkg/protocol"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [reservation-id]",
	Short: "Cancel one reservation, or every reservation with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCancel,
}

func init() {
	cancelCmd.Flags().Bool("all", false, "Cancel every live reservation")
}

func runCancel(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if !all && len(args) == 0 {
		return fmt.Errorf("cancel requires a reservation id, or --all")
	}

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

	req := protocol.CancelRequest{All: all}
	if len(args) == 1 {
		req.ReservationID = args[0]
	}

	if err := c.Cancel(ctx, req); err != nil {
		if rchErr, ok := err.(*protocol.Error); ok {
			return fmt.Errorf("cancel: %s", rchErr.Message)
		}
		return fmt.Errorf("cancel: %w", err)
	}

	if all {
		fmt.Fprintln(cmd.OutOrStdout(), "cancelled all reservations")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled reservation %s\n", args[0])
	}
	return nil
}
