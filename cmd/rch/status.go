package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/rch/pkg/client"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the fleet, live reservations, and recent build outcomes",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	status, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "WORKERS")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tHEALTH\tCIRCUIT\tSLOTS\tSPEED\tFAILS\tTAGS")
	for _, w := range status.Workers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%.2f\t%d\t%s\n",
			w.ID, w.Health, w.Circuit, w.UsedSlots, w.SlotsTotal, w.SpeedScore, w.ConsecutiveFailures, formatTags(w.Tags))
	}
	tw.Flush()

	fmt.Fprintln(out, "\nRESERVATIONS")
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKER\tPROJECT\tSLOTS\tDEADLINE")
	for _, r := range status.Reservations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.WorkerID, r.ProjectFingerprint, r.SlotsGranted, r.Deadline.Format(time.RFC3339))
	}
	tw.Flush()

	fmt.Fprintln(out, "\nRECENT BUILDS")
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKER\tOUTCOME\tEXIT\tDURATION")
	for _, b := range status.RecentBuilds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\n",
			b.ID, b.WorkerID, b.Outcome, b.ExitCode, b.DurationMs)
	}
	tw.Flush()

	return nil
}

// formatTags renders a worker's tags as a sorted "k=v,k2=v2" list so the
// status table is stable across runs.
func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ",")
}
