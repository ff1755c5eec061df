package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/rch/pkg/daemon"
	"github.com/cuemby/rch/pkg/events"
	"github.com/cuemby/rch/pkg/log"
	"github.com/cuemby/rch/pkg/metrics"
	"github.com/cuemby/rch/pkg/reconciler"
	"github.com/cuemby/rch/pkg/storage"
	"github.com/cuemby/rch/pkg/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run or control the scheduler daemon",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler daemon in the foreground",
	Long: `run starts the daemon D: it loads the worker fleet from config, serves
SelectWorker/ReleaseReservation/Probe/Status/Cancel/Health requests on a Unix
socket, and runs the self-healing reconciler (health probing and reservation
sweeping) on a background tick until it receives SIGINT or SIGTERM. SIGHUP
re-reads the worker list from configuration and adds any newly-declared
worker to the fleet, without disturbing in-flight reservations.`,
	RunE: runDaemon,
}

var daemonReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Signal a running daemon to re-read its worker list (SIGHUP)",
	Args:  cobra.NoArgs,
	RunE:  runDaemonReload,
}

func init() {
	daemonRunCmd.Flags().String("metrics-addr", "127.0.0.1:9191", "Address to serve /metrics on")
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonReloadCmd)
}

// pidPath derives the daemon's pid file location from its socket path, so
// a reload has no extra configuration to keep in sync with the socket.
func pidPath(socketPath string) string {
	return socketPath + ".pid"
}

func runDaemon(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("rch-daemon")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dataDir := cfg.StorageDataDir
	if dataDir == "" {
		home, herr := os.UserHomeDir()
		if herr == nil {
			dataDir = home + "/.local/share/rch"
		} else {
			dataDir = "."
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating storage dir %s: %w", dataDir, err)
	}

	store, err := storage.NewBoltStore(dataDir, cfg.StorageCapacity)
	if err != nil {
		return fmt.Errorf("opening build record store: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	workers := make([]types.Worker, 0, len(cfg.Workers))
	for _, w := range cfg.Workers {
		if w.Enabled != nil && !*w.Enabled {
			continue
		}
		workers = append(workers, w.ToWorker())
	}
	fleet := daemon.NewFleet(workers)

	d := daemon.New(cfg, fleet, store, broker)

	recon, err := reconciler.New(d, cfg)
	if err != nil {
		return fmt.Errorf("building reconciler: %w", err)
	}
	d.SetProbeHook(recon.ProbeNow)
	recon.Start()
	defer recon.Stop()

	collector := metrics.NewCollector(fleet)
	collector.Start()
	defer collector.Stop()

	srv := daemon.NewServer(cfg.SocketPath, d)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting daemon server: %w", err)
	}
	defer srv.Stop()

	pf := pidPath(cfg.SocketPath)
	if err := os.WriteFile(pf, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
		logger.Warn().Err(err).Str("pid_file", pf).Msg("failed to write pid file; reload will be unavailable")
	}
	defer os.Remove(pf)

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	logger.Info().
		Str("socket", cfg.SocketPath).
		Str("metrics_addr", metricsAddr).
		Int("worker_count", len(workers)).
		Msg("rch daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			reloadWorkers(cmd, logger, fleet, recon)
			continue
		}
		break
	}

	logger.Info().Msg("shutting down")
	return nil
}

// reloadWorkers re-reads the worker list from configuration and adds any
// newly-declared worker to both the fleet and the reconciler's checker set.
// Existing workers, and any in-flight reservations they hold, are untouched.
func reloadWorkers(cmd *cobra.Command, logger zerolog.Logger, fleet *daemon.Fleet, recon *reconciler.Reconciler) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		logger.Warn().Err(err).Msg("reload: failed to reload config")
		return
	}

	workers := make([]types.Worker, 0, len(cfg.Workers))
	for _, w := range cfg.Workers {
		if w.Enabled != nil && !*w.Enabled {
			continue
		}
		workers = append(workers, w.ToWorker())
	}

	added := fleet.AddWorkers(workers)
	if err := recon.AddWorkers(workers); err != nil {
		logger.Warn().Err(err).Msg("reload: failed to build checkers for new workers")
		return
	}

	logger.Info().Int("added", added).Msg("reload: worker list re-read")
}

func runDaemonReload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pf := pidPath(cfg.SocketPath)
	raw, err := os.ReadFile(pf)
	if err != nil {
		return fmt.Errorf("reading pid file %s (is the daemon running?): %w", pf, err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(raw), "%d", &pid); err != nil {
		return fmt.Errorf("parsing pid file %s: %w", pf, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("signalling process %d: %w", pid, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent SIGHUP to rch daemon (pid %d)\n", pid)
	return nil
}
