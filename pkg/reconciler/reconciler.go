package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/daemon"
	"github.com/cuemby/rch/pkg/health"
	"github.com/cuemby/rch/pkg/log"
	"github.com/cuemby/rch/pkg/metrics"
	"github.com/cuemby/rch/pkg/security"
	"github.com/cuemby/rch/pkg/types"
	"github.com/rs/zerolog"
)

// tickInterval is how often the run loop wakes to check per-worker probe
// and sweep cooldowns. It is independent of ProbeIntervalSec/SweepIntervalSec,
// which govern how often any single worker is actually probed or swept.
const tickInterval = 1 * time.Second

// Reconciler ensures every worker's health and circuit state reflects
// reality, and that no reservation outlives its deadline.
type Reconciler struct {
	daemon   *daemon.Daemon
	cfg      config.SelfHealing
	fullCfg  config.Config

	logger zerolog.Logger

	mu       sync.Mutex
	checkers map[string]health.Checker
	lastProbe map[string]time.Time
	lastSweep time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Reconciler with one health.Checker per worker in the fleet,
// resolved from each worker's credential reference and the shared
// known_hosts file.
func New(d *daemon.Daemon, cfg config.Config) (*Reconciler, error) {
	r := &Reconciler{
		daemon:    d,
		cfg:       cfg.SelfHealing,
		fullCfg:   cfg,
		logger:    log.WithComponent("reconciler"),
		checkers:  make(map[string]health.Checker),
		lastProbe: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}

	for _, view := range d.Fleet().Snapshot() {
		worker := view.Worker
		checker, err := buildChecker(worker, cfg)
		if err != nil {
			return nil, fmt.Errorf("build health checker for worker %s: %w", worker.ID, err)
		}
		r.checkers[worker.ID] = checker
	}

	return r, nil
}

// buildChecker resolves a worker's credential reference into an SSH client
// config and wraps it in an SSHChecker dialing the worker's address.
func buildChecker(worker types.Worker, cfg config.Config) (health.Checker, error) {
	identity := sshIdentity(worker.User, worker.CredentialRef, cfg.KnownHostsPath)
	clientCfg, err := security.BuildClientConfig(identity)
	if err != nil {
		return nil, err
	}

	dialTimeout := time.Duration(cfg.Thresholds.DialTimeoutSec) * time.Second
	checker := health.NewSSHChecker(worker.Address(), clientCfg).WithTimeout(dialTimeout)
	return checker, nil
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop stops the reconciler and waits for the loop to exit.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Reconciler) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// reconcile runs one tick: probes any worker whose cooldown elapsed, and
// sweeps expired reservations if the sweep interval elapsed.
func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	now := time.Now()

	r.mu.Lock()
	due := make([]string, 0, len(r.checkers))
	for workerID, last := range r.lastProbe {
		if now.Sub(last) >= time.Duration(r.cfg.ProbeIntervalSec)*time.Second {
			due = append(due, workerID)
		}
	}
	for workerID := range r.checkers {
		if _, seen := r.lastProbe[workerID]; !seen {
			due = append(due, workerID)
		}
	}
	sweepDue := now.Sub(r.lastSweep) >= time.Duration(r.cfg.SweepIntervalSec)*time.Second
	if sweepDue {
		r.lastSweep = now
	}
	r.mu.Unlock()

	for _, workerID := range due {
		r.probeWorker(workerID)
	}

	if sweepDue {
		r.daemon.SweepExpired(now)
	}
}

// probeWorker runs one worker's checker and folds the result into the
// daemon's fleet state.
func (r *Reconciler) probeWorker(workerID string) {
	r.mu.Lock()
	checker := r.checkers[workerID]
	r.lastProbe[workerID] = time.Now()
	r.mu.Unlock()

	if checker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.ProbeIntervalSec)*time.Second)
	defer cancel()

	timer := metrics.NewTimer()
	result := checker.Check(ctx)
	timer.ObserveDurationVec(metrics.ProbeDuration, workerID, string(checker.Type()))

	latencyMs := result.Duration.Milliseconds()
	r.daemon.ApplyProbeResult(workerID, result, latencyMs)

	if !result.Healthy {
		r.logger.Debug().Str("worker_id", workerID).Str("message", result.Message).Msg("probe failed")
	}
}

// AddWorkers builds a checker for each worker id not already tracked, for
// the daemon reload signal (spec.md §3 "Lifecycles"). A worker id the
// reconciler already has a checker for is left untouched, so a reload never
// resets an in-progress probe cooldown for a worker whose config didn't
// change.
func (r *Reconciler) AddWorkers(workers []types.Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, worker := range workers {
		if _, exists := r.checkers[worker.ID]; exists {
			continue
		}
		checker, err := buildChecker(worker, r.fullCfg)
		if err != nil {
			return fmt.Errorf("build health checker for worker %s: %w", worker.ID, err)
		}
		r.checkers[worker.ID] = checker
	}
	return nil
}

// ProbeNow forces an immediate, synchronous probe of one worker, used by
// the daemon's Probe RPC to satisfy an on-demand health check request.
func (r *Reconciler) ProbeNow(workerID string) error {
	r.mu.Lock()
	checker, ok := r.checkers[workerID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("reconciler: no checker configured for worker %s", workerID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.ProbeIntervalSec)*time.Second)
	defer cancel()

	timer := metrics.NewTimer()
	result := checker.Check(ctx)
	timer.ObserveDurationVec(metrics.ProbeDuration, workerID, string(checker.Type()))

	r.mu.Lock()
	r.lastProbe[workerID] = time.Now()
	r.mu.Unlock()

	r.daemon.ApplyProbeResult(workerID, result, result.Duration.Milliseconds())
	if !result.Healthy {
		return fmt.Errorf("probe failed: %s", result.Message)
	}
	return nil
}

// sshIdentity resolves an IdentityConfig for a worker from the shared
// known_hosts path and the worker's own user/credential reference.
func sshIdentity(user, credentialRef, knownHostsPath string) security.IdentityConfig {
	return security.IdentityConfig{
		User:           user,
		CredentialRef:  credentialRef,
		KnownHostsPath: knownHostsPath,
	}
}
