package orchestrator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/metrics"
	"github.com/cuemby/rch/pkg/protocol"
	"github.com/cuemby/rch/pkg/types"
)

// remoteRootBase is where synced project trees live on a worker, namespaced
// by project fingerprint so two different projects reserved on the same
// worker never collide.
const remoteRootBase = ".rch/projects"

// Result is what Orchestrate reports back to the hook driver.
type Result struct {
	ExitCode      int
	Stdout        []byte
	Stderr        []byte
	BytesUploaded int64
	FilesUploaded int
	BytesFetched  int64
	FilesFetched  int
	SyncDuration  time.Duration
	ExecDuration  time.Duration
}

// Orchestrator drives the sync/exec/fetch pipeline against a granted
// reservation.
type Orchestrator struct {
	cfg config.Config
}

// New builds an Orchestrator bound to a validated Config.
func New(cfg config.Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Orchestrate runs the full remote-build pipeline for one reservation. A
// non-nil error means the caller should fail open and run cmd locally
// instead, unless it is (or wraps) a *PostExecutionFailure, which means the
// remote command already started and must not be re-run locally. Result is
// only meaningful when err is nil.
func (o *Orchestrator) Orchestrate(ctx context.Context, reservation protocol.ReservationPayload, decision types.Decision, cmd types.Command) (Result, error) {
	dialTimeout := time.Duration(o.cfg.Thresholds.DialTimeoutSec) * time.Second

	client, err := dialWorker(ctx, reservation.Connection, o.cfg.KnownHostsPath, dialTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: dial worker %s: %w", reservation.WorkerID, err)
	}
	defer client.Close()

	sc, err := newSFTPClient(client)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: sftp %s: %w", reservation.WorkerID, err)
	}
	defer sc.Close()

	remoteRoot := remoteProjectRoot(decision.ProjectRoot)

	limiter := newBandwidthLimiter(o.cfg.Transfer.BandwidthCapBps)

	syncTimer := metrics.NewTimer()
	syncRes, err := syncProject(ctx, client, sc, decision.ProjectRoot, remoteRoot, defaultMaxConcurrency, o.cfg.Transfer.MaxSizeBytes, limiter, o.cfg.Transfer.Compression)
	syncTimer.ObserveDurationVec(metrics.TransferDuration, reservation.WorkerID)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: sync project: %w", err)
	}
	metrics.TransferBytesTotal.WithLabelValues(reservation.WorkerID, "upload").Add(float64(syncRes.BytesUploaded))

	buildTimeout := time.Duration(o.cfg.Thresholds.BuildTimeoutSec) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	execTimer := metrics.NewTimer()
	exitCode, err := runRemote(execCtx, client, remoteRoot, cmd.Text, o.cfg.Transfer.EnvAllowlist, io.Writer(&stdout), io.Writer(&stderr))
	execTimer.ObserveDurationVec(metrics.RemoteBuildDuration, reservation.WorkerID, string(decision.Kind))
	if err != nil {
		metrics.RemoteBuildsTotal.WithLabelValues(string(types.OutcomeFailure)).Inc()
		return Result{}, fmt.Errorf("orchestrator: remote exec: %w", err)
	}

	outcome := types.OutcomeSuccess
	if exitCode != 0 {
		outcome = types.OutcomeFailure
	}
	metrics.RemoteBuildsTotal.WithLabelValues(string(outcome)).Inc()

	fetchTimer := metrics.NewTimer()
	fetchRes, err := fetchArtifacts(ctx, sc, decision.ProjectRoot, remoteRoot, decision.ArtifactPatterns)
	fetchTimer.ObserveDurationVec(metrics.TransferDuration, reservation.WorkerID)
	if err != nil {
		// The remote command already ran to completion by this point, so a
		// fetch failure can't fail open: the build's side effects (and its
		// exit code) are real even though we couldn't retrieve the artifacts.
		return Result{}, &PostExecutionFailure{
			PartialExitCode: exitCode,
			Reason:          fmt.Sprintf("fetch artifacts: %v", err),
		}
	}
	metrics.TransferBytesTotal.WithLabelValues(reservation.WorkerID, "download").Add(float64(fetchRes.BytesFetched))

	return Result{
		ExitCode:      exitCode,
		Stdout:        stdout.Bytes(),
		Stderr:        stderr.Bytes(),
		BytesUploaded: syncRes.BytesUploaded,
		FilesUploaded: syncRes.FilesUploaded,
		BytesFetched:  fetchRes.BytesFetched,
		FilesFetched:  fetchRes.FilesFetched,
		SyncDuration:  syncTimer.Duration(),
		ExecDuration:  execTimer.Duration(),
	}, nil
}

// defaultMaxConcurrency bounds how many files sync in parallel per
// reservation; kept modest since several reservations can be in flight on
// the daemon at once, each opening its own pool.
const defaultMaxConcurrency = 8

// remoteProjectRoot derives a stable, collision-free remote directory for a
// local project root, keyed on its own path so repeated builds of the same
// project reuse the same manifest.
func remoteProjectRoot(localProjectRoot string) string {
	sum := sha256.Sum256([]byte(localProjectRoot))
	return remoteRootBase + "/" + hex.EncodeToString(sum[:])[:16]
}
