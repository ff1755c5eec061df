package hook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/rch/pkg/classify"
	"github.com/cuemby/rch/pkg/client"
	"github.com/cuemby/rch/pkg/config"
	"github.com/cuemby/rch/pkg/log"
	"github.com/cuemby/rch/pkg/metrics"
	"github.com/cuemby/rch/pkg/orchestrator"
	"github.com/cuemby/rch/pkg/protocol"
	"github.com/cuemby/rch/pkg/types"
	"github.com/rs/zerolog"
)

// forceRemoteThreshold is used in place of the default confidence threshold
// when force_remote is set: any positively-matched pattern intercepts
// regardless of confidence, per spec.md §4.2 step 3 ("force_remote overrides
// a low-confidence passthrough").
const forceRemoteThreshold = 0

func defaultClassify(cmd types.Command, forceRemote bool) types.Decision {
	if forceRemote {
		return classify.ClassifyWithThreshold(cmd, forceRemoteThreshold)
	}
	return classify.Classify(cmd)
}

// slotsPerBuild is the fixed reservation size H asks for; RCH has no notion
// of a multi-slot build in scope, every intercepted command occupies one
// worker slot.
const slotsPerBuild = 1

// connectTimeoutDefault is spec.md §4.2 step 3's default bounded connect
// budget for dialing the daemon socket. Thresholds.SelectTimeoutMs bounds
// the SelectWorker call that follows, not the dial.
const connectTimeoutDefault = 250 * time.Millisecond

// Outcome is the terminal disposition Run reports, used by cmd/rch hook to
// pick an exit code and to log a one-line summary.
type Outcome struct {
	Response Response
	ExitCode int
}

// allow is the permissive outcome returned for every pre-execution failure.
func allow(exitCode int) Outcome {
	return Outcome{Response: Response{}, ExitCode: exitCode}
}

// deny is the restrictive outcome: the agent must not re-run the command.
func deny(exitCode int, reason string) Outcome {
	return Outcome{Response: Response{PermissionDecision: "deny", Reason: reason}, ExitCode: exitCode}
}

// Dependencies lets Run's caller supply the pieces that talk to the outside
// world, so the decision logic itself can be tested without a real daemon
// or SSH fleet.
type Dependencies struct {
	Cfg          config.Config
	DialDaemon   func(ctx context.Context) (DaemonClient, error)
	Orchestrate  func(ctx context.Context, reservation protocol.ReservationPayload, decision types.Decision, cmd types.Command) (orchestrator.Result, error)
	Logger       zerolog.Logger
}

// DaemonClient is the subset of *client.Client Run needs, so tests can
// supply a fake.
type DaemonClient interface {
	SelectWorker(ctx context.Context, req protocol.SelectWorkerRequest) (protocol.ReservationPayload, error)
	ReleaseReservation(ctx context.Context, req protocol.ReleaseReservationRequest) error
	Close() error
}

// NewDependencies wires the real daemon client and orchestrator into a
// Dependencies for production use (cmd/rch hook).
func NewDependencies(cfg config.Config) Dependencies {
	orch := orchestrator.New(cfg)
	return Dependencies{
		Cfg: cfg,
		DialDaemon: func(ctx context.Context) (DaemonClient, error) {
			return client.Dial(cfg.SocketPath, connectTimeoutDefault)
		},
		Orchestrate: orch.Orchestrate,
		Logger:      log.WithComponent("hook"),
	}
}

// Run executes the full H pipeline against one already-decoded request
// (spec.md §4.2). It never returns an error: every failure is folded into
// an Outcome, fail-open by default.
func Run(ctx context.Context, deps Dependencies, raw []byte) Outcome {
	req, err := ParseRequest(raw)
	if err != nil {
		deps.Logger.Warn().Err(err).Msg("failed to parse hook request")
		return allow(0)
	}

	cmd := types.Command{
		Text:       req.ToolInput.Command,
		WorkingDir: req.ToolInput.WorkingDir,
		ToolName:   req.ToolName,
	}

	if !deps.Cfg.General.Enabled {
		deps.Logger.Debug().Msg("rch disabled by config: running locally")
		return allow(0)
	}

	if deps.Cfg.General.ForceLocal {
		deps.Logger.Debug().Msg("force_local override: running locally")
		return allow(0)
	}

	classifyTimer := metrics.NewTimer()
	decision := classifyCommand(cmd, deps.Cfg.General.ForceRemote)
	classifyTimer.ObserveDuration(metrics.ClassificationDuration)
	if budget := deps.Cfg.Thresholds.ClassifyBudgetMs; budget > 0 {
		if elapsed := classifyTimer.Duration(); elapsed > time.Duration(budget)*time.Millisecond {
			deps.Logger.Warn().Dur("elapsed", elapsed).Int("budget_ms", budget).Msg("classifier exceeded its budget")
		}
	}
	if !decision.Intercepted {
		deps.Logger.Debug().Str("reason", string(decision.PassReason)).Msg("command passed through")
		return allow(0)
	}

	daemonClient, err := deps.DialDaemon(ctx)
	if err != nil {
		deps.Logger.Warn().Err(err).Msg("daemon unreachable, failing open")
		metrics.FailOpensTotal.WithLabelValues("daemon-unreachable").Inc()
		return allow(0)
	}
	defer daemonClient.Close()

	projectRoot := decision.ProjectRoot
	if projectRoot == "" {
		projectRoot = cmd.WorkingDir
	}
	fingerprint := fingerprintProject(projectRoot)

	selectCtx := ctx
	var cancel context.CancelFunc
	if deps.Cfg.Thresholds.SelectTimeoutMs > 0 {
		selectCtx, cancel = context.WithTimeout(ctx, time.Duration(deps.Cfg.Thresholds.SelectTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	reservation, err := daemonClient.SelectWorker(selectCtx, protocol.SelectWorkerRequest{
		ProjectFingerprint: fingerprint,
		RequiredRuntime:    decision.RequiredRuntime,
		SlotsRequested:     slotsPerBuild,
		DecisionKind:       decision.Kind,
	})
	if err != nil {
		deps.Logger.Warn().Err(err).Msg("select worker failed, failing open")
		metrics.FailOpensTotal.WithLabelValues("select-worker-failed").Inc()
		return allow(0)
	}

	buildTimeout := time.Duration(deps.Cfg.Thresholds.BuildTimeoutSec) * time.Second
	execCtx, execCancel := context.WithTimeout(ctx, buildTimeout)
	defer execCancel()

	start := time.Now()
	result, err := deps.Orchestrate(execCtx, reservation, decision, cmd)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			// The caller's own context was cancelled (a termination signal
			// reached cmd/rch hook), not execCtx's independent build-timeout
			// deadline. Release best-effort with Outcome=Cancelled rather
			// than treating this as an ordinary failure.
			deps.Logger.Warn().Err(err).Str("worker_id", reservation.WorkerID).Msg("hook cancelled, releasing reservation best-effort")
			_ = daemonClient.ReleaseReservation(context.Background(), protocol.ReleaseReservationRequest{
				ReservationID: reservation.ReservationID,
				Outcome:       types.OutcomeCancelled,
				DurationMs:    duration.Milliseconds(),
				Reason:        "hook process received termination signal",
			})
			return allow(0)
		}

		var postErr *orchestrator.PostExecutionFailure
		if errors.As(err, &postErr) {
			// Remote execution had already begun, so the worker may have
			// real side effects: never fail open from here, propagate the
			// partial exit code and deny local re-execution instead.
			deps.Logger.Warn().Err(err).Str("worker_id", reservation.WorkerID).Int("exit_code", postErr.PartialExitCode).Msg("failure after remote execution began, denying local re-execution")
			_ = daemonClient.ReleaseReservation(ctx, protocol.ReleaseReservationRequest{
				ReservationID: reservation.ReservationID,
				Outcome:       types.OutcomeFailure,
				ExitCode:      postErr.PartialExitCode,
				DurationMs:    duration.Milliseconds(),
				Reason:        postErr.Reason,
			})
			return deny(mapExitCode(postErr.PartialExitCode), fmt.Sprintf("executed remotely on worker %s: %s", reservation.WorkerID, postErr.Reason))
		}

		deps.Logger.Warn().Err(err).Str("worker_id", reservation.WorkerID).Msg("orchestration failed before remote execution began, failing open")
		metrics.FailOpensTotal.WithLabelValues("orchestration-failed").Inc()
		_ = daemonClient.ReleaseReservation(ctx, protocol.ReleaseReservationRequest{
			ReservationID: reservation.ReservationID,
			Outcome:       types.OutcomeFailOpen,
			DurationMs:    duration.Milliseconds(),
			Reason:        err.Error(),
		})
		return allow(0)
	}

	outcome := types.OutcomeSuccess
	if result.ExitCode != 0 {
		outcome = types.OutcomeFailure
	}
	_ = daemonClient.ReleaseReservation(ctx, protocol.ReleaseReservationRequest{
		ReservationID:    reservation.ReservationID,
		Outcome:          outcome,
		ExitCode:         result.ExitCode,
		DurationMs:       duration.Milliseconds(),
		BytesTransferred: result.BytesUploaded + result.BytesFetched,
	})

	return deny(mapExitCode(result.ExitCode), fmt.Sprintf("executed remotely on worker %s", reservation.WorkerID))
}

// classifyCommand is a thin indirection point so tests can stub it without
// importing pkg/classify's pattern tables; production always uses the real
// classifier.
var classifyCommand = defaultClassify

// mapExitCode passes a non-negative remote exit code through verbatim and
// maps a negative one (exitCodeOf's "no exit status" value) to 1; signal
// mapping (128+N) is already done by pkg/orchestrator's exitCodeOf before
// Result is built.
func mapExitCode(code int) int {
	if code < 0 {
		return 1
	}
	return code
}

// fingerprintProject derives a stable project fingerprint from its root
// path, used to key worker cache-affinity scoring (spec.md §4.3 step 2).
func fingerprintProject(projectRoot string) string {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		abs = projectRoot
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}
