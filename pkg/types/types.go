package types

import (
	"fmt"
	"time"
)

// Command is the raw material the classifier inspects: a shell command plus
// the minimal context a hook request carries about it.
type Command struct {
	Text       string // raw command string, unparsed
	WorkingDir string // optional; empty if the hook didn't supply one
	ToolName   string // e.g. "Bash"; anything other than the shell tool tag short-circuits to PassThrough
}

// DecisionKind enumerates the recognized compile-like workloads. It is a
// closed set: the classifier never emits a kind outside this list.
type DecisionKind string

const (
	KindCargoBuild    DecisionKind = "cargo-build"
	KindCargoTest     DecisionKind = "cargo-test"
	KindCargoCheck    DecisionKind = "cargo-check"
	KindCargoClippy   DecisionKind = "cargo-clippy"
	KindCargoDoc      DecisionKind = "cargo-doc"
	KindCargoBench    DecisionKind = "cargo-bench"
	KindRustc         DecisionKind = "rustc"
	KindCCxx          DecisionKind = "c-cxx"
	KindMake          DecisionKind = "make"
	KindCMakeBuild    DecisionKind = "cmake-build"
	KindNinja         DecisionKind = "ninja"
	KindMesonCompile  DecisionKind = "meson-compile"
	KindBunTest       DecisionKind = "bun-test"
	KindBunTypecheck  DecisionKind = "bun-typecheck"
)

// Runtime is the coarse capability tag used for worker capability matching.
type Runtime string

const (
	RuntimeRust    Runtime = "rust"
	RuntimeCCxx    Runtime = "c-cxx"
	RuntimeNodeBun Runtime = "node-bun"
	RuntimeGeneric Runtime = "generic"
)

// PassReason explains why a command was passed through for local execution.
type PassReason string

const (
	ReasonNotShell      PassReason = "not-shell"
	ReasonEmpty         PassReason = "empty"
	ReasonComplexShell  PassReason = "complex-shell"
	ReasonNoKeyword     PassReason = "no-keyword"
	ReasonNegative      PassReason = "negative"
	ReasonLowConfidence PassReason = "low-confidence"
)

// Decision is the classifier's tagged-union output. Exactly one of
// PassThrough or Intercept is meaningful, selected by Intercepted.
type Decision struct {
	Intercepted bool

	// Populated when Intercepted is false.
	PassReason PassReason

	// Populated when Intercepted is true.
	Kind              DecisionKind
	Confidence        float64
	RequiredRuntime   Runtime
	ProjectRoot       string
	ArtifactPatterns  []string
}

// PassThrough builds a non-intercepting Decision.
func PassThrough(reason PassReason) Decision {
	return Decision{Intercepted: false, PassReason: reason}
}

// Intercept builds an intercepting Decision.
func Intercept(kind DecisionKind, confidence float64, runtime Runtime, projectRoot string, artifactPatterns []string) Decision {
	return Decision{
		Intercepted:      true,
		Kind:             kind,
		Confidence:       confidence,
		RequiredRuntime:  runtime,
		ProjectRoot:      projectRoot,
		ArtifactPatterns: artifactPatterns,
	}
}

// Health is the worker's connectivity state machine (spec.md §4.3), distinct
// from the circuit breaker.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthDegraded    Health = "degraded"
	HealthUnreachable Health = "unreachable"
	HealthDraining    Health = "draining"
	HealthDisabled    Health = "disabled"
)

// CircuitState is the worker's failure-suppression state machine.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitHalfOpen CircuitState = "half-open"
	CircuitOpen     CircuitState = "open"
)

// Circuit tracks a single worker's circuit-breaker state.
type Circuit struct {
	State               CircuitState
	ConsecutiveFailures int
	OpenedAt            time.Time
	Cooldown            time.Duration
}

// Expired reports whether an Open circuit's cooldown has elapsed as of now.
func (c Circuit) Expired(now time.Time) bool {
	return c.State == CircuitOpen && now.After(c.OpenedAt.Add(c.Cooldown))
}

// Worker is the static, configuration-derived identity of a remote worker.
type Worker struct {
	ID         string
	Host       string
	Port       int // SSH port; 0 means the default of 22
	User       string
	CredentialRef string // opaque reference to an SSH key file and/or the ssh-agent, resolved by pkg/security
	SlotsTotal int
	Priority   int
	Tags       map[string]string
	Enabled    bool
	Capabilities map[Runtime]bool
}

// Address returns the worker's dial address in host:port form.
func (w Worker) Address() string {
	port := w.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", w.Host, port)
}

// WorkerState is the mutable runtime state owned exclusively by the daemon's
// fleet map (spec.md §3 "Worker runtime state").
type WorkerState struct {
	Health             Health
	UsedSlots          int
	Circuit            Circuit
	LastProbeLatencyMs int64
	LastHeartbeatAt    time.Time
	SpeedScore         float64
	CacheSet           map[string]bool // project fingerprints resident on this worker
}

// FreeSlots returns the worker's currently unreserved capacity.
func (s WorkerState) FreeSlots(total int) int {
	free := total - s.UsedSlots
	if free < 0 {
		return 0
	}
	return free
}

// Outcome is the terminal state a reservation is released with.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeFailOpen  Outcome = "fail-open"
)

// Reservation is the opaque handle the daemon grants to a hook driver.
type Reservation struct {
	ID                string
	WorkerID          string
	ProjectFingerprint string
	SlotsGranted      int
	CreatedAt         time.Time
	Deadline          time.Time
}

// BuildRecord is an append-only record of one completed (or abandoned)
// remote execution, kept in a bounded ring by the daemon.
type BuildRecord struct {
	ID                 string
	WorkerID           string
	ProjectFingerprint string
	Command            string
	StartedAt          time.Time
	CompletedAt        time.Time
	ExitCode           int
	Outcome            Outcome
	DurationMs         int64
	BytesTransferred   int64
}
