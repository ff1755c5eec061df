package config

import "github.com/cuemby/rch/pkg/types"

// Config is the validated snapshot the core reads at start. Every field has
// a default (DefaultConfig) so a caller with no files and no environment
// still gets a usable, fully-local configuration (Enabled=false).
type Config struct {
	General     General
	Thresholds  Thresholds
	Transfer    Transfer
	Selection   Selection
	SelfHealing SelfHealing
	Workers     []WorkerConfig

	SocketPath      string
	KnownHostsPath  string
	StorageDataDir  string
	StorageCapacity int
}

// General holds the top-level toggles.
type General struct {
	Enabled     bool
	ForceLocal  bool
	ForceRemote bool
}

// Thresholds holds compilation/classification timing budgets.
type Thresholds struct {
	ClassifyBudgetMs int
	SelectTimeoutMs  int
	DialTimeoutSec   int
	BuildTimeoutSec  int
}

// Transfer holds project-sync options.
type Transfer struct {
	Compression      bool
	MaxSizeBytes     int64
	BandwidthCapBps  int64
	EnvAllowlist     []string
}

// Strategy selects how SelectWorker picks among scored candidates.
type Strategy string

const (
	StrategyFairFastest Strategy = "fair-fastest"
	StrategyFastest     Strategy = "fastest"
)

// Selection holds the worker-scoring weights and strategy (spec.md §4.3).
type Selection struct {
	Strategy       Strategy
	WeightSlots    float64
	WeightSpeed    float64
	WeightCache    float64
	WeightPriority float64
	SpeedRef       float64
}

// SelfHealing holds circuit-breaker, health-probe, and sweeper parameters.
type SelfHealing struct {
	FailureThreshold   int
	CircuitCooldownSec int
	ProbeIntervalSec   int
	DegradeMs          int64
	RecoverMs          int64
	ProbeFailureStreak int
	ProbeSuccessStreak int
	ReservationTTLSec  int
	SweepIntervalSec   int
}

// WorkerConfig is the file-layer shape of a types.Worker entry.
type WorkerConfig struct {
	ID            string
	Host          string
	Port          int
	User          string
	CredentialRef string
	SlotsTotal    int
	Priority      int
	Tags          map[string]string
	Capabilities  []string
	Enabled       *bool // nil defaults to true; see mergeWorkers
}

// ToWorker converts a resolved WorkerConfig into the runtime types.Worker.
func (w WorkerConfig) ToWorker() types.Worker {
	enabled := true
	if w.Enabled != nil {
		enabled = *w.Enabled
	}
	caps := make(map[types.Runtime]bool, len(w.Capabilities))
	for _, c := range w.Capabilities {
		caps[types.Runtime(c)] = true
	}
	return types.Worker{
		ID:            w.ID,
		Host:          w.Host,
		Port:          w.Port,
		User:          w.User,
		CredentialRef: w.CredentialRef,
		SlotsTotal:    w.SlotsTotal,
		Priority:      w.Priority,
		Tags:          w.Tags,
		Enabled:       enabled,
		Capabilities:  caps,
	}
}

// DefaultConfig returns the built-in defaults named in spec.md §4.3/§6.5.
func DefaultConfig() Config {
	return Config{
		General: General{
			Enabled:     false,
			ForceLocal:  false,
			ForceRemote: false,
		},
		Thresholds: Thresholds{
			ClassifyBudgetMs: 5,
			SelectTimeoutMs:  2000,
			DialTimeoutSec:   10,
			BuildTimeoutSec:  600,
		},
		Transfer: Transfer{
			Compression:     true,
			MaxSizeBytes:    1 << 30, // 1 GiB
			BandwidthCapBps: 0,       // 0 = uncapped
			EnvAllowlist:    []string{"PATH", "HOME", "CARGO_HOME", "RUSTUP_HOME"},
		},
		Selection: Selection{
			Strategy:       StrategyFairFastest,
			WeightSlots:    0.4,
			WeightSpeed:    0.5,
			WeightCache:    0.1,
			WeightPriority: 0.0,
			SpeedRef:       1.0,
		},
		SelfHealing: SelfHealing{
			FailureThreshold:   3,
			CircuitCooldownSec: 30,
			ProbeIntervalSec:   30,
			DegradeMs:          5000,
			RecoverMs:          2000,
			ProbeFailureStreak: 3,
			ProbeSuccessStreak: 3,
			ReservationTTLSec:  600,
			SweepIntervalSec:   5,
		},
		Workers:         nil,
		SocketPath:      "/tmp/rch.sock",
		KnownHostsPath:  "",
		StorageDataDir:  "",
		StorageCapacity: 5000,
	}
}
