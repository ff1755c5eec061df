package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileLayer is the YAML shape of a config file. Every field is a pointer or
// a nil-able slice/map so a layer that doesn't mention a setting leaves the
// lower layer's value untouched during merge.
type fileLayer struct {
	Enabled     *bool     `yaml:"enabled"`
	ForceLocal  *bool     `yaml:"force_local"`
	ForceRemote *bool     `yaml:"force_remote"`

	ClassifyBudgetMs *int `yaml:"classify_budget_ms"`
	SelectTimeoutMs  *int `yaml:"select_timeout_ms"`
	DialTimeoutSec   *int `yaml:"dial_timeout_sec"`
	BuildTimeoutSec  *int `yaml:"build_timeout_sec"`

	Compression     *bool    `yaml:"compression"`
	MaxSizeBytes    *int64   `yaml:"max_size_bytes"`
	BandwidthCapBps *int64   `yaml:"bandwidth_cap_bps"`
	EnvAllowlist    []string `yaml:"env_allowlist"`

	Strategy       *string  `yaml:"strategy"`
	WeightSlots    *float64 `yaml:"weight_slots"`
	WeightSpeed    *float64 `yaml:"weight_speed"`
	WeightCache    *float64 `yaml:"weight_cache"`
	WeightPriority *float64 `yaml:"weight_priority"`
	SpeedRef       *float64 `yaml:"speed_ref"`

	FailureThreshold   *int   `yaml:"failure_threshold"`
	CircuitCooldownSec *int   `yaml:"circuit_cooldown_sec"`
	ProbeIntervalSec   *int   `yaml:"probe_interval_sec"`
	DegradeMs          *int64 `yaml:"degrade_ms"`
	RecoverMs          *int64 `yaml:"recover_ms"`
	ProbeFailureStreak *int   `yaml:"probe_failure_streak"`
	ProbeSuccessStreak *int   `yaml:"probe_success_streak"`
	ReservationTTLSec  *int   `yaml:"reservation_ttl_sec"`
	SweepIntervalSec   *int   `yaml:"sweep_interval_sec"`

	Workers []WorkerConfig `yaml:"workers"`

	SocketPath      *string `yaml:"socket_path"`
	KnownHostsPath  *string `yaml:"known_hosts_path"`
	StorageDataDir  *string `yaml:"storage_data_dir"`
	StorageCapacity *int    `yaml:"storage_capacity"`
}

// Sources names the file-layer paths, highest precedence first (defaults are
// implicit and always present beneath these). A zero-value path, or a path
// whose file does not exist, is skipped rather than treated as an error —
// most deployments won't populate every layer.
type Sources struct {
	ProfilePath         string
	DotEnvPath          string
	ProjectOverridePath string
	UserConfigPath      string
}

// Load builds a Config by merging, in precedence order (lowest first):
// defaults, UserConfigPath, ProjectOverridePath, DotEnvPath, ProfilePath,
// the process environment, and finally flagOverride (if non-nil, applied
// last and verbatim over the merged result's corresponding fields — the
// caller, typically cmd/rch, is responsible for only setting the flags the
// user actually passed).
func Load(src Sources, flagOverride *FlagOverride) (Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{src.UserConfigPath, src.ProjectOverridePath, src.ProfilePath} {
		if path == "" {
			continue
		}
		layer, err := readLayer(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
		applyLayer(&cfg, layer)
	}

	if src.DotEnvPath != "" {
		if err := applyDotEnv(src.DotEnvPath); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", src.DotEnvPath, err)
		}
	}

	applyEnv(&cfg)

	if flagOverride != nil {
		flagOverride.apply(&cfg)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readLayer(path string) (fileLayer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileLayer{}, err
	}
	var layer fileLayer
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return fileLayer{}, fmt.Errorf("parsing yaml: %w", err)
	}
	return layer, nil
}

func applyLayer(cfg *Config, l fileLayer) {
	if l.Enabled != nil {
		cfg.General.Enabled = *l.Enabled
	}
	if l.ForceLocal != nil {
		cfg.General.ForceLocal = *l.ForceLocal
	}
	if l.ForceRemote != nil {
		cfg.General.ForceRemote = *l.ForceRemote
	}

	if l.ClassifyBudgetMs != nil {
		cfg.Thresholds.ClassifyBudgetMs = *l.ClassifyBudgetMs
	}
	if l.SelectTimeoutMs != nil {
		cfg.Thresholds.SelectTimeoutMs = *l.SelectTimeoutMs
	}
	if l.DialTimeoutSec != nil {
		cfg.Thresholds.DialTimeoutSec = *l.DialTimeoutSec
	}
	if l.BuildTimeoutSec != nil {
		cfg.Thresholds.BuildTimeoutSec = *l.BuildTimeoutSec
	}

	if l.Compression != nil {
		cfg.Transfer.Compression = *l.Compression
	}
	if l.MaxSizeBytes != nil {
		cfg.Transfer.MaxSizeBytes = *l.MaxSizeBytes
	}
	if l.BandwidthCapBps != nil {
		cfg.Transfer.BandwidthCapBps = *l.BandwidthCapBps
	}
	if l.EnvAllowlist != nil {
		cfg.Transfer.EnvAllowlist = l.EnvAllowlist
	}

	if l.Strategy != nil {
		cfg.Selection.Strategy = Strategy(*l.Strategy)
	}
	if l.WeightSlots != nil {
		cfg.Selection.WeightSlots = *l.WeightSlots
	}
	if l.WeightSpeed != nil {
		cfg.Selection.WeightSpeed = *l.WeightSpeed
	}
	if l.WeightCache != nil {
		cfg.Selection.WeightCache = *l.WeightCache
	}
	if l.WeightPriority != nil {
		cfg.Selection.WeightPriority = *l.WeightPriority
	}
	if l.SpeedRef != nil {
		cfg.Selection.SpeedRef = *l.SpeedRef
	}

	if l.FailureThreshold != nil {
		cfg.SelfHealing.FailureThreshold = *l.FailureThreshold
	}
	if l.CircuitCooldownSec != nil {
		cfg.SelfHealing.CircuitCooldownSec = *l.CircuitCooldownSec
	}
	if l.ProbeIntervalSec != nil {
		cfg.SelfHealing.ProbeIntervalSec = *l.ProbeIntervalSec
	}
	if l.DegradeMs != nil {
		cfg.SelfHealing.DegradeMs = *l.DegradeMs
	}
	if l.RecoverMs != nil {
		cfg.SelfHealing.RecoverMs = *l.RecoverMs
	}
	if l.ProbeFailureStreak != nil {
		cfg.SelfHealing.ProbeFailureStreak = *l.ProbeFailureStreak
	}
	if l.ProbeSuccessStreak != nil {
		cfg.SelfHealing.ProbeSuccessStreak = *l.ProbeSuccessStreak
	}
	if l.ReservationTTLSec != nil {
		cfg.SelfHealing.ReservationTTLSec = *l.ReservationTTLSec
	}
	if l.SweepIntervalSec != nil {
		cfg.SelfHealing.SweepIntervalSec = *l.SweepIntervalSec
	}

	if l.Workers != nil {
		cfg.Workers = mergeWorkers(cfg.Workers, l.Workers)
	}

	if l.SocketPath != nil {
		cfg.SocketPath = *l.SocketPath
	}
	if l.KnownHostsPath != nil {
		cfg.KnownHostsPath = *l.KnownHostsPath
	}
	if l.StorageDataDir != nil {
		cfg.StorageDataDir = *l.StorageDataDir
	}
	if l.StorageCapacity != nil {
		cfg.StorageCapacity = *l.StorageCapacity
	}
}

// mergeWorkers replaces a worker wholesale when a later layer names the same
// ID (by convention a profile or override redeclares a worker completely
// rather than patching individual fields), and appends otherwise.
func mergeWorkers(base, incoming []WorkerConfig) []WorkerConfig {
	byID := make(map[string]int, len(base))
	merged := make([]WorkerConfig, len(base))
	copy(merged, base)
	for i, w := range merged {
		byID[w.ID] = i
	}
	for _, w := range incoming {
		if idx, ok := byID[w.ID]; ok {
			merged[idx] = w
			continue
		}
		byID[w.ID] = len(merged)
		merged = append(merged, w)
	}
	return merged
}

// applyDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment without overwriting anything already set there, so an
// operator's shell exports still win over the project's checked-in .env.
func applyDotEnv(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		_ = os.Setenv(key, value)
	}
	return nil
}

const envPrefix = "RCH_"

func applyEnv(cfg *Config) {
	if v, ok := boolEnv(envPrefix + "ENABLED"); ok {
		cfg.General.Enabled = v
	}
	if v, ok := boolEnv(envPrefix + "FORCE_LOCAL"); ok {
		cfg.General.ForceLocal = v
	}
	if v, ok := boolEnv(envPrefix + "FORCE_REMOTE"); ok {
		cfg.General.ForceRemote = v
	}
	if v, ok := intEnv(envPrefix + "BUILD_TIMEOUT_SEC"); ok {
		cfg.Thresholds.BuildTimeoutSec = v
	}
	if v, ok := boolEnv(envPrefix + "COMPRESSION"); ok {
		cfg.Transfer.Compression = v
	}
	if v, ok := int64Env(envPrefix + "BANDWIDTH_CAP_BPS"); ok {
		cfg.Transfer.BandwidthCapBps = v
	}
	if v, ok := stringEnv(envPrefix + "STRATEGY"); ok {
		cfg.Selection.Strategy = Strategy(v)
	}
	if v, ok := stringEnv(envPrefix + "SOCKET_PATH"); ok {
		cfg.SocketPath = v
	}
	if v, ok := stringEnv(envPrefix + "KNOWN_HOSTS_PATH"); ok {
		cfg.KnownHostsPath = v
	}
	if v, ok := stringEnv(envPrefix + "STORAGE_DATA_DIR"); ok {
		cfg.StorageDataDir = v
	}
}

func stringEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok
}

func boolEnv(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

func intEnv(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func int64Env(key string) (int64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

// FlagOverride carries the subset of Config that cmd/rch's flags can set
// directly, applied last and unconditionally per non-nil field. Only the
// flags an operator realistically toggles per-invocation are represented
// here; everything else belongs in a file layer.
type FlagOverride struct {
	Enabled     *bool
	ForceLocal  *bool
	ForceRemote *bool
	SocketPath  *string
	Strategy    *Strategy
}

func (f FlagOverride) apply(cfg *Config) {
	if f.Enabled != nil {
		cfg.General.Enabled = *f.Enabled
	}
	if f.ForceLocal != nil {
		cfg.General.ForceLocal = *f.ForceLocal
	}
	if f.ForceRemote != nil {
		cfg.General.ForceRemote = *f.ForceRemote
	}
	if f.SocketPath != nil {
		cfg.SocketPath = *f.SocketPath
	}
	if f.Strategy != nil {
		cfg.Selection.Strategy = *f.Strategy
	}
}

func validate(cfg Config) error {
	if cfg.General.ForceLocal && cfg.General.ForceRemote {
		return fmt.Errorf("config: force_local and force_remote are mutually exclusive")
	}
	if cfg.Selection.Strategy != StrategyFairFastest && cfg.Selection.Strategy != StrategyFastest {
		return fmt.Errorf("config: unknown selection strategy %q", cfg.Selection.Strategy)
	}
	if cfg.SocketPath == "" {
		return fmt.Errorf("config: socket_path must not be empty")
	}
	seen := make(map[string]bool, len(cfg.Workers))
	for _, w := range cfg.Workers {
		if w.ID == "" {
			return fmt.Errorf("config: worker entry missing id")
		}
		if seen[w.ID] {
			return fmt.Errorf("config: duplicate worker id %q", w.ID)
		}
		seen[w.ID] = true
		if w.Host == "" {
			return fmt.Errorf("config: worker %q missing host", w.ID)
		}
		if w.SlotsTotal <= 0 {
			return fmt.Errorf("config: worker %q slots_total must be positive", w.ID)
		}
	}
	return nil
}

// DefaultUserConfigPath returns ~/.config/rch/config.yaml, the conventional
// user config layer location, or "" if the home directory can't be
// determined (the caller then simply skips that layer).
func DefaultUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "rch", "config.yaml")
}

// DefaultProjectOverridePath returns <projectRoot>/.rch.yaml.
func DefaultProjectOverridePath(projectRoot string) string {
	if projectRoot == "" {
		return ""
	}
	return filepath.Join(projectRoot, ".rch.yaml")
}
