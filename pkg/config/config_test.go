package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load(Sources{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_UserConfigLayerApplies(t *testing.T) {
	dir := t.TempDir()
	userPath := writeFile(t, dir, "user.yaml", `
enabled: true
strategy: fastest
socket_path: /var/run/rch/rch.sock
`)

	cfg, err := Load(Sources{UserConfigPath: userPath}, nil)
	require.NoError(t, err)
	assert.True(t, cfg.General.Enabled)
	assert.Equal(t, StrategyFastest, cfg.Selection.Strategy)
	assert.Equal(t, "/var/run/rch/rch.sock", cfg.SocketPath)
	// untouched fields keep their defaults
	assert.Equal(t, DefaultConfig().Thresholds, cfg.Thresholds)
}

func TestLoad_ProjectOverrideWinsOverUserConfig(t *testing.T) {
	dir := t.TempDir()
	userPath := writeFile(t, dir, "user.yaml", `socket_path: /tmp/user.sock`)
	projectPath := writeFile(t, dir, "project.yaml", `socket_path: /tmp/project.sock`)

	cfg, err := Load(Sources{UserConfigPath: userPath, ProjectOverridePath: projectPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/project.sock", cfg.SocketPath)
}

func TestLoad_ProfileWinsOverProjectOverride(t *testing.T) {
	dir := t.TempDir()
	projectPath := writeFile(t, dir, "project.yaml", `socket_path: /tmp/project.sock`)
	profilePath := writeFile(t, dir, "profile.yaml", `socket_path: /tmp/profile.sock`)

	cfg, err := Load(Sources{ProjectOverridePath: projectPath, ProfilePath: profilePath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/profile.sock", cfg.SocketPath)
}

func TestLoad_EnvWinsOverFiles(t *testing.T) {
	dir := t.TempDir()
	profilePath := writeFile(t, dir, "profile.yaml", `socket_path: /tmp/profile.sock`)

	t.Setenv("RCH_SOCKET_PATH", "/tmp/env.sock")
	cfg, err := Load(Sources{ProfilePath: profilePath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.sock", cfg.SocketPath)
}

func TestLoad_FlagOverrideWinsOverEnv(t *testing.T) {
	t.Setenv("RCH_SOCKET_PATH", "/tmp/env.sock")
	flagPath := "/tmp/flag.sock"
	cfg, err := Load(Sources{}, &FlagOverride{SocketPath: &flagPath})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/flag.sock", cfg.SocketPath)
}

func TestLoad_DotEnvDoesNotOverrideExistingEnv(t *testing.T) {
	dir := t.TempDir()
	dotEnvPath := writeFile(t, dir, ".env", "RCH_SOCKET_PATH=/tmp/dotenv.sock\n")

	t.Setenv("RCH_SOCKET_PATH", "/tmp/shell.sock")
	cfg, err := Load(Sources{DotEnvPath: dotEnvPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/shell.sock", cfg.SocketPath)
}

func TestLoad_DotEnvAppliesWhenUnset(t *testing.T) {
	dir := t.TempDir()
	dotEnvPath := writeFile(t, dir, ".env", "RCH_SOCKET_PATH=/tmp/dotenv.sock\n")

	cfg, err := Load(Sources{DotEnvPath: dotEnvPath}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dotenv.sock", cfg.SocketPath)
}

func TestLoad_MissingOptionalFileIsIgnored(t *testing.T) {
	cfg, err := Load(Sources{UserConfigPath: "/nonexistent/path/user.yaml"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Thresholds, cfg.Thresholds)
}

func TestLoad_InvalidYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "enabled: [this is not a bool\n")
	_, err := Load(Sources{UserConfigPath: path}, nil)
	require.Error(t, err)
}

func TestLoad_RejectsConflictingForceFlags(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "force_local: true\nforce_remote: true\n")
	_, err := Load(Sources{UserConfigPath: path}, nil)
	require.Error(t, err)
}

func TestLoad_RejectsUnknownStrategy(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "strategy: quickest\n")
	_, err := Load(Sources{UserConfigPath: path}, nil)
	require.Error(t, err)
}

func TestLoad_RejectsDuplicateWorkerIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "workers.yaml", `
workers:
  - id: w1
    host: 10.0.0.1
    slots_total: 4
  - id: w1
    host: 10.0.0.2
    slots_total: 4
`)
	_, err := Load(Sources{UserConfigPath: path}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate worker id")
}

func TestLoad_WorkerListMergeByID(t *testing.T) {
	dir := t.TempDir()
	userPath := writeFile(t, dir, "user.yaml", `
workers:
  - id: w1
    host: 10.0.0.1
    slots_total: 4
  - id: w2
    host: 10.0.0.2
    slots_total: 2
`)
	projectPath := writeFile(t, dir, "project.yaml", `
workers:
  - id: w1
    host: 10.0.0.1
    slots_total: 8
`)
	cfg, err := Load(Sources{UserConfigPath: userPath, ProjectOverridePath: projectPath}, nil)
	require.NoError(t, err)
	require.Len(t, cfg.Workers, 2)
	for _, w := range cfg.Workers {
		if w.ID == "w1" {
			assert.Equal(t, 8, w.SlotsTotal)
		}
	}
}

func TestWorkerConfig_ToWorker_DefaultsEnabledTrue(t *testing.T) {
	w := WorkerConfig{ID: "w1", Host: "10.0.0.1", SlotsTotal: 4, Capabilities: []string{"rust", "c-cxx"}}
	worker := w.ToWorker()
	assert.True(t, worker.Enabled)
	assert.True(t, worker.Capabilities["rust"])
	assert.True(t, worker.Capabilities["c-cxx"])
}

func TestWorkerConfig_ToWorker_RespectsExplicitDisabled(t *testing.T) {
	disabled := false
	w := WorkerConfig{ID: "w1", Host: "10.0.0.1", SlotsTotal: 4, Enabled: &disabled}
	assert.False(t, w.ToWorker().Enabled)
}

func TestDefaultUserConfigPath_NotEmpty(t *testing.T) {
	assert.NotEmpty(t, DefaultUserConfigPath())
}

func TestDefaultProjectOverridePath_EmptyRootYieldsEmptyPath(t *testing.T) {
	assert.Empty(t, DefaultProjectOverridePath(""))
	assert.Equal(t, filepath.Join("/proj", ".rch.yaml"), DefaultProjectOverridePath("/proj"))
}
