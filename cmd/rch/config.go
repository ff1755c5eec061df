package main

import (
	"os"

	"github.com/cuemby/rch/pkg/config"
	"github.com/spf13/cobra"
)

// loadConfig resolves the full precedence chain (spec.md §6.5) for any
// subcommand: built-in defaults, the user config file, the project
// override file, the process environment, and finally whatever persistent
// flags the invocation actually set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	projectRoot, err := os.Getwd()
	if err != nil {
		projectRoot = "."
	}

	projectOverride, _ := cmd.Flags().GetString("config")
	if projectOverride == "" {
		projectOverride = config.DefaultProjectOverridePath(projectRoot)
	}

	src := config.Sources{
		UserConfigPath:      config.DefaultUserConfigPath(),
		ProjectOverridePath: projectOverride,
		DotEnvPath:          "",
		ProfilePath:         "",
	}

	var override config.FlagOverride
	if socket, _ := cmd.Flags().GetString("socket"); socket != "" {
		override.SocketPath = &socket
	}

	return config.Load(src, &override)
}
