package main

import (
	"os"
	"path/filepath"

	"github.com/modelfoxdotdev/sunfish/internal/config"
	"github.com/modelfoxdotdev/sunfish/internal/state"
)

// defaultConfigPath returns sunfish.yaml in the working directory.
func defaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return config.DefaultPath
	}
	return filepath.Join(cwd, config.DefaultPath)
}

// stateFilePath returns the configured state file, or one under the user
// cache dir keyed by the front door address.
func stateFilePath(cfg *config.Config) (string, error) {
	if cfg.StateFile != "" {
		return cfg.StateFile, nil
	}
	return state.DefaultPath(cfg.Addr())
}
