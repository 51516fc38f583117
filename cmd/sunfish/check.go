package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/modelfoxdotdev/sunfish/internal/config"
	"github.com/modelfoxdotdev/sunfish/internal/port"
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a config file",
	Long:  "Parse and validate a sunfish config, then print it with defaults filled in. Defaults to ./sunfish.yaml.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	target := configPath
	if len(args) > 0 {
		target = args[0]
	}

	cfg, err := config.Load(target)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("FAIL  %s: %w", target, err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	fmt.Printf("OK    %s\n\n%s", target, out)

	if !port.Available(cfg.Host, cfg.Port) {
		fmt.Printf("\nwarning: %s is already in use\n", cfg.Addr())
	}
	if cfg.ChildPort != 0 && !port.Available(cfg.ChildHost, cfg.ChildPort) {
		fmt.Printf("warning: child address %s is already in use\n", cfg.ChildAddr())
	}
	return nil
}
