package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var errInvalidConfig = errors.New("configuration invalid")

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			if doValidate(configFile, cmd.OutOrStdout(), cmd.ErrOrStderr()) != 0 {
				return errInvalidConfig
			}
			return nil
		},
	}
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: league %s under %s, %d season(s)\n", cfg.LeagueID, cfg.CompetitionsURL, cfg.NumSeasons)
	if cfg.Publish.Enabled {
		fmt.Fprintf(stdout, "OK: publishing to %s backend at %s (prefix %s)\n", cfg.Publish.Backend, cfg.Publish.OutputDir, cfg.Publish.Prefix)
	}
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}
