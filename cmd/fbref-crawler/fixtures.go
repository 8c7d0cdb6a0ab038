package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Noname397/football-analysis/pkg/fetch"
	"github.com/Noname397/football-analysis/pkg/fixtures"
	"github.com/Noname397/football-analysis/pkg/publish"
)

// fixturesTokenEnv holds the football-data.org token when fixtures.api_token is empty
const fixturesTokenEnv = "FOOTBALL_API_KEY"

var errMissingToken = errors.New("football-data.org token missing: set fixtures.api_token or " + fixturesTokenEnv)

type fixturesOptions struct {
	configFile string
	output     string // raw JSON file; empty prints it when publishing is disabled
	days       int
}

// NewFixturesCmd creates the fixtures command
func NewFixturesCmd() *cobra.Command {
	var opts fixturesOptions

	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Fetch upcoming fixtures from football-data.org and publish the raw JSON",
		Example: `  FOOTBALL_API_KEY=... fbref-crawler fixtures --config config.yaml
  fbref-crawler fixtures --config config.yaml --days 14 --output fixtures.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.configFile, _ = cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("loglevel")
			log := setupLogger(logLevel)

			ctx, stop := withSignalCancel(cmd.Context(), log)
			defer stop()

			if _, err := runFixtures(ctx, opts, cmd.OutOrStdout(), log); err != nil {
				return fmt.Errorf("fixtures ingest failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Also write the raw JSON response to this file")
	cmd.Flags().IntVar(&opts.days, "days", 0, "Override fixtures.window_days")

	return cmd
}

// runFixtures fetches the fixtures window and publishes it under the fixtures prefix.
// With publishing disabled and no --output, the raw JSON goes to stdout.
func runFixtures(ctx context.Context, opts fixturesOptions, stdout io.Writer, logger *logrus.Logger) (*fixtures.Result, error) {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		logger.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	if opts.days > 0 {
		cfg.Fixtures.WindowDays = opts.days
	}
	logger.Infof("Config Fixtures: API:%s, Competition:%s, WindowDays:%d, Prefix:'%s', Publish:%t",
		cfg.Fixtures.APIURL, cfg.Fixtures.Competition, cfg.Fixtures.WindowDays, cfg.Fixtures.Prefix, cfg.Publish.Enabled)

	token := cfg.Fixtures.APIToken
	if token == "" {
		token = os.Getenv(fixturesTokenEnv)
	}
	if token == "" {
		return nil, errMissingToken
	}

	log := logrus.NewEntry(logger)

	// Plain transport for the JSON API
	httpSettings := cfg.HTTPClientSettings
	httpSettings.CloudflareBypass = new(bool)
	client := fixtures.NewClient(fetch.NewClient(httpSettings, log), cfg, token, log)

	var publisher *publish.Publisher
	if cfg.Publish.Enabled {
		st, err := openStores(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		defer st.close()
		publisher = publish.New(st.objects, cfg.Fixtures.Prefix, log)
	}

	res, err := fixtures.NewIngester(client, publisher, cfg.Fixtures, log).Run(ctx)
	if err != nil {
		return res, err
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, res.Raw, 0644); err != nil {
			return res, fmt.Errorf("write fixtures file: %w", err)
		}
	} else if publisher == nil {
		if _, err := stdout.Write(res.Raw); err != nil {
			return res, err
		}
	}
	if res.ObjectPath != "" {
		fmt.Fprintf(stdout, "Uploaded: %s (%d fixtures, %s)\n", res.ObjectPath, len(res.Matches), res.Window)
	}
	return res, nil
}
