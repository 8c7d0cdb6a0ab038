package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Noname397/football-analysis/pkg/config"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fbref-crawler",
		Short: "Hierarchical fbref crawler: league, seasons, teams, players",
		Long: `fbref-crawler walks the fbref competitions index down to one league,
its recent seasons, every team of the latest season and every player of each team.
Raw league and team pages and the final crawl report can be published to an object store.
The fixtures command ingests upcoming matches from the football-data.org API.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "config.yaml", "Path to YAML config file")
	cmd.PersistentFlags().String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewFixturesCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}

	return log
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// logAppConfig logs the effective configuration
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Competitions:%s, Origin:%s, League:%s, Seasons:%d, MaxPlayersPerTeam:%d",
		cfg.CompetitionsURL, cfg.SiteOrigin, cfg.LeagueID, cfg.NumSeasons, cfg.MaxPlayersPerTeam)
	log.Infof("Config Politeness: MinInterval:%v, Jitter:%.2f, MaxReqPerHost:%d, Robots:%t",
		cfg.MinFetchInterval, cfg.JitterFraction, cfg.MaxRequestsPerHost, cfg.RespectRobots)
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v, GlobalTimeout:%v",
		config.GetEffectiveMaxRetries(*cfg), cfg.InitialRetryDelay, cfg.MaxRetryDelay, cfg.GlobalCrawlTimeout)
	log.Infof("Config Pages: Rendered:%v, Normalized:%v, RecentWindow:%t, ConcurrentBranches:%t",
		cfg.RenderedKinds, cfg.NormalizeKinds, cfg.FetchRecentWindow, config.GetEffectiveConcurrentBranches(*cfg))
	log.Infof("Config Storage: StateDir:'%s', Publish:%t, Backend:'%s', OutputDir:'%s', Prefix:'%s'",
		cfg.StateDir, cfg.Publish.Enabled, cfg.Publish.Backend, cfg.Publish.OutputDir, cfg.Publish.Prefix)
}
