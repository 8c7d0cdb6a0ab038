package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Noname397/football-analysis/pkg/config"
	"github.com/Noname397/football-analysis/pkg/fetch"
	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/orchestrate"
	"github.com/Noname397/football-analysis/pkg/publish"
	"github.com/Noname397/football-analysis/pkg/storage"
)

const gcInterval = 10 * time.Minute

type crawlOptions struct {
	configFile string
	output     string // report file; empty writes to stdout
	visitedLog string
}

// NewCrawlCmd creates the crawl command
func NewCrawlCmd() *cobra.Command {
	var opts crawlOptions

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and print the YAML report",
		Example: `  fbref-crawler crawl --config config.yaml
  fbref-crawler crawl --config config.yaml --output report.yaml --loglevel debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.configFile, _ = cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("loglevel")
			log := setupLogger(logLevel)

			ctx, stop := withSignalCancel(cmd.Context(), log)
			defer stop()

			_, err := runCrawl(ctx, opts, cmd.OutOrStdout(), log)
			switch {
			case err == nil:
				log.Info("Crawl completed successfully.")
				return nil
			case errors.Is(err, context.Canceled):
				log.Warn("Crawl cancelled gracefully.")
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				return fmt.Errorf("crawl timed out (global timeout): %w", err)
			default:
				return fmt.Errorf("crawl finished with error: %w", err)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the YAML report to this file instead of stdout")
	cmd.Flags().StringVar(&opts.visitedLog, "write-visited-log", "", "Write the claimed page keys to this file (requires state_dir)")

	return cmd
}

// withSignalCancel cancels the returned context on SIGINT/SIGTERM. A second
// signal, or a stalled shutdown, forces exit.
func withSignalCancel(parent context.Context, log *logrus.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-ctx.Done():
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// stores holds the ledger and object store of one run
type stores struct {
	ledger  storage.PageLedger
	state   *storage.BadgerStore // nil when the ledger is in memory
	objects storage.ObjectStore  // nil when publishing is disabled
	closers []storage.StoreAdmin
	stopGC  context.CancelFunc
	log     *logrus.Entry
}

// openStores opens the visit ledger and, when publishing is enabled, the
// object store. A badger object store in the state dir shares the ledger's DB.
func openStores(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*stores, error) {
	gcCtx, stopGC := context.WithCancel(ctx)
	s := &stores{stopGC: stopGC, log: log}
	if cfg.StateDir != "" {
		db, err := storage.NewBadgerStore(cfg.StateDir, log)
		if err != nil {
			stopGC()
			return nil, fmt.Errorf("open state DB: %w", err)
		}
		s.state = db
		s.ledger = db
		s.closers = append(s.closers, db)
		go db.RunGC(gcCtx, gcInterval)
	} else {
		s.ledger = storage.NewMemoryStore()
	}

	if !cfg.Publish.Enabled {
		return s, nil
	}
	switch cfg.Publish.Backend {
	case config.BackendBadger:
		if s.state != nil && filepath.Clean(cfg.Publish.OutputDir) == filepath.Clean(cfg.StateDir) {
			s.objects = s.state
			break
		}
		db, err := storage.NewBadgerStore(cfg.Publish.OutputDir, log)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open object DB: %w", err)
		}
		s.objects = db
		s.closers = append(s.closers, db)
		go db.RunGC(gcCtx, gcInterval)
	default:
		fsStore, err := storage.NewFilesystemStore(cfg.Publish.OutputDir, log)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open object directory: %w", err)
		}
		s.objects = fsStore
	}
	return s, nil
}

func (s *stores) close() {
	s.stopGC()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Errorf("Error closing store: %v", err)
		}
	}
}

// runCrawl runs one crawl from the config file, writes the YAML report and
// publishes it. The report is returned even when the run fails.
func runCrawl(ctx context.Context, opts crawlOptions, stdout io.Writer, logger *logrus.Logger) (*models.CrawlReport, error) {
	logger.Infof("Loading configuration from %s", opts.configFile)
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
	logAppConfig(cfg, logger)

	log := logrus.NewEntry(logger)

	// --- Fetching ---
	httpClient := fetch.NewClient(cfg.HTTPClientSettings, log)
	router := &fetch.ModeRouter{Direct: fetch.NewDirectFetcher(httpClient, cfg, log)}
	if len(cfg.RenderedKinds) > 0 {
		browser := fetch.NewBrowserFetcher(cfg.Browser, cfg.UserAgent, log)
		defer browser.Close()
		router.Rendered = browser
	}

	// --- Storage ---
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer st.close()

	var publisher *publish.Publisher
	if st.objects != nil {
		publisher = publish.New(st.objects, cfg.Publish.Prefix, log)
	}

	orch := orchestrate.New(cfg, orchestrate.Deps{
		Fetcher:   router,
		Ledger:    st.ledger,
		Publisher: publisher,
	}, log)
	report, runErr := orch.Run(ctx)

	if err := writeReport(report, opts.output, stdout); err != nil {
		logger.Errorf("Failed to write report: %v", err)
	}

	if publisher != nil {
		// The crawl context may already be cancelled here
		pubCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		objectPath, err := publisher.PublishReport(pubCtx, report)
		cancel()
		if err != nil {
			logger.Errorf("Failed to publish report: %v", err)
		} else {
			logger.Infof("Report published to %s", objectPath)
		}
	}

	if opts.visitedLog != "" {
		if st.state == nil {
			logger.Warn("Skipping visited log: state_dir is not set, the ledger was in memory.")
		} else if err := st.state.WriteVisitedLog(opts.visitedLog); err != nil {
			logger.Errorf("Error writing visited log: %v", err)
		}
	}

	return report, runErr
}

// writeReport writes the YAML report to path, or to stdout when path is empty
func writeReport(report *models.CrawlReport, path string, stdout io.Writer) error {
	if report == nil {
		return nil
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}
