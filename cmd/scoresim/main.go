// Command scoresim drives the score engine with many concurrent judges and
// verifies that every entry's totals still match its per-judge breakdowns.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/common/expfmt"

	"github.com/okian/scoreline/internal/adapters/repository"
	service "github.com/okian/scoreline/internal/app"
	"github.com/okian/scoreline/internal/config"
	"github.com/okian/scoreline/internal/simulate"
	"github.com/okian/scoreline/pkg/logger"
	"github.com/okian/scoreline/pkg/metrics"
)

// Exit codes.
const (
	exitSetup     = 1
	exitViolation = 2
	exitFailure   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		judges       = flag.Int("judges", 0, "Number of judges (default from config)")
		entries      = flag.Int("entries", 0, "Number of entries (default from config)")
		rounds       = flag.Int("rounds", -1, "Revision rounds after the initial submissions (default from config)")
		workers      = flag.Int("workers", 0, "Concurrent workers (default from config)")
		driver       = flag.String("driver", "", "Store driver: memory, sqlite or postgres (default from config)")
		dsn          = flag.String("dsn", "", "Store data source name (default from config)")
		seed         = flag.Uint64("seed", 0, "Generator seed (0 picks one)")
		deleteEvery  = flag.Int("delete-every", 0, "Turn every n-th revision into a delete")
		invalidEvery = flag.Int("invalid-every", 0, "Make every n-th command out of range")
		redeliver    = flag.Int("redeliver-every", 0, "Replay every n-th command with its original id")
		jsonLogs     = flag.Bool("json", false, "Emit JSON logs")
		dumpMetrics  = flag.Bool("metrics", false, "Print Prometheus metrics after the run")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(logger.WithJSON(*jsonLogs)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return exitSetup
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env), then flags.
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return exitSetup
	}
	override(&cfg.StoreDriver, *driver)
	override(&cfg.StoreDSN, *dsn)
	if err := cfg.Validate(); err != nil {
		os.Stderr.WriteString("invalid config: " + err.Error() + "\n")
		return exitSetup
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	if err := logger.SetLevelString(level); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", level), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(ctx, repository.Driver(cfg.StoreDriver), cfg.StoreDSN,
		repository.WithConflictRetries(cfg.StoreConflictRetries),
		repository.WithLogger(log.Named("store")),
	)
	if err != nil {
		log.Error(ctx, "failed to open store", logger.String("driver", cfg.StoreDriver), logger.Error(err))
		return exitSetup
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "failed to close store", logger.Error(err))
		}
	}()

	svc := service.New(store,
		service.WithLogger(log.Named("service")),
		service.WithLockPolicy(cfg.LockPolicy()),
		service.WithDefaultRubric(cfg.Rubric()),
	)

	simCfg := &simulate.Config{
		Judges:         pick(*judges, cfg.SimJudges),
		Entries:        pick(*entries, cfg.SimEntries),
		Rounds:         cfg.SimRounds,
		Workers:        pick(*workers, cfg.SimWorkers),
		QueueSize:      cfg.SimQueueSize,
		DeleteEvery:    *deleteEvery,
		InvalidEvery:   *invalidEvery,
		RedeliverEvery: *redeliver,
		Seed:           *seed,
		Verbose:        *verbose,
	}
	if *rounds >= 0 {
		simCfg.Rounds = *rounds
	}

	_, err = simulate.Run(ctx, svc, simCfg)

	if *dumpMetrics {
		if mErr := writeMetrics(os.Stdout); mErr != nil {
			log.Warn(ctx, "failed to write metrics", logger.Error(mErr))
		}
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, simulate.ErrInvariantViolated):
		log.Error(ctx, "simulation found inconsistent entries", logger.Error(err))
		return exitViolation
	default:
		log.Error(ctx, "simulation failed", logger.Error(err))
		return exitFailure
	}
}

// writeMetrics prints the metrics registry in the Prometheus text format.
func writeMetrics(w io.Writer) error {
	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func pick(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}
