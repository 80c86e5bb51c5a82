package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scoreline/internal/adapters/mq/dedupe"
	"github.com/okian/scoreline/internal/adapters/mq/queue"
	"github.com/okian/scoreline/internal/adapters/mq/worker"
	service "github.com/okian/scoreline/internal/app"
	"github.com/okian/scoreline/internal/domain/model"
	"github.com/okian/scoreline/pkg/logger"
)

// Run creates a contest with Config.Entries entries, drives
// judges × entries × (rounds+1) commands, plus any redeliveries, through a
// worker pool and verifies every entry afterwards. It returns ErrInvariantViolated, together with
// the stats, when verification finds an inconsistency.
func Run(ctx context.Context, svc *service.Service, config *Config) (*Stats, error) {
	cfg := config.withDefaults()
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting score simulation",
		logger.Int("judges", cfg.Judges),
		logger.Int("entries", cfg.Entries),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	// Step 1: Contest and entries
	contestID := "sim-" + uuid.NewString()
	if err := svc.CreateContest(ctx, model.Contest{ID: contestID, Name: "simulation"}); err != nil {
		return nil, fmt.Errorf("create contest: %w", err)
	}
	entryIDs := make([]string, cfg.Entries)
	for i := range entryIDs {
		entryIDs[i] = fmt.Sprintf("entry-%03d", i)
		if err := svc.CreateEntry(ctx, contestID, entryIDs[i], "Entry "+entryIDs[i]); err != nil {
			return nil, fmt.Errorf("create entry: %w", err)
		}
	}
	judgeIDs := make([]string, cfg.Judges)
	for i := range judgeIDs {
		judgeIDs[i] = fmt.Sprintf("judge-%03d", i)
	}

	// Step 2: Generate commands
	rb, err := svc.Rubric(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("load rubric: %w", err)
	}
	commands := newGenerator(cfg, contestID, rb).commands(entryIDs, judgeIDs)
	stats.Commands = len(commands)

	// Step 3: Drain them through the pool
	d := newDispatcher(svc, dedupe.NewRing(dedupe.WithMaxSize(len(commands))), log)
	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	pool := worker.NewPool(cfg.Workers, q, d, worker.WithPoolLogger(log.Named("pool")))
	pool.Start(ctx)

	for i := range commands {
		if err := q.Put(ctx, commands[i]); err != nil {
			_ = pool.Shutdown(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("enqueue command %s: %w", commands[i].ID, err)
		}
	}
	if err := q.Close(); err != nil {
		return nil, fmt.Errorf("close queue: %w", err)
	}
	pool.Wait()
	svc.Wait() // pending lock releases
	d.fill(stats)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("simulation interrupted: %w", err)
	}

	// Step 4: Verify
	violations, err := verify(ctx, svc, contestID, entryIDs)
	if err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}
	stats.Violations = violations
	stats.Duration = time.Since(stats.StartTime)

	logStats(ctx, log, stats, cfg.Verbose)

	if len(violations) > 0 {
		return stats, fmt.Errorf("%w: %d violations", ErrInvariantViolated, len(violations))
	}
	return stats, nil
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats, verbose bool) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Commands) / stats.Duration.Seconds()
	}
	log.Info(ctx, "simulation finished",
		logger.Int("commands", stats.Commands),
		logger.Any("submitted", stats.Submitted),
		logger.Any("updated", stats.Updated),
		logger.Any("deleted", stats.Deleted),
		logger.Any("rejected", stats.Rejected),
		logger.Any("busy", stats.Busy),
		logger.Any("notFound", stats.NotFound),
		logger.Any("failed", stats.Failed),
		logger.Any("duplicates", stats.Duplicates),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("commandsPerSecond", perSecond))

	for i, v := range stats.Violations {
		if !verbose && i >= 10 {
			log.Warn(ctx, "further violations omitted", logger.Int("count", len(stats.Violations)-i))
			return
		}
		log.Warn(ctx, "invariant violation", logger.String("detail", v))
	}
}
