package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tripmate/points-ledger/internal/config"
	"github.com/tripmate/points-ledger/internal/services"
	"github.com/tripmate/points-ledger/internal/worker"
)

// Schedule registers the periodic rank recalculation and (optionally) the
// season reset. Jobs run on the worker pool so a slow pass never blocks the
// cron goroutine.
func Schedule(cfg config.Config, wp *worker.Pool, rank *services.RankingService) (*cron.Cron, error) {
	c := cron.New()

	submit := func(name string, fn func(context.Context) error) func() {
		return func() {
			wp.Submit(func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				if err := fn(ctx); err != nil {
					slog.Error("job failed", "job", name, "err", err)
					return
				}
				slog.Info("job done", "job", name)
			})
		}
	}

	if cfg.RankRecalcSpec != "" {
		if _, err := c.AddFunc(cfg.RankRecalcSpec, submit("rank_recalculate", rank.RecalculateAll)); err != nil {
			return nil, err
		}
	}
	if cfg.SeasonResetSpec != "" {
		if _, err := c.AddFunc(cfg.SeasonResetSpec, submit("season_reset", rank.ResetSeason)); err != nil {
			return nil, err
		}
	}

	c.Start()
	return c, nil
}
