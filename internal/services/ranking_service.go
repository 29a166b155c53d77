package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/tripmate/points-ledger/internal/metrics"
	"github.com/tripmate/points-ledger/internal/models"
	repo "github.com/tripmate/points-ledger/internal/repository"
)

// RankingService assigns dense 1-based ranks over all balances. Ordering is
// total_points descending with ascending user id breaking ties, so repeated
// runs over the same totals are deterministic.
type RankingService struct {
	bal   repo.Balances
	audit repo.AuditLogs
}

func NewRankingService(b repo.Balances, a repo.AuditLogs) *RankingService {
	return &RankingService{bal: b, audit: a}
}

// RecalculateAll reorders every balance and writes ranks back. Runs off the
// request path (cron); rank values are eventually consistent with totals.
func (s *RankingService) RecalculateAll(ctx context.Context) error {
	balances, err := s.bal.List(ctx)
	if err != nil {
		return err
	}
	sort.Slice(balances, func(i, j int) bool {
		if balances[i].TotalPoints != balances[j].TotalPoints {
			return balances[i].TotalPoints > balances[j].TotalPoints
		}
		return balances[i].UserID < balances[j].UserID
	})
	ordered := make([]string, len(balances))
	for i, b := range balances {
		ordered[i] = b.UserID
	}
	if err := s.bal.UpdateRanks(ctx, ordered); err != nil {
		return err
	}
	metrics.RankRecalculations.Inc()
	s.auditLog(ctx, "rank_recalculated", map[string]any{"balances": len(ordered)})
	return nil
}

// ResetSeason zeroes season_points and clears ranks for every balance.
// Totals and lifetime counters are untouched.
func (s *RankingService) ResetSeason(ctx context.Context) error {
	n, err := s.bal.ResetSeason(ctx)
	if err != nil {
		return err
	}
	s.auditLog(ctx, "season_reset", map[string]any{"balances": n})
	return nil
}

// RankOf computes the user's rank on demand without requiring a prior
// recalculation pass.
func (s *RankingService) RankOf(ctx context.Context, userID string) (int, error) {
	b, err := s.bal.Get(ctx, userID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return 0, err
	}
	above, err := s.bal.CountAbove(ctx, b.TotalPoints)
	if err != nil {
		return 0, err
	}
	return int(above) + 1, nil
}

func (s *RankingService) Leaderboard(ctx context.Context, limit int) ([]models.Balance, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.bal.Top(ctx, limit)
}

func (s *RankingService) auditLog(ctx context.Context, action string, details map[string]any) {
	err := s.audit.Create(ctx, models.AuditLog{
		EntityType: "balance",
		Action:     action,
		Details:    details,
	})
	if err != nil {
		slog.Warn("audit log write failed", "action", action, "err", err)
	}
}
