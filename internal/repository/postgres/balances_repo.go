package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tripmate/points-ledger/internal/models"
	repo "github.com/tripmate/points-ledger/internal/repository"
)

type balancesRepo struct{ pool *pgxpool.Pool }

const balanceCols = `user_id, total_points, lifetime_earned, lifetime_spent, season_points, current_rank, last_updated_at`

func (r *balancesRepo) Get(ctx context.Context, userID string) (models.Balance, error) {
	var b models.Balance
	err := r.pool.QueryRow(ctx,
		`SELECT `+balanceCols+` FROM balances WHERE user_id=$1`,
		userID,
	).Scan(&b.UserID, &b.TotalPoints, &b.LifetimeEarned, &b.LifetimeSpent, &b.SeasonPoints, &b.CurrentRank, &b.LastUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Balance{}, repo.ErrNotFound
	}
	return b, err
}

func (r *balancesRepo) List(ctx context.Context) ([]models.Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+balanceCols+` FROM balances`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBalances(rows)
}

func (r *balancesRepo) UpdateRanks(ctx context.Context, orderedUserIDs []string) error {
	if len(orderedUserIDs) == 0 {
		return nil
	}
	// generate_subscripts is 1-based, which is exactly the rank.
	_, err := r.pool.Exec(ctx,
		`UPDATE balances b
		    SET current_rank = r.rank
		   FROM (SELECT unnest($1::uuid[]) AS user_id,
		                generate_subscripts($1::uuid[], 1) AS rank) r
		  WHERE b.user_id = r.user_id`,
		orderedUserIDs,
	)
	return err
}

func (r *balancesRepo) ResetSeason(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE balances SET season_points=0, current_rank=NULL, last_updated_at=now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *balancesRepo) CountAbove(ctx context.Context, total int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM balances WHERE total_points > $1`, total,
	).Scan(&n)
	return n, err
}

func (r *balancesRepo) Top(ctx context.Context, n int) ([]models.Balance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+balanceCols+` FROM balances
		  ORDER BY total_points DESC, user_id ASC
		  LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBalances(rows)
}

func scanBalances(rows pgx.Rows) ([]models.Balance, error) {
	var out []models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.UserID, &b.TotalPoints, &b.LifetimeEarned, &b.LifetimeSpent, &b.SeasonPoints, &b.CurrentRank, &b.LastUpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
