package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tripmate/points-ledger/internal/models"
	repo "github.com/tripmate/points-ledger/internal/repository"
)

type ledgerRepo struct{ pool *pgxpool.Pool }

// InTx runs fn in one serializable transaction so the idempotence check,
// the balance update and the log append commit together or not at all.
func (r *ledgerRepo) InTx(ctx context.Context, fn func(repo.LedgerTx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	if err := fn(&ledgerTx{tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type ledgerTx struct{ tx pgx.Tx }

func (l *ledgerTx) FindByReference(ctx context.Context, userID string, ref models.Reference) (models.PointTransaction, bool, error) {
	row := l.tx.QueryRow(ctx,
		`SELECT id, user_id, type, amount, balance_after, source, reference_id, reference_type, description, created_at
		   FROM point_transactions
		  WHERE user_id=$1 AND reference_id=$2 AND reference_type=$3`,
		userID, ref.ID, ref.Type,
	)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PointTransaction{}, false, nil
	}
	if err != nil {
		return models.PointTransaction{}, false, err
	}
	return txn, true, nil
}

func (l *ledgerTx) LockBalance(ctx context.Context, userID string) (models.Balance, error) {
	_, err := l.tx.Exec(ctx,
		`INSERT INTO balances(user_id) VALUES($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return models.Balance{}, err
	}
	var b models.Balance
	err = l.tx.QueryRow(ctx,
		`SELECT user_id, total_points, lifetime_earned, lifetime_spent, season_points, current_rank, last_updated_at
		   FROM balances
		  WHERE user_id=$1
		    FOR UPDATE`,
		userID,
	).Scan(&b.UserID, &b.TotalPoints, &b.LifetimeEarned, &b.LifetimeSpent, &b.SeasonPoints, &b.CurrentRank, &b.LastUpdatedAt)
	return b, err
}

func (l *ledgerTx) SaveBalance(ctx context.Context, b models.Balance) error {
	_, err := l.tx.Exec(ctx,
		`UPDATE balances
		    SET total_points=$2, lifetime_earned=$3, lifetime_spent=$4, season_points=$5,
		        last_updated_at=now()
		  WHERE user_id=$1`,
		b.UserID, b.TotalPoints, b.LifetimeEarned, b.LifetimeSpent, b.SeasonPoints,
	)
	return err
}

func (l *ledgerTx) Append(ctx context.Context, txn models.PointTransaction) (models.PointTransaction, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	var refID *int64
	var refType *string
	if txn.Reference != nil {
		refID, refType = &txn.Reference.ID, &txn.Reference.Type
	}
	err := l.tx.QueryRow(ctx,
		`INSERT INTO point_transactions
		        (id, user_id, type, amount, balance_after, source, reference_id, reference_type, description)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING created_at`,
		txn.ID, txn.UserID, txn.Type, txn.Amount, txn.BalanceAfter, txn.Source, refID, refType, txn.Description,
	).Scan(&txn.CreatedAt)
	return txn, err
}

// scanTransaction reads one point_transactions row in column order shared by
// every query in this package.
func scanTransaction(row pgx.Row) (models.PointTransaction, error) {
	var txn models.PointTransaction
	var refID *int64
	var refType *string
	err := row.Scan(&txn.ID, &txn.UserID, &txn.Type, &txn.Amount, &txn.BalanceAfter,
		&txn.Source, &refID, &refType, &txn.Description, &txn.CreatedAt)
	if err != nil {
		return models.PointTransaction{}, err
	}
	if refID != nil && refType != nil {
		txn.Reference = &models.Reference{ID: *refID, Type: *refType}
	}
	return txn, nil
}
