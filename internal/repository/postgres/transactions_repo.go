package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tripmate/points-ledger/internal/models"
	repo "github.com/tripmate/points-ledger/internal/repository"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

const txnCols = `id, user_id, type, amount, balance_after, source, reference_id, reference_type, description, created_at`

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.PointTransaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+txnCols+` FROM point_transactions WHERE id=$1`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PointTransaction{}, repo.ErrNotFound
	}
	return txn, err
}

func (r *transactionsRepo) History(ctx context.Context, userID string, f models.HistoryFilter, limit, offset int) (models.TransactionPage, error) {
	where := []string{"user_id=$1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != nil {
		add("type=$%d", *f.Type)
	}
	if f.Source != nil {
		add("source=$%d", *f.Source)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	cond := strings.Join(where, " AND ")

	page := models.TransactionPage{Limit: limit, Offset: offset}
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM point_transactions WHERE `+cond, args...,
	).Scan(&page.Total); err != nil {
		return models.TransactionPage{}, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM point_transactions WHERE %s
		  ORDER BY created_at DESC
		  LIMIT $%d OFFSET $%d`, txnCols, cond, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return models.TransactionPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return models.TransactionPage{}, err
		}
		page.Items = append(page.Items, txn)
	}
	return page, rows.Err()
}
