package repository

import (
	"context"
	"errors"

	"github.com/tripmate/points-ledger/internal/models"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

type Users interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// LedgerTx is the set of operations available inside one atomic ledger unit.
// Everything called through it either commits together or not at all.
type LedgerTx interface {
	// FindByReference looks up a prior transaction for the same idempotence
	// key; ok=false when none exists.
	FindByReference(ctx context.Context, userID string, ref models.Reference) (txn models.PointTransaction, ok bool, err error)
	// LockBalance loads the user's balance row with a row lock, creating a
	// zeroed row first if the user never transacted.
	LockBalance(ctx context.Context, userID string) (models.Balance, error)
	SaveBalance(ctx context.Context, b models.Balance) error
	Append(ctx context.Context, txn models.PointTransaction) (models.PointTransaction, error)
}

// Ledger runs fn inside a serializable transaction. fn returning an error
// rolls everything back.
type Ledger interface {
	InTx(ctx context.Context, fn func(LedgerTx) error) error
}

type Balances interface {
	Get(ctx context.Context, userID string) (models.Balance, error)
	List(ctx context.Context) ([]models.Balance, error)
	// UpdateRanks writes current_rank = position+1 for each user id in order.
	UpdateRanks(ctx context.Context, orderedUserIDs []string) error
	// ResetSeason zeroes season_points and clears current_rank for every row,
	// returning the number of rows touched.
	ResetSeason(ctx context.Context) (int64, error)
	// CountAbove counts balances with total_points strictly greater.
	CountAbove(ctx context.Context, total int64) (int64, error)
	Top(ctx context.Context, n int) ([]models.Balance, error)
}

type Transactions interface {
	GetByID(ctx context.Context, id string) (models.PointTransaction, error)
	History(ctx context.Context, userID string, f models.HistoryFilter, limit, offset int) (models.TransactionPage, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}
