package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tripmate/points-ledger/internal/metrics"
	"github.com/tripmate/points-ledger/internal/models"
	repo "github.com/tripmate/points-ledger/internal/repository"
)

// LedgerService owns every balance mutation. Each operation runs as one
// serializable unit: idempotence check, balance update and log append all
// commit together, so a failure leaves nothing behind.
type LedgerService struct {
	ledger repo.Ledger
	bal    repo.Balances
	trx    repo.Transactions
	audit  repo.AuditLogs
}

func NewLedgerService(l repo.Ledger, b repo.Balances, t repo.Transactions, a repo.AuditLogs) *LedgerService {
	return &LedgerService{ledger: l, bal: b, trx: t, audit: a}
}

// Earn credits amount to the user. When ref is set and a transaction with
// the same (user, reference) pair already exists the prior transaction is
// returned and nothing is credited again.
func (s *LedgerService) Earn(ctx context.Context, userID string, amount int64, source models.PointSource, ref *models.Reference, description string) (models.PointTransaction, error) {
	if amount <= 0 {
		return models.PointTransaction{}, models.ErrInvalidAmount
	}
	var out models.PointTransaction
	err := s.ledger.InTx(ctx, func(tx repo.LedgerTx) error {
		if ref != nil {
			prior, ok, err := tx.FindByReference(ctx, userID, *ref)
			if err != nil {
				return err
			}
			if ok {
				out = prior
				return nil
			}
		}
		b, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		b.TotalPoints += amount
		b.LifetimeEarned += amount
		b.SeasonPoints += amount
		if err := tx.SaveBalance(ctx, b); err != nil {
			return err
		}
		out, err = tx.Append(ctx, models.PointTransaction{
			ID:           uuid.NewString(),
			UserID:       userID,
			Type:         models.TxnEarn,
			Amount:       amount,
			BalanceAfter: b.TotalPoints,
			Source:       source,
			Reference:    ref,
			Description:  description,
		})
		return err
	})
	s.count(models.TxnEarn, err)
	return out, err
}

// Spend debits amount from the user, rejecting the operation when the
// balance cannot cover it. Same idempotent-replay contract as Earn.
func (s *LedgerService) Spend(ctx context.Context, userID string, amount int64, source models.PointSource, ref *models.Reference, description string) (models.PointTransaction, error) {
	if amount <= 0 {
		return models.PointTransaction{}, models.ErrInvalidAmount
	}
	var out models.PointTransaction
	err := s.ledger.InTx(ctx, func(tx repo.LedgerTx) error {
		if ref != nil {
			prior, ok, err := tx.FindByReference(ctx, userID, *ref)
			if err != nil {
				return err
			}
			if ok {
				out = prior
				return nil
			}
		}
		b, err := tx.LockBalance(ctx, userID)
		if err != nil {
			return err
		}
		if b.TotalPoints < amount {
			return models.ErrInsufficientBalance
		}
		b.TotalPoints -= amount
		b.LifetimeSpent += amount
		if err := tx.SaveBalance(ctx, b); err != nil {
			return err
		}
		out, err = tx.Append(ctx, models.PointTransaction{
			ID:           uuid.NewString(),
			UserID:       userID,
			Type:         models.TxnSpend,
			Amount:       amount,
			BalanceAfter: b.TotalPoints,
			Source:       source,
			Reference:    ref,
			Description:  description,
		})
		return err
	})
	s.count(models.TxnSpend, err)
	return out, err
}

// Transfer moves amount between two users as one all-or-nothing unit,
// logging a TRANSFER_OUT on the sender and a TRANSFER_IN on the receiver.
// Transfers move total_points only; lifetime and season counters track
// activity against the platform, not peer movement.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID string, amount int64, description string) (models.PointTransaction, models.PointTransaction, error) {
	if amount <= 0 {
		return models.PointTransaction{}, models.PointTransaction{}, models.ErrInvalidAmount
	}
	if fromID == toID {
		return models.PointTransaction{}, models.PointTransaction{}, models.ErrSelfTransfer
	}
	var outFrom, outTo models.PointTransaction
	err := s.ledger.InTx(ctx, func(tx repo.LedgerTx) error {
		// Lock in ascending user-id order so two opposing transfers
		// cannot deadlock.
		first, second := fromID, toID
		if second < first {
			first, second = second, first
		}
		locked := map[string]models.Balance{}
		for _, id := range []string{first, second} {
			b, err := tx.LockBalance(ctx, id)
			if err != nil {
				return err
			}
			locked[id] = b
		}
		from, to := locked[fromID], locked[toID]
		if from.TotalPoints < amount {
			return models.ErrInsufficientBalance
		}
		from.TotalPoints -= amount
		to.TotalPoints += amount
		if err := tx.SaveBalance(ctx, from); err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, to); err != nil {
			return err
		}
		var err error
		outFrom, err = tx.Append(ctx, models.PointTransaction{
			ID:           uuid.NewString(),
			UserID:       fromID,
			Type:         models.TxnTransferOut,
			Amount:       amount,
			BalanceAfter: from.TotalPoints,
			Source:       models.SourceTransfer,
			Description:  description,
		})
		if err != nil {
			return err
		}
		outTo, err = tx.Append(ctx, models.PointTransaction{
			ID:           uuid.NewString(),
			UserID:       toID,
			Type:         models.TxnTransferIn,
			Amount:       amount,
			BalanceAfter: to.TotalPoints,
			Source:       models.SourceTransfer,
			Description:  description,
		})
		return err
	})
	s.count(models.TxnTransferOut, err)
	return outFrom, outTo, err
}

// Grant credits points on behalf of an administrator and records who did it
// in the audit log.
func (s *LedgerService) Grant(ctx context.Context, adminID, userID string, amount int64, description string) (models.PointTransaction, error) {
	txn, err := s.Earn(ctx, userID, amount, models.SourceAdminGrant, nil, description)
	if err != nil {
		return models.PointTransaction{}, err
	}
	auditErr := s.audit.Create(ctx, models.AuditLog{
		EntityType: "transaction",
		EntityID:   &txn.ID,
		Action:     "admin_grant",
		Details:    map[string]any{"admin_id": adminID, "user_id": userID, "amount": amount},
	})
	if auditErr != nil {
		slog.Warn("audit log write failed", "action", "admin_grant", "err", auditErr)
	}
	return txn, nil
}

// GetBalance returns a zero-valued view for users that never transacted.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (models.Balance, error) {
	b, err := s.bal.Get(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.ZeroBalance(userID), nil
	}
	return b, err
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *LedgerService) History(ctx context.Context, userID string, f models.HistoryFilter, limit, offset int) (models.TransactionPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.trx.History(ctx, userID, f, limit, offset)
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (models.PointTransaction, error) {
	return s.trx.GetByID(ctx, id)
}

func (s *LedgerService) count(t models.TransactionType, err error) {
	if err != nil {
		metrics.TransactionsFailed.Inc()
		return
	}
	metrics.TransactionsTotal.WithLabelValues(string(t)).Inc()
}
