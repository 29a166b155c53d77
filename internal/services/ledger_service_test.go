package services

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tripmate/points-ledger/internal/models"
	repo "github.com/tripmate/points-ledger/internal/repository"
)

// memStore backs all repository interfaces for service tests. InTx snapshots
// state and restores it when fn fails, mirroring a rollback.
type memStore struct {
	balances map[string]models.Balance
	txns     []models.PointTransaction
	audits   []models.AuditLog
	seq      int
}

func newMemStore() *memStore {
	return &memStore{balances: map[string]models.Balance{}}
}

func (m *memStore) InTx(_ context.Context, fn func(repo.LedgerTx) error) error {
	snapBal := make(map[string]models.Balance, len(m.balances))
	for k, v := range m.balances {
		snapBal[k] = v
	}
	snapTxns := append([]models.PointTransaction(nil), m.txns...)
	if err := fn(m); err != nil {
		m.balances = snapBal
		m.txns = snapTxns
		return err
	}
	return nil
}

func (m *memStore) FindByReference(_ context.Context, userID string, ref models.Reference) (models.PointTransaction, bool, error) {
	for _, t := range m.txns {
		if t.UserID == userID && t.Reference != nil && *t.Reference == ref {
			return t, true, nil
		}
	}
	return models.PointTransaction{}, false, nil
}

func (m *memStore) LockBalance(_ context.Context, userID string) (models.Balance, error) {
	if b, ok := m.balances[userID]; ok {
		return b, nil
	}
	b := models.ZeroBalance(userID)
	m.balances[userID] = b
	return b, nil
}

func (m *memStore) SaveBalance(_ context.Context, b models.Balance) error {
	b.LastUpdatedAt = time.Now()
	m.balances[b.UserID] = b
	return nil
}

func (m *memStore) Append(_ context.Context, txn models.PointTransaction) (models.PointTransaction, error) {
	m.seq++
	txn.CreatedAt = time.Unix(int64(m.seq), 0)
	m.txns = append(m.txns, txn)
	return txn, nil
}

// repo.Balances

func (m *memStore) Get(_ context.Context, userID string) (models.Balance, error) {
	if b, ok := m.balances[userID]; ok {
		return b, nil
	}
	return models.Balance{}, repo.ErrNotFound
}

func (m *memStore) List(_ context.Context) ([]models.Balance, error) {
	var out []models.Balance
	for _, b := range m.balances {
		out = append(out, b)
	}
	return out, nil
}

func (m *memStore) UpdateRanks(_ context.Context, ordered []string) error {
	for i, id := range ordered {
		b := m.balances[id]
		rank := i + 1
		b.CurrentRank = &rank
		m.balances[id] = b
	}
	return nil
}

func (m *memStore) ResetSeason(_ context.Context) (int64, error) {
	for id, b := range m.balances {
		b.SeasonPoints = 0
		b.CurrentRank = nil
		m.balances[id] = b
	}
	return int64(len(m.balances)), nil
}

func (m *memStore) CountAbove(_ context.Context, total int64) (int64, error) {
	var n int64
	for _, b := range m.balances {
		if b.TotalPoints > total {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Top(_ context.Context, n int) ([]models.Balance, error) {
	out, _ := m.List(context.Background())
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// repo.Transactions

func (m *memStore) GetByID(_ context.Context, id string) (models.PointTransaction, error) {
	for _, t := range m.txns {
		if t.ID == id {
			return t, nil
		}
	}
	return models.PointTransaction{}, repo.ErrNotFound
}

func (m *memStore) History(_ context.Context, userID string, f models.HistoryFilter, limit, offset int) (models.TransactionPage, error) {
	var all []models.PointTransaction
	for _, t := range m.txns {
		if t.UserID != userID {
			continue
		}
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		if f.Source != nil && t.Source != *f.Source {
			continue
		}
		if f.From != nil && t.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && t.CreatedAt.After(*f.To) {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	page := models.TransactionPage{Total: int64(len(all)), Limit: limit, Offset: offset}
	if offset < len(all) {
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		page.Items = all[offset:end]
	}
	return page, nil
}

// repo.AuditLogs

func (m *memStore) Create(_ context.Context, l models.AuditLog) error {
	m.audits = append(m.audits, l)
	return nil
}

func newLedger(t *testing.T) (*LedgerService, *memStore) {
	t.Helper()
	st := newMemStore()
	return NewLedgerService(st, st, st, st), st
}

func (m *memStore) userTxns(userID string) []models.PointTransaction {
	var out []models.PointTransaction
	for _, t := range m.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func TestEarn_RejectsNonPositiveAmount(t *testing.T) {
	svc, st := newLedger(t)
	for _, amount := range []int64{0, -1, -100} {
		_, err := svc.Earn(context.Background(), "u1", amount, models.SourceDailyLogin, nil, "")
		require.ErrorIs(t, err, models.ErrInvalidAmount)
	}
	require.Empty(t, st.txns)
	require.Empty(t, st.balances)
}

func TestEarn_CreditsAndAppends(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()

	txn, err := svc.Earn(ctx, "u1", 100, models.SourceDailyLogin, nil, "daily login bonus")
	require.NoError(t, err)
	require.Equal(t, models.TxnEarn, txn.Type)
	require.Equal(t, int64(100), txn.Amount)
	require.Equal(t, int64(100), txn.BalanceAfter)

	b := st.balances["u1"]
	require.Equal(t, int64(100), b.TotalPoints)
	require.Equal(t, int64(100), b.LifetimeEarned)
	require.Equal(t, int64(100), b.SeasonPoints)
	require.Zero(t, b.LifetimeSpent)
}

func TestEarn_IdempotentReplay(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()
	ref := &models.Reference{ID: 5, Type: "COLLECTION"}

	first, err := svc.Earn(ctx, "u1", 100, models.SourceCollection, ref, "")
	require.NoError(t, err)

	replay, err := svc.Earn(ctx, "u1", 100, models.SourceCollection, ref, "")
	require.NoError(t, err)
	require.Equal(t, first.ID, replay.ID)

	require.Len(t, st.userTxns("u1"), 1)
	require.Equal(t, int64(100), st.balances["u1"].TotalPoints)
}

func TestEarn_SameReferenceDifferentUsers(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()
	ref := models.Reference{ID: 7, Type: "ACHIEVEMENT"}

	_, err := svc.Earn(ctx, "u1", 50, models.SourceAchievement, &ref, "")
	require.NoError(t, err)
	_, err = svc.Earn(ctx, "u2", 50, models.SourceAchievement, &ref, "")
	require.NoError(t, err)

	require.Equal(t, int64(50), st.balances["u1"].TotalPoints)
	require.Equal(t, int64(50), st.balances["u2"].TotalPoints)
}

func TestSpend_InsufficientBalance(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "u1", 30, models.SourceDailyLogin, nil, "")
	require.NoError(t, err)

	_, err = svc.Spend(ctx, "u1", 31, models.SourceMarketplacePurchase, nil, "")
	require.ErrorIs(t, err, models.ErrInsufficientBalance)

	// nothing observable from the failed spend
	require.Equal(t, int64(30), st.balances["u1"].TotalPoints)
	require.Len(t, st.userTxns("u1"), 1)
}

func TestSpend_DebitsAndTracksLifetime(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "u1", 100, models.SourceDailyLogin, nil, "")
	require.NoError(t, err)

	txn, err := svc.Spend(ctx, "u1", 30, models.SourceMarketplacePurchase, nil, "sticker pack")
	require.NoError(t, err)
	require.Equal(t, models.TxnSpend, txn.Type)
	require.Equal(t, int64(70), txn.BalanceAfter)

	b := st.balances["u1"]
	require.Equal(t, int64(70), b.TotalPoints)
	require.Equal(t, int64(100), b.LifetimeEarned)
	require.Equal(t, int64(30), b.LifetimeSpent)
	require.Equal(t, int64(100), b.SeasonPoints)
}

func TestTransfer_MovesPointsAtomically(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "alice", 200, models.SourceDailyLogin, nil, "")
	require.NoError(t, err)
	_, err = svc.Earn(ctx, "bob", 10, models.SourceDailyLogin, nil, "")
	require.NoError(t, err)

	out, in, err := svc.Transfer(ctx, "alice", "bob", 50, "thanks")
	require.NoError(t, err)
	require.Equal(t, models.TxnTransferOut, out.Type)
	require.Equal(t, models.TxnTransferIn, in.Type)
	require.Equal(t, int64(150), out.BalanceAfter)
	require.Equal(t, int64(60), in.BalanceAfter)

	require.Equal(t, int64(150), st.balances["alice"].TotalPoints)
	require.Equal(t, int64(60), st.balances["bob"].TotalPoints)

	// lifetime/season counters track platform activity, not peer movement
	require.Equal(t, int64(200), st.balances["alice"].LifetimeEarned)
	require.Zero(t, st.balances["alice"].LifetimeSpent)
	require.Equal(t, int64(10), st.balances["bob"].LifetimeEarned)
}

func TestTransfer_Rejections(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "alice", 40, models.SourceDailyLogin, nil, "")
	require.NoError(t, err)

	tests := []struct {
		name     string
		from, to string
		amount   int64
		want     error
	}{
		{"zero amount", "alice", "bob", 0, models.ErrInvalidAmount},
		{"negative amount", "alice", "bob", -5, models.ErrInvalidAmount},
		{"self transfer", "alice", "alice", 10, models.ErrSelfTransfer},
		{"insufficient", "alice", "bob", 41, models.ErrInsufficientBalance},
		{"sender never transacted", "carol", "alice", 1, models.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Transfer(ctx, tt.from, tt.to, tt.amount, "")
			require.ErrorIs(t, err, tt.want)
		})
	}

	require.Equal(t, int64(40), st.balances["alice"].TotalPoints)
	require.Len(t, st.userTxns("alice"), 1)
	require.Empty(t, st.userTxns("bob"))
}

func TestLedger_ReplayEqualsSum(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()

	ops := []struct {
		spend  bool
		amount int64
	}{
		{false, 100}, {false, 40}, {true, 30}, {false, 5}, {true, 100}, {true, 15},
	}
	var want int64
	for i, op := range ops {
		ref := &models.Reference{ID: int64(i), Type: "TEST_EVENT"}
		if op.spend {
			_, err := svc.Spend(ctx, "u1", op.amount, models.SourceMarketplacePurchase, ref, "")
			if want < op.amount {
				require.ErrorIs(t, err, models.ErrInsufficientBalance)
				continue
			}
			require.NoError(t, err)
			want -= op.amount
		} else {
			_, err := svc.Earn(ctx, "u1", op.amount, models.SourceDailyLogin, ref, "")
			require.NoError(t, err)
			want += op.amount
		}
		require.GreaterOrEqual(t, want, int64(0))
	}
	require.Equal(t, want, st.balances["u1"].TotalPoints)

	// the log alone reconstructs the balance
	var replay int64
	for _, txn := range st.userTxns("u1") {
		switch txn.Type {
		case models.TxnEarn, models.TxnTransferIn:
			replay += txn.Amount
		case models.TxnSpend, models.TxnTransferOut:
			replay -= txn.Amount
		}
		require.Equal(t, replay, txn.BalanceAfter)
	}
	require.Equal(t, want, replay)
}

func TestLedger_SpecScenario(t *testing.T) {
	svc, st := newLedger(t)
	ctx := context.Background()

	_, err := svc.Earn(ctx, "u1", 100, models.SourceDailyLogin, nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(100), st.balances["u1"].TotalPoints)

	_, err = svc.Spend(ctx, "u1", 30, models.SourceMarketplacePurchase, nil, "")
	require.NoError(t, err)
	require.Equal(t, int64(70), st.balances["u1"].TotalPoints)
	require.Equal(t, int64(30), st.balances["u1"].LifetimeSpent)

	ref := &models.Reference{ID: 9, Type: "COLLECT"}
	for i := 0; i < 2; i++ {
		_, err = svc.Earn(ctx, "u1", 100, models.SourceCollection, ref, "")
		require.NoError(t, err)
	}
	require.Equal(t, int64(170), st.balances["u1"].TotalPoints)

	var collectTxns int
	for _, txn := range st.userTxns("u1") {
		if txn.Reference != nil && *txn.Reference == *ref {
			collectTxns++
		}
	}
	require.Equal(t, 1, collectTxns)
}

func TestGetBalance_ZeroViewNotPersisted(t *testing.T) {
	svc, st := newLedger(t)

	b, err := svc.GetBalance(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, "ghost", b.UserID)
	require.Zero(t, b.TotalPoints)
	require.Nil(t, b.CurrentRank)
	require.NotContains(t, st.balances, "ghost")
}

func TestHistory_FiltersAndPaging(t *testing.T) {
	svc, _ := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Earn(ctx, "u1", 10, models.SourceDailyLogin, &models.Reference{ID: int64(i), Type: "LOGIN"}, fmt.Sprintf("day %d", i))
		require.NoError(t, err)
	}
	_, err := svc.Spend(ctx, "u1", 20, models.SourceMarketplacePurchase, nil, "")
	require.NoError(t, err)

	page, err := svc.History(ctx, "u1", models.HistoryFilter{}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(6), page.Total)
	require.Equal(t, defaultPageSize, page.Limit)
	// newest first
	require.Equal(t, models.TxnSpend, page.Items[0].Type)

	spendType := models.TxnSpend
	page, err = svc.History(ctx, "u1", models.HistoryFilter{Type: &spendType}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)

	page, err = svc.History(ctx, "u1", models.HistoryFilter{}, 2, 4)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	page, err = svc.History(ctx, "u1", models.HistoryFilter{}, maxPageSize+50, -3)
	require.NoError(t, err)
	require.Equal(t, maxPageSize, page.Limit)
	require.Zero(t, page.Offset)
}

func TestGrant_CreditsAndAudits(t *testing.T) {
	svc, st := newLedger(t)

	txn, err := svc.Grant(context.Background(), "admin-1", "u1", 500, "compensation")
	require.NoError(t, err)
	require.Equal(t, models.SourceAdminGrant, txn.Source)
	require.Equal(t, int64(500), st.balances["u1"].TotalPoints)

	require.Len(t, st.audits, 1)
	require.Equal(t, "admin_grant", st.audits[0].Action)
	require.Equal(t, "admin-1", st.audits[0].Details["admin_id"])
}
