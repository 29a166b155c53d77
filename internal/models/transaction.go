package models

import "time"

type TransactionType string

const (
	TxnEarn        TransactionType = "EARN"
	TxnSpend       TransactionType = "SPEND"
	TxnTransferIn  TransactionType = "TRANSFER_IN"
	TxnTransferOut TransactionType = "TRANSFER_OUT"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxnEarn, TxnSpend, TxnTransferIn, TxnTransferOut:
		return true
	}
	return false
}

// PointSource tags the feature that originated a transaction.
type PointSource string

const (
	SourceDailyLogin          PointSource = "DAILY_LOGIN"
	SourceCollection          PointSource = "COLLECTION"
	SourceAchievement         PointSource = "ACHIEVEMENT"
	SourceMarketplaceSale     PointSource = "MARKETPLACE_SALE"
	SourceMarketplacePurchase PointSource = "MARKETPLACE_PURCHASE"
	SourceAdminGrant          PointSource = "ADMIN_GRANT"
	SourceTransfer            PointSource = "TRANSFER"
)

func (s PointSource) Valid() bool {
	switch s {
	case SourceDailyLogin, SourceCollection, SourceAchievement,
		SourceMarketplaceSale, SourceMarketplacePurchase,
		SourceAdminGrant, SourceTransfer:
		return true
	}
	return false
}

// Reference identifies the real-world event behind a transaction
// (a collection, a purchase, ...). It is the idempotence key: for a given
// user the same (ID, Type) pair may produce at most one transaction.
type Reference struct {
	ID   int64  `json:"reference_id"`
	Type string `json:"reference_type"`
}

// PointTransaction is one immutable row of the append-only log.
// BalanceAfter snapshots TotalPoints after the row was applied, so the
// balance can be reconstructed from the log alone.
type PointTransaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	Source       PointSource     `json:"source"`
	Reference    *Reference      `json:"reference,omitempty"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// HistoryFilter narrows a history query. Nil fields match everything.
type HistoryFilter struct {
	Type   *TransactionType
	Source *PointSource
	From   *time.Time
	To     *time.Time
}

type TransactionPage struct {
	Items  []PointTransaction `json:"items"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}
