package models

import "time"

// Balance is the per-user point account. Rows are created lazily on the
// first balance-affecting event and never deleted; a season reset only
// zeroes SeasonPoints and clears CurrentRank.
type Balance struct {
	UserID         string    `json:"user_id"`
	TotalPoints    int64     `json:"total_points"`
	LifetimeEarned int64     `json:"lifetime_earned"`
	LifetimeSpent  int64     `json:"lifetime_spent"`
	SeasonPoints   int64     `json:"season_points"`
	CurrentRank    *int      `json:"current_rank,omitempty"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
}

// ZeroBalance is the view returned for users that never transacted.
// It is not persisted.
func ZeroBalance(userID string) Balance {
	return Balance{UserID: userID}
}
