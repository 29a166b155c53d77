package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	repo "github.com/tripmate/points-ledger/internal/repository"
)

type Repositories struct {
	Users        repo.Users
	Ledger       repo.Ledger
	Balances     repo.Balances
	Transactions repo.Transactions
	AuditLogs    repo.AuditLogs
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:        &usersRepo{pool},
		Ledger:       &ledgerRepo{pool},
		Balances:     &balancesRepo{pool},
		Transactions: &transactionsRepo{pool},
		AuditLogs:    &auditLogsRepo{pool},
	}
}
