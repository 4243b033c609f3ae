package postgres

import (
	"github.com/baharkarakas/xp-ledger/internal/db"
	repo "github.com/baharkarakas/xp-ledger/internal/repository"
)

type Repositories struct {
	Balances     repo.Balances
	Transactions repo.Transactions
	Rentals      repo.Rentals
	Referrals    repo.Referrals
}

// NewRepositories takes a *pgxpool.Pool in production and a pgxmock pool in tests.
func NewRepositories(pool db.DB) Repositories {
	return Repositories{
		Balances:     NewBalances(pool),
		Transactions: NewTransactions(pool),
		Rentals:      NewRentals(pool),
		Referrals:    NewReferrals(pool),
	}
}
