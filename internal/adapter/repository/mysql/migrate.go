package mysql

import (
	"context"
	"fmt"

	"coop-ledger/internal/domain/audit"
	"coop-ledger/internal/domain/ledger"
	"coop-ledger/internal/domain/loan"
	"coop-ledger/internal/domain/member"
	"coop-ledger/internal/domain/quota"
	"coop-ledger/internal/domain/treasury"

	"gorm.io/gorm"
)

// Models lists every table owned by the ledger.
func Models() []any {
	return []any{
		&member.Member{},
		&quota.Quota{},
		&loan.Loan{},
		&loan.Installment{},
		&ledger.Entry{},
		&treasury.Treasury{},
		&audit.Record{},
	}
}

// Migrate creates or updates the schema and seeds the treasury row.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if err := NewTreasuryRepository(db).Ensure(ctx); err != nil {
		return fmt.Errorf("seed treasury: %w", err)
	}
	return nil
}
