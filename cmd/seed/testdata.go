package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// seedTestData adds the negative-path fixtures the integration tests rely on:
// a trader with no settlement account and a delisted property.
func seedTestData(ctx context.Context, pool *pgxpool.Pool) error {
	unlinkedTraderID := uuid.MustParse("00000000-0000-0000-0000-000000000005")
	now := time.Now()

	_, err := pool.Exec(ctx, `
		INSERT INTO traders (id, email, settlement_account, role, status, created_at)
		VALUES ($1, $2, '', 'trader', 'active', $3)
		ON CONFLICT (email) DO UPDATE SET settlement_account = ''
	`, unlinkedTraderID, "unlinked@homesure.dev", now)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO properties (id, name, location, status, created_at)
		VALUES ($1, $2, $3, 'delisted', $4)
		ON CONFLICT (id) DO UPDATE SET status = 'delisted'
	`, int64(99), "Withdrawn Lot 99", "Lisbon", now)
	return err
}
