package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	demoTraderID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	demoMatcherID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	demoEscrowID  = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	demoAdminID   = uuid.MustParse("00000000-0000-0000-0000-000000000004")
)

func main() {
	env := getEnv("HOMESURE_ENV", "dev")
	if env != "dev" && env != "test" {
		log.Fatalf("refusing to seed: HOMESURE_ENV must be 'dev' or 'test' (got '%s')", env)
	}

	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	db := getEnv("POSTGRES_DB", "homesure_trading")
	user := getEnv("POSTGRES_USER", "homesure")
	password := getEnv("POSTGRES_PASSWORD", "homesure")
	sslmode := getEnv("POSTGRES_SSLMODE", "disable")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, db, sslmode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	fmt.Println("Seeding database...")

	if err := seedTraders(ctx, pool); err != nil {
		log.Fatalf("seed traders: %v", err)
	}
	fmt.Println("✓ Traders seeded")

	if err := seedProperties(ctx, pool); err != nil {
		log.Fatalf("seed properties: %v", err)
	}
	fmt.Println("✓ Properties seeded")

	if os.Getenv("SEED_TESTDATA") == "1" {
		if err := seedTestData(ctx, pool); err != nil {
			log.Fatalf("seed test data: %v", err)
		}
		fmt.Println("✓ Test data seeded")
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nDemo Traders:")
	fmt.Println("  trader@homesure.dev  (role: trader)")
	fmt.Println("  matcher@homesure.dev (role: matcher)")
	fmt.Println("  escrow@homesure.dev  (role: escrow_manager)")
	fmt.Println("  admin@homesure.dev   (role: admin)")
}

func seedTraders(ctx context.Context, pool *pgxpool.Pool) error {
	traders := []struct {
		id      uuid.UUID
		email   string
		account string
		role    string
	}{
		{demoTraderID, "trader@homesure.dev", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", "trader"},
		{demoMatcherID, "matcher@homesure.dev", "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", "matcher"},
		{demoEscrowID, "escrow@homesure.dev", "0x90F79bf6EB2c4f870365E785982E1f101E93b906", "escrow_manager"},
		{demoAdminID, "admin@homesure.dev", "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65", "admin"},
	}

	now := time.Now()
	for _, t := range traders {
		_, err := pool.Exec(ctx, `
			INSERT INTO traders (id, email, settlement_account, role, status, created_at)
			VALUES ($1, $2, $3, $4, 'active', $5)
			ON CONFLICT (email) DO UPDATE SET settlement_account = $3, role = $4
		`, t.id, t.email, t.account, t.role, now)
		if err != nil {
			return fmt.Errorf("trader %s: %w", t.email, err)
		}
	}
	return nil
}

func seedProperties(ctx context.Context, pool *pgxpool.Pool) error {
	properties := []struct {
		id       int64
		name     string
		location string
	}{
		{1, "Harborview Residences", "Rotterdam"},
		{2, "Linden Court", "Berlin"},
		{3, "Calle Mayor 12", "Madrid"},
	}

	now := time.Now()
	for _, p := range properties {
		_, err := pool.Exec(ctx, `
			INSERT INTO properties (id, name, location, status, created_at)
			VALUES ($1, $2, $3, 'active', $4)
			ON CONFLICT (id) DO UPDATE SET name = $2, location = $3
		`, p.id, p.name, p.location, now)
		if err != nil {
			return fmt.Errorf("property %d: %w", p.id, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
