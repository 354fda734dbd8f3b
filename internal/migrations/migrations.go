package migrations

import (
	"database/sql"
	"fmt"
	"log"
)

type Migration struct {
	Version     int
	Description string
	Func        func(*sql.DB) error
}

var Migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Func:        InitialSchema,
	},
	{
		Version:     2,
		Description: "Add daily portfolio snapshots",
		Func:        AddDailySnapshots,
	},
	// Add future migrations here
}

// CreateMigrationsTable creates the migrations table if it doesn't exist
func CreateMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            description TEXT NOT NULL,
            applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
    `)
	return err
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB) error {
	// Create migrations table if it doesn't exist
	if err := CreateMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	// Run pending migrations
	for _, migration := range Migrations {
		if !applied[migration.Version] {
			log.Printf("Running migration %d: %s", migration.Version, migration.Description)

			if err := migration.Func(db); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			// Record successful migration
			_, err := db.Exec(
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				migration.Version,
				migration.Description,
			)
			if err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}

			log.Printf("Migration %d completed successfully", migration.Version)
		}
	}

	return nil
}

// InitialSchema creates the portfolios, ledger and market data tables.
func InitialSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS portfolios (
            id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
            user_id BIGINT NOT NULL,
            name VARCHAR(255) NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
        );

        CREATE TABLE IF NOT EXISTS portfolio_transactions (
            id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
            portfolio_id BIGINT NOT NULL REFERENCES portfolios (id),
            ticker VARCHAR(16) NOT NULL,
            type VARCHAR(16) NOT NULL,
            quantity NUMERIC(19,6) NOT NULL,
            price NUMERIC(19,6) NOT NULL,
            transaction_at TIMESTAMP WITH TIME ZONE NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            voided BOOLEAN NOT NULL DEFAULT FALSE,
            CONSTRAINT valid_type CHECK (type IN ('BUY', 'SELL', 'DEPOSIT', 'WITHDRAWAL')),
            CONSTRAINT positive_quantity CHECK (quantity > 0),
            CONSTRAINT positive_price CHECK (price > 0)
        );

        CREATE INDEX IF NOT EXISTS idx_portfolio_transactions_portfolio_date
            ON portfolio_transactions (portfolio_id, transaction_at);

        CREATE TABLE IF NOT EXISTS market_data_daily (
            ticker VARCHAR(16) NOT NULL,
            date DATE NOT NULL,
            close_price NUMERIC(19,6) NOT NULL,
            PRIMARY KEY (ticker, date)
        );
    `)
	return err
}

// AddDailySnapshots creates the materialized per-day performance table. The
// primary key on (portfolio_id, date) is what makes the snapshot upsert
// atomic under racing backfills.
func AddDailySnapshots(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS daily_portfolio_snapshots (
            portfolio_id BIGINT NOT NULL REFERENCES portfolios (id),
            date DATE NOT NULL,
            total_value NUMERIC(19,6) NOT NULL,
            cash_balance NUMERIC(19,6) NOT NULL,
            daily_return_pct DOUBLE PRECISION NOT NULL,
            net_cash_flow NUMERIC(19,6) NOT NULL,
            computed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (portfolio_id, date)
        );
    `)
	return err
}
