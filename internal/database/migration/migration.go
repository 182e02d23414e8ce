package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hasnin090/iq-sub003/internal/logging"
)

type migrationStep struct {
	Name string
	SQL  string
}

// steps create the tables the sync mirrors onto the remote row store.
// Column names are the canonical ones produced by rowmap.
var steps = []migrationStep{
	{
		Name: "create_table_projects",
		SQL: `CREATE TABLE IF NOT EXISTS projects (
  id          BIGINT      PRIMARY KEY,
  name        TEXT        NOT NULL,
  description TEXT,
  start_date  DATE,
  end_date    DATE,
  status      TEXT,
  created_by  BIGINT,
  created_at  TIMESTAMPTZ DEFAULT now()
);`,
	},
	{
		Name: "create_table_users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
  id          BIGINT      PRIMARY KEY,
  username    TEXT        NOT NULL,
  full_name   TEXT,
  email       TEXT,
  role        TEXT,
  permissions JSONB,
  is_active   BOOLEAN     DEFAULT true,
  created_at  TIMESTAMPTZ DEFAULT now()
);`,
	},
	{
		Name: "create_table_expense_categories",
		SQL: `CREATE TABLE IF NOT EXISTS expense_categories (
  id          BIGINT  PRIMARY KEY,
  name        TEXT    NOT NULL,
  description TEXT,
  is_active   BOOLEAN DEFAULT true
);`,
	},
	{
		Name: "create_table_employees",
		SQL: `CREATE TABLE IF NOT EXISTS employees (
  id                  BIGINT  PRIMARY KEY,
  name                TEXT    NOT NULL,
  salary              NUMERIC(14, 2),
  assigned_project_id BIGINT,
  hire_date           DATE,
  is_active           BOOLEAN DEFAULT true
);`,
	},
	{
		Name: "create_table_settings",
		SQL: `CREATE TABLE IF NOT EXISTS settings (
  key   TEXT PRIMARY KEY,
  value TEXT
);`,
	},
	{
		Name: "create_table_transactions",
		SQL: `CREATE TABLE IF NOT EXISTS transactions (
  id              BIGINT         PRIMARY KEY,
  date            DATE           NOT NULL,
  type            TEXT           NOT NULL CHECK (type IN ('income', 'expense')),
  amount          NUMERIC(14, 2) NOT NULL,
  description     TEXT,
  project_id      BIGINT,
  created_by      BIGINT,
  employee_id     BIGINT,
  expense_type_id BIGINT,
  file_url        TEXT,
  file_type       TEXT,
  archived        BOOLEAN        NOT NULL DEFAULT false,
  created_at      TIMESTAMPTZ    DEFAULT now()
);`,
	},
	{
		Name: "create_index_transactions_date",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (date);`,
	},
	{
		Name: "create_index_transactions_project_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_transactions_project_id ON transactions (project_id);`,
	},
}

// EnsureMigrated creates the mirrored tables unless 'transactions' already exists.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *logging.Logger, dbHost string) error {
	start := time.Now()
	log = log.With("database")

	log.Info("db_migration_check", map[string]any{"status": "starting", "db_host": dbHost})

	var exists bool
	query := "SELECT to_regclass('public.transactions') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed", fmt.Errorf("failed to check sentinel table: %w", err), map[string]any{
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip", map[string]any{
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	log.Info("db_migration_start", map[string]any{"status": "in_progress", "db_host": dbHost})

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed", err, map[string]any{
				"migration_step":   step.Name,
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step", map[string]any{
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	log.Info("db_migration_success", map[string]any{
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
