package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_mail_attachments",
		SQL: `CREATE TABLE IF NOT EXISTS mail_attachments (
  id                  UUID        PRIMARY KEY,
  message_id          TEXT        NOT NULL,
  original_name       TEXT        NOT NULL,
  storage_key         TEXT        NOT NULL UNIQUE,
  download_id         TEXT        NOT NULL UNIQUE,
  size                BIGINT      NOT NULL CHECK (size >= 0),
  content_type        TEXT        NOT NULL,
  downloaded          BOOLEAN     NOT NULL DEFAULT FALSE,
  download_count      INTEGER     NOT NULL DEFAULT 0,
  first_downloaded_at TIMESTAMPTZ,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_mail_attachments_message_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_mail_attachments_message_id ON mail_attachments (message_id);`,
	},
	{
		Name: "create_index_mail_attachments_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_mail_attachments_created_at ON mail_attachments (created_at);`,
	},
	{
		Name: "create_table_download_events",
		SQL: `CREATE TABLE IF NOT EXISTS download_events (
  id          UUID        PRIMARY KEY,
  download_id TEXT        NOT NULL,
  client_ip   TEXT        NOT NULL,
  user_agent  TEXT        NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_download_events_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_download_events_created_at ON download_events (created_at);`,
	},
	{
		Name: "create_index_download_events_download_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_download_events_download_id ON download_events (download_id);`,
	},
	{
		Name: "create_table_open_events",
		SQL: `CREATE TABLE IF NOT EXISTS open_events (
  id         UUID        PRIMARY KEY,
  message_id TEXT        NOT NULL,
  client_ip  TEXT        NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_open_events_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_open_events_created_at ON open_events (created_at);`,
	},
	{
		Name: "create_table_cleanup_runs",
		SQL: `CREATE TABLE IF NOT EXISTS cleanup_runs (
  id                  UUID        PRIMARY KEY,
  ran_at              TIMESTAMPTZ NOT NULL,
  objects_deleted     INTEGER     NOT NULL DEFAULT 0,
  cache_files_deleted INTEGER     NOT NULL DEFAULT 0,
  orphan_rows_deleted INTEGER     NOT NULL DEFAULT 0,
  tracking_deleted    BIGINT      NOT NULL DEFAULT 0,
  duration_ms         BIGINT      NOT NULL DEFAULT 0
);`,
	},
	{
		Name: "create_index_cleanup_runs_ran_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_cleanup_runs_ran_at ON cleanup_runs (ran_at);`,
	},
}

// EnsureMigrated checks if the 'mail_attachments' table exists and runs
// migrations if it doesn't. The sent_messages table belongs to the mail
// sender and is never created here.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.mail_attachments') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		logJSON(loc, map[string]any{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logJSON(loc, map[string]any{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_start",
		"status":    "in_progress",
		"db_host":   dbHost,
	})

	for _, step := range steps {
		stepStart := time.Now()
		_, err := db.ExecContext(ctx, step.SQL)
		if err != nil {
			logJSON(loc, map[string]any{
				"component":        "database",
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logJSON(loc, map[string]any{
			"component":        "database",
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	logJSON(loc, map[string]any{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

func logJSON(loc *time.Location, data map[string]any) {
	data["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal migration log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
