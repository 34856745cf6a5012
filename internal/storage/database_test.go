package storage

import (
	"testing"

	"rhema/internal/config"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3", 768); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	// idempotent
	if err := Migrate(db, "sqlite3", 768); err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}
	for _, table := range []string{"documents", "profiles", "daily_rhema", "prayers"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle", URL: "x"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = ?`
	if got := Rebind("sqlite3", q); got != q {
		t.Fatalf("sqlite query changed: %s", got)
	}
	if got := Rebind("postgres", q); got != `SELECT * FROM t WHERE a = $1 AND b = $2` {
		t.Fatalf("postgres rebind = %s", got)
	}
}
