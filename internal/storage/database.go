package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"rhema/internal/config"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Normalize maps driver aliases onto the names used throughout the repo.
func Normalize(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pgx":
		return DriverPostgres
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

// Open connects to the document store described by cfg.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch Normalize(cfg.Driver) {
	case DriverSQLite:
		if cfg.URL == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if cfg.URL == ":memory:" {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case DriverMySQL:
		dsn, err := mysql.ParseDSN(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		if dsn.Passwd == "" {
			dsn.Passwd = cfg.Key
		}
		dsn.ParseTime = true
		db, err = sql.Open("mysql", dsn.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case DriverPostgres:
		connCfg, err := pgx.ParseConfig(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse postgres url: %w", err)
		}
		if connCfg.Password == "" {
			connCfg.Password = cfg.Key
		}
		db = stdlib.OpenDB(*connCfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Rebind rewrites ? placeholders to $n for postgres.
func Rebind(driver, query string) string {
	if Normalize(driver) != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Migrate ensures the required tables are present. dim fixes the width of the
// postgres vector column.
func Migrate(db *sql.DB, driver string, dim int) error {
	var stmts []string
	switch Normalize(driver) {
	case DriverSQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				content TEXT NOT NULL,
				metadata TEXT NOT NULL DEFAULT '{}',
				embedding TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS profiles (
				id TEXT PRIMARY KEY,
				spiritual_goals TEXT NOT NULL DEFAULT '[]',
				struggles TEXT NOT NULL DEFAULT '[]',
				favorite_ministers TEXT NOT NULL DEFAULT '[]',
				preferred_bible_version TEXT NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS daily_rhema (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				date TEXT NOT NULL,
				scripture_ref TEXT NOT NULL,
				scripture_text TEXT NOT NULL,
				content TEXT NOT NULL,
				prayer_focus TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				UNIQUE(user_id, date)
			)`,
			`CREATE TABLE IF NOT EXISTS prayers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				request_text TEXT NOT NULL,
				ai_strategy TEXT,
				scripture_ref TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_prayers_user ON prayers(user_id)`,
		}
	case DriverMySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS documents (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				content MEDIUMTEXT NOT NULL,
				metadata JSON NOT NULL,
				embedding MEDIUMTEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS profiles (
				id VARCHAR(191) NOT NULL,
				spiritual_goals JSON NOT NULL,
				struggles JSON NOT NULL,
				favorite_ministers JSON NOT NULL,
				preferred_bible_version VARCHAR(64) NOT NULL DEFAULT '',
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS daily_rhema (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id VARCHAR(191) NOT NULL,
				date CHAR(10) NOT NULL,
				scripture_ref VARCHAR(255) NOT NULL,
				scripture_text TEXT NOT NULL,
				content TEXT NOT NULL,
				prayer_focus TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_rhema_user_date (user_id, date)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS prayers (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id VARCHAR(191) NOT NULL,
				request_text TEXT NOT NULL,
				ai_strategy TEXT,
				scripture_ref VARCHAR(255),
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_prayers_user (user_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case DriverPostgres:
		if dim <= 0 {
			return fmt.Errorf("migrate (%s): embedding dimension must be positive", driver)
		}
		stmts = []string{
			`CREATE EXTENSION IF NOT EXISTS vector`,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
				id BIGSERIAL PRIMARY KEY,
				content TEXT NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
				embedding vector(%d) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, dim),
			fmt.Sprintf(`CREATE OR REPLACE FUNCTION match_documents(
				query_embedding vector(%d),
				match_threshold float,
				match_count int
			)
			RETURNS TABLE (id bigint, content text, metadata jsonb, similarity float)
			LANGUAGE sql STABLE
			AS $$
				SELECT d.id, d.content, d.metadata, 1 - (d.embedding <=> query_embedding) AS similarity
				FROM documents d
				WHERE 1 - (d.embedding <=> query_embedding) >= match_threshold
				ORDER BY d.embedding <=> query_embedding, d.id
				LIMIT match_count;
			$$`, dim),
			`CREATE TABLE IF NOT EXISTS profiles (
				id TEXT PRIMARY KEY,
				spiritual_goals JSONB NOT NULL DEFAULT '[]'::jsonb,
				struggles JSONB NOT NULL DEFAULT '[]'::jsonb,
				favorite_ministers JSONB NOT NULL DEFAULT '[]'::jsonb,
				preferred_bible_version TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE TABLE IF NOT EXISTS daily_rhema (
				id BIGSERIAL PRIMARY KEY,
				user_id TEXT NOT NULL,
				date TEXT NOT NULL,
				scripture_ref TEXT NOT NULL,
				scripture_text TEXT NOT NULL,
				content TEXT NOT NULL,
				prayer_focus TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (user_id, date)
			)`,
			`CREATE TABLE IF NOT EXISTS prayers (
				id BIGSERIAL PRIMARY KEY,
				user_id TEXT NOT NULL,
				request_text TEXT NOT NULL,
				ai_strategy TEXT,
				scripture_ref TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_prayers_user ON prayers(user_id)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
