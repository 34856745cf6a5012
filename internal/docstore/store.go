package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"rhema/internal/models"
	"rhema/internal/rag"
	"rhema/internal/storage"
)

// Store is the append-only document collection. Every stored embedding has
// exactly Dimension() floats.
type Store interface {
	rag.Matcher
	Insert(ctx context.Context, chunk *models.DocumentChunk) (int64, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Dimension() int
}

// New picks the store implementation for driver.
func New(db *sql.DB, driver string, dim int) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: document store database is required", rag.ErrConfiguration)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", rag.ErrConfiguration)
	}
	switch storage.Normalize(driver) {
	case storage.DriverPostgres:
		return &PGVectorStore{db: db, dim: dim}, nil
	case storage.DriverSQLite, storage.DriverMySQL:
		return &SQLStore{db: db, driver: storage.Normalize(driver), dim: dim}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported document store driver %s", rag.ErrConfiguration, driver)
	}
}

func checkDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d want %d", rag.ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

func encodeMetadata(md models.ChunkMetadata) (string, error) {
	data, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw []byte) (models.ChunkMetadata, error) {
	var md models.ChunkMetadata
	if len(raw) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return md, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}

func countRows(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func clearRows(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	return nil
}
