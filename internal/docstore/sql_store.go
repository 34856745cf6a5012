package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rhema/internal/models"
	"rhema/internal/rag"
	"rhema/internal/storage"
)

// SQLStore keeps embeddings as JSON arrays and ranks in process. Used with
// sqlite and mysql, which have no vector type.
type SQLStore struct {
	db     *sql.DB
	driver string
	dim    int
}

func (s *SQLStore) Dimension() int { return s.dim }

func (s *SQLStore) Insert(ctx context.Context, chunk *models.DocumentChunk) (int64, error) {
	if chunk == nil {
		return 0, fmt.Errorf("chunk is required")
	}
	if err := checkDimension(chunk.Embedding, s.dim); err != nil {
		return 0, err
	}
	md, err := encodeMetadata(chunk.Metadata)
	if err != nil {
		return 0, err
	}
	vec, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return 0, fmt.Errorf("encode embedding: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, storage.Rebind(s.driver,
		`INSERT INTO documents (content, metadata, embedding, created_at) VALUES (?, ?, ?, ?)`),
		chunk.Content, md, string(vec), now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert document id: %w", err)
	}
	chunk.ID = id
	chunk.CreatedAt = now
	return id, nil
}

// Match scans every stored chunk and ranks by cosine similarity.
func (s *SQLStore) Match(ctx context.Context, query []float32, threshold float64, topK int) ([]models.ScoredChunk, error) {
	if err := checkDimension(query, s.dim); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding, created_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var candidates []models.DocumentChunk
	for rows.Next() {
		var (
			c        models.DocumentChunk
			metadata []byte
			vec      []byte
		)
		if err := rows.Scan(&c.ID, &c.Content, &metadata, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if c.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(vec, &c.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", c.ID, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return rag.Rank(query, candidates, threshold, topK)
}

func (s *SQLStore) Count(ctx context.Context) (int, error) { return countRows(ctx, s.db) }

func (s *SQLStore) Clear(ctx context.Context) error { return clearRows(ctx, s.db) }
