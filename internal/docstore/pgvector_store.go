package docstore

import (
	"context"
	"database/sql"
	"fmt"

	"rhema/internal/models"

	"github.com/pgvector/pgvector-go"
)

// PGVectorStore stores embeddings in a pgvector column and delegates ranking
// to the match_documents database function.
type PGVectorStore struct {
	db  *sql.DB
	dim int
}

func (s *PGVectorStore) Dimension() int { return s.dim }

func (s *PGVectorStore) Insert(ctx context.Context, chunk *models.DocumentChunk) (int64, error) {
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
	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO documents (content, metadata, embedding) VALUES ($1, $2::jsonb, $3) RETURNING id, created_at`,
		chunk.Content, md, pgvector.NewVector(chunk.Embedding),
	).Scan(&id, &chunk.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	chunk.ID = id
	return id, nil
}

func (s *PGVectorStore) Match(ctx context.Context, query []float32, threshold float64, topK int) ([]models.ScoredChunk, error) {
	if err := checkDimension(query, s.dim); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, similarity FROM match_documents($1, $2, $3)`,
		pgvector.NewVector(query), threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("match_documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.ScoredChunk, 0, max(topK, 0))
	for rows.Next() {
		var (
			sc       models.ScoredChunk
			metadata []byte
		)
		if err := rows.Scan(&sc.ID, &sc.Content, &metadata, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if sc.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) { return countRows(ctx, s.db) }

func (s *PGVectorStore) Clear(ctx context.Context) error { return clearRows(ctx, s.db) }
