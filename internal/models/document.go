package models

import "time"

// ChunkMetadata is stored as a JSON object next to each chunk.
type ChunkMetadata struct {
	Source      string `json:"source,omitempty"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks,omitempty"`
	Topic       string `json:"topic,omitempty"`
	Type        string `json:"type,omitempty"`
}

// DocumentChunk is an immutable slice of a source document with its embedding.
type DocumentChunk struct {
	ID        int64         `json:"id"`
	Content   string        `json:"content"`
	Embedding []float32     `json:"-"`
	Metadata  ChunkMetadata `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}

// ScoredChunk is a match result; Similarity is cosine on a -1..1 scale.
type ScoredChunk struct {
	DocumentChunk
	Similarity float64 `json:"similarity"`
}
