package rag

import (
	"errors"

	"rhema/internal/config"
)

// Error taxonomy of the query pipeline. Callers match with errors.Is.
var (
	ErrConfiguration        = config.ErrConfiguration
	ErrEmptyQuery           = errors.New("query is required")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrMatchQuery           = errors.New("match query failed")
	ErrGenerationStream     = errors.New("generation stream failed")
	ErrProfileLookup        = errors.New("profile lookup failed")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
)
