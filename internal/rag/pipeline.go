package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rhema/internal/logger"
	"rhema/internal/models"
	"rhema/internal/stream"
)

// Pipeline runs query -> embed -> match -> persona -> prompt -> generation.
type Pipeline struct {
	embedder  Embedder
	matcher   Matcher
	generator Generator
	profiles  ProfileStore
	threshold float64
	topK      int
	log       *logger.Logger
}

type Option func(*Pipeline)

// WithRetrieval overrides the similarity threshold and result count.
func WithRetrieval(threshold float64, topK int) Option {
	return func(p *Pipeline) {
		p.threshold = threshold
		if topK > 0 {
			p.topK = topK
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPipeline wires the collaborators. profiles may be nil, in which case every
// caller gets the default persona.
func NewPipeline(embedder Embedder, matcher Matcher, generator Generator, profiles ProfileStore, opts ...Option) (*Pipeline, error) {
	var missing []string
	if embedder == nil {
		missing = append(missing, "embedder")
	}
	if matcher == nil {
		missing = append(missing, "matcher")
	}
	if generator == nil {
		missing = append(missing, "generator")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: pipeline needs %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	p := &Pipeline{
		embedder:  embedder,
		matcher:   matcher,
		generator: generator,
		profiles:  profiles,
		threshold: DefaultMatchThreshold,
		topK:      DefaultMatchCount,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Prepared is everything computed before generation starts.
type Prepared struct {
	Query   string
	Prompt  string
	Matches []models.ScoredChunk
	Profile *models.UserProfile
	// ProfileErr is set when the lookup failed and defaults were used.
	ProfileErr error
}

// HasContext reports whether retrieval found anything; false means the answer
// comes from general knowledge and carries a disclaimer.
func (p *Prepared) HasContext() bool {
	return len(p.Matches) > 0
}

// Answer is a prepared request plus its open generation stream.
type Answer struct {
	*Prepared
	Stream stream.Reader
}

// Prepare embeds the query, retrieves context, looks up the persona and assembles the prompt.
func (p *Pipeline) Prepare(ctx context.Context, rc RequestContext, query string) (*Prepared, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	log := p.log.With("request_id", rc.RequestID)

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrap(ErrEmbeddingUnavailable, err)
	}
	if dim := p.embedder.Dimension(); dim > 0 && len(vec) != dim {
		return nil, wrap(ErrEmbeddingUnavailable, fmt.Errorf("%w: got %d want %d", ErrDimensionMismatch, len(vec), dim))
	}

	matches, err := p.matcher.Match(ctx, vec, p.threshold, p.topK)
	if err != nil {
		return nil, wrap(ErrMatchQuery, err)
	}
	if matches == nil {
		matches = []models.ScoredChunk{}
	}

	prepared := &Prepared{Query: query, Matches: matches}
	if !rc.Caller.Anonymous() && p.profiles != nil {
		profile, err := p.profiles.Get(ctx, rc.Caller.UserID)
		if err != nil {
			prepared.ProfileErr = wrap(ErrProfileLookup, err)
			log.Warn("profile lookup failed, using defaults", "error", err)
		} else {
			prepared.Profile = profile
		}
	}

	prepared.Prompt = AssemblePrompt(matches, prepared.Profile, query)
	log.Debug("prompt assembled", "matches", len(matches), "personalized", prepared.Profile != nil)
	return prepared, nil
}

// Answer prepares the prompt and opens the generation stream. The caller owns
// the returned stream and must close it.
func (p *Pipeline) Answer(ctx context.Context, rc RequestContext, query string) (*Answer, error) {
	prepared, err := p.Prepare(ctx, rc, query)
	if err != nil {
		return nil, err
	}
	reader, err := p.generator.Stream(ctx, prepared.Prompt)
	if err != nil {
		return nil, wrap(ErrGenerationStream, err)
	}
	return &Answer{Prepared: prepared, Stream: reader}, nil
}

func wrap(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
