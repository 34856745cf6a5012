package devotional

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rhema/internal/logger"
	"rhema/internal/rag"
	"rhema/internal/storage"
)

var (
	ErrEmptyRequest   = errors.New("request text is required")
	ErrPrayerNotFound = errors.New("prayer not found")
	ErrSignInRequired = errors.New("sign in to save a prayer strategy")
	ErrGeneration     = errors.New("daily rhema generation failed")
)

// JSONGenerator produces a structured completion. ai.Service satisfies it.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, dst interface{}) error
}

// Service owns the daily rhema and prayer strategy features.
type Service struct {
	db       *sql.DB
	driver   string
	gen      JSONGenerator
	profiles rag.ProfileStore
	log      *logger.Logger
	now      func() time.Time
}

func NewService(db *sql.DB, driver string, gen JSONGenerator, profiles rag.ProfileStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		db:       db,
		driver:   storage.Normalize(driver),
		gen:      gen,
		profiles: profiles,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) rebind(q string) string {
	return storage.Rebind(s.driver, q)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
