package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rhema/internal/models"
	"rhema/internal/storage"
)

// SQLStore reads profiles from the profiles table. List fields are JSON arrays.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: storage.Normalize(driver)}
}

// Get returns (nil, nil) when the user has no profile row.
func (s *SQLStore) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, nil
	}
	var (
		p                         models.UserProfile
		goals, struggles, mentors []byte
	)
	err := s.db.QueryRowContext(ctx, storage.Rebind(s.driver,
		`SELECT id, spiritual_goals, struggles, favorite_ministers, preferred_bible_version, updated_at
		 FROM profiles WHERE id = ?`), userID,
	).Scan(&p.UserID, &goals, &struggles, &mentors, &p.PreferredBibleVersion, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	for _, f := range []struct {
		raw []byte
		dst *[]string
	}{{goals, &p.SpiritualGoals}, {struggles, &p.Struggles}, {mentors, &p.FavoriteMinisters}} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", userID, err)
		}
	}
	return &p, nil
}

// Upsert writes the whole profile row.
func (s *SQLStore) Upsert(ctx context.Context, p *models.UserProfile) error {
	if p == nil || p.UserID == "" {
		return errors.New("profile user id is required")
	}
	enc := func(v []string) string {
		if v == nil {
			v = []string{}
		}
		data, _ := json.Marshal(v)
		return string(data)
	}
	p.UpdatedAt = time.Now().UTC()

	var query string
	switch s.driver {
	case storage.DriverMySQL:
		query = `INSERT INTO profiles (id, spiritual_goals, struggles, favorite_ministers, preferred_bible_version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE spiritual_goals = VALUES(spiritual_goals), struggles = VALUES(struggles),
			favorite_ministers = VALUES(favorite_ministers), preferred_bible_version = VALUES(preferred_bible_version),
			updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO profiles (id, spiritual_goals, struggles, favorite_ministers, preferred_bible_version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET spiritual_goals = excluded.spiritual_goals, struggles = excluded.struggles,
			favorite_ministers = excluded.favorite_ministers, preferred_bible_version = excluded.preferred_bible_version,
			updated_at = excluded.updated_at`
	}
	if _, err := s.db.ExecContext(ctx, storage.Rebind(s.driver, query),
		p.UserID, enc(p.SpiritualGoals), enc(p.Struggles), enc(p.FavoriteMinisters), p.PreferredBibleVersion, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
