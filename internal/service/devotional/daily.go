package devotional

import (
	"context"
	"fmt"
	"strings"

	"rhema/internal/models"
	"rhema/internal/storage"
)

const (
	defaultDailyGoals     = "Growth in Grace"
	defaultDailyStruggles = "Daily Distractions"
	defaultDailyBible     = "KJV"
)

type dailyPayload struct {
	ScriptureRef  string `json:"scripture_ref"`
	ScriptureText string `json:"scripture_text"`
	Content       string `json:"content"`
	PrayerFocus   string `json:"prayer_focus"`
}

// DailyRhema returns the caller's devotional for the current UTC date,
// generating and storing it on first request. Concurrent first requests keep
// whichever row was written first.
func (s *Service) DailyRhema(ctx context.Context, userID string) (*models.DailyRhema, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	today := s.now().UTC().Format("2006-01-02")
	existing, err := s.findDaily(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var profile *models.UserProfile
	if s.profiles != nil {
		profile, err = s.profiles.Get(ctx, userID)
		if err != nil {
			s.log.Warn("profile lookup failed, using daily defaults", "user_id", userID, "error", err)
			profile = nil
		}
	}

	var payload dailyPayload
	if err := s.gen.GenerateJSON(ctx, DailyPrompt(profile), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if payload.ScriptureRef == "" || payload.ScriptureText == "" || payload.Content == "" || payload.PrayerFocus == "" {
		return nil, fmt.Errorf("%w: incomplete response", ErrGeneration)
	}

	row := &models.DailyRhema{
		UserID:        userID,
		Date:          today,
		ScriptureRef:  payload.ScriptureRef,
		ScriptureText: payload.ScriptureText,
		Content:       payload.Content,
		PrayerFocus:   payload.PrayerFocus,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.insertDaily(ctx, row); err != nil {
		return nil, err
	}
	stored, err := s.findDaily(ctx, userID, today)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return row, nil
	}
	return stored, nil
}

// DailyPrompt builds the JSON-mode prompt for a believer's daily word.
func DailyPrompt(p *models.UserProfile) string {
	goals, struggles, bible := defaultDailyGoals, defaultDailyStruggles, defaultDailyBible
	if p != nil {
		if len(p.SpiritualGoals) > 0 {
			goals = strings.Join(p.SpiritualGoals, ", ")
		}
		if len(p.Struggles) > 0 {
			struggles = strings.Join(p.Struggles, ", ")
		}
		if p.PreferredBibleVersion != "" {
			bible = p.PreferredBibleVersion
		}
	}
	var b strings.Builder
	b.WriteString("You are a spiritual mentor. Generate a 'Daily Rhema' for a believer.\n\n")
	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Goals: %s\n", goals)
	fmt.Fprintf(&b, "- Struggles: %s\n", struggles)
	fmt.Fprintf(&b, "- Bible Version: %s\n\n", bible)
	b.WriteString("Output a JSON object with these exact keys:\n")
	fmt.Fprintf(&b, "- \"scripture_ref\": A formatted scripture reference (e.g., \"John 3:16 (%s)\").\n", bible)
	b.WriteString("- \"scripture_text\": The actual text of the verse.\n")
	b.WriteString("- \"content\": A short, 2-3 sentence encouraging word connecting the scripture to their goals/struggles.\n")
	b.WriteString("- \"prayer_focus\": A 1-sentence prayer declaration.\n")
	return b.String()
}

func (s *Service) findDaily(ctx context.Context, userID, date string) (*models.DailyRhema, error) {
	var r models.DailyRhema
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT user_id, date, scripture_ref, scripture_text, content, prayer_focus, created_at
		 FROM daily_rhema WHERE user_id = ? AND date = ?`), userID, date,
	).Scan(&r.UserID, &r.Date, &r.ScriptureRef, &r.ScriptureText, &r.Content, &r.PrayerFocus, &r.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup daily rhema: %w", err)
	}
	return &r, nil
}

func (s *Service) insertDaily(ctx context.Context, r *models.DailyRhema) error {
	query := `INSERT INTO daily_rhema (user_id, date, scripture_ref, scripture_text, content, prayer_focus, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (user_id, date) DO NOTHING`
	if s.driver == storage.DriverMySQL {
		query = `INSERT IGNORE INTO daily_rhema (user_id, date, scripture_ref, scripture_text, content, prayer_focus, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(query),
		r.UserID, r.Date, r.ScriptureRef, r.ScriptureText, r.Content, r.PrayerFocus, r.CreatedAt,
	); err != nil {
		return fmt.Errorf("store daily rhema: %w", err)
	}
	return nil
}
