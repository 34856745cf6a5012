package models

import "time"

// DailyRhema is the per-user devotional generated once per calendar day.
type DailyRhema struct {
	UserID        string    `json:"user_id"`
	Date          string    `json:"date"`
	ScriptureRef  string    `json:"scripture_ref"`
	ScriptureText string    `json:"scripture_text"`
	Content       string    `json:"content"`
	PrayerFocus   string    `json:"prayer_focus"`
	CreatedAt     time.Time `json:"created_at"`
}

// PrayerStrategy is the guidance attached to a prayer request.
type PrayerStrategy struct {
	Strategy      string `json:"strategy"`
	ScriptureRef  string `json:"scripture_ref"`
	ScriptureText string `json:"scripture_text"`
}
