package models

import "time"

// UserProfile holds the personalization fields read at query time.
type UserProfile struct {
	UserID                string    `json:"id"`
	SpiritualGoals        []string  `json:"spiritual_goals"`
	Struggles             []string  `json:"struggles"`
	FavoriteMinisters     []string  `json:"favorite_ministers"`
	PreferredBibleVersion string    `json:"preferred_bible_version"`
	UpdatedAt             time.Time `json:"updated_at"`
}
