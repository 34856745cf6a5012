package devotional

import (
	"context"
	"fmt"
	"strings"

	"rhema/internal/models"
)

type strategyRule struct {
	keywords []string
	strategy models.PrayerStrategy
}

// First matching rule wins.
var strategyRules = []strategyRule{
	{
		keywords: []string{"heal", "sick", "pain"},
		strategy: models.PrayerStrategy{
			Strategy:      "Activate the healing covenant. Speak life over the physical body and command symptoms to bow to the name of Jesus.",
			ScriptureRef:  "Isaiah 53:5",
			ScriptureText: "But He was wounded for our transgressions, He was bruised for our iniquities; The chastisement for our peace was upon Him, And by His stripes we are healed.",
		},
	},
	{
		keywords: []string{"money", "job", "finance", "provide"},
		strategy: models.PrayerStrategy{
			Strategy:      "Position yourself for provision. Sow a seed of faith and trust that God is your source, not the economy.",
			ScriptureRef:  "Philippians 4:19",
			ScriptureText: "And my God shall supply all your need according to His riches in glory by Christ Jesus.",
		},
	},
	{
		keywords: []string{"fear", "anxiety", "worry"},
		strategy: models.PrayerStrategy{
			Strategy:      "Disarm the spirit of fear. It has no legal right to your mind. Replace every fearful thought with a promise of God.",
			ScriptureRef:  "2 Timothy 1:7",
			ScriptureText: "For God has not given us a spirit of fear, but of power and of love and of a sound mind.",
		},
	},
	{
		keywords: []string{"family", "child", "marriage"},
		strategy: models.PrayerStrategy{
			Strategy:      "Build a hedge of protection. Plead the blood of Jesus over your household and decree peace within your walls.",
			ScriptureRef:  "Joshua 24:15",
			ScriptureText: "But as for me and my house, we will serve the Lord.",
		},
	},
}

var defaultStrategy = models.PrayerStrategy{
	Strategy:      "Stand firm in faith. Declare God's promises over this situation daily.",
	ScriptureRef:  "Hebrews 11:1",
	ScriptureText: "Now faith is the substance of things hoped for, the evidence of things not seen.",
}

// Strategize picks a strategy by keyword, case-insensitively.
func Strategize(requestText string) models.PrayerStrategy {
	lower := strings.ToLower(requestText)
	for _, rule := range strategyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.strategy
			}
		}
	}
	return defaultStrategy
}

// PrayerStrategy computes the strategy for requestText. When prayerID is set the
// strategy is recorded on that prayer, which must belong to userID; anonymous
// callers only get the computed strategy.
func (s *Service) PrayerStrategy(ctx context.Context, userID string, prayerID int64, requestText string) (models.PrayerStrategy, error) {
	if strings.TrimSpace(requestText) == "" {
		return models.PrayerStrategy{}, ErrEmptyRequest
	}
	strategy := Strategize(requestText)
	if prayerID <= 0 {
		return strategy, nil
	}
	if userID == "" {
		return models.PrayerStrategy{}, ErrSignInRequired
	}

	// mysql reports changed rows, not matched rows, so ownership is checked up front
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM prayers WHERE id = ? AND user_id = ?`), prayerID, userID).Scan(&one)
	if isNoRows(err) {
		return models.PrayerStrategy{}, fmt.Errorf("%w: %d", ErrPrayerNotFound, prayerID)
	}
	if err != nil {
		return models.PrayerStrategy{}, fmt.Errorf("load prayer %d: %w", prayerID, err)
	}

	s.log.Info("generating prayer strategy", "prayer_id", prayerID, "user_id", userID)
	if _, err := s.db.ExecContext(ctx, s.rebind(`UPDATE prayers SET ai_strategy = ?, scripture_ref = ? WHERE id = ? AND user_id = ?`),
		strategy.Strategy, strategy.ScriptureRef, prayerID, userID); err != nil {
		return models.PrayerStrategy{}, fmt.Errorf("update prayer %d: %w", prayerID, err)
	}
	return strategy, nil
}
