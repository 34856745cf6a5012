package devotional

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"rhema/internal/config"
	"rhema/internal/models"
	"rhema/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite3", URL: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3", 768); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeGenerator struct {
	calls   int
	prompts []string
	reply   string
	err     error
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string, dst interface{}) error {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), dst)
}

type staticProfiles struct {
	profile *models.UserProfile
	err     error
}

func (s staticProfiles) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.profile, s.err
}

const goodReply = `{"scripture_ref":"Psalm 46:10 (NKJV)","scripture_text":"Be still, and know that I am God.","content":"Rest today.","prayer_focus":"I rest in You."}`

func TestDailyRhemaGeneratesOncePerDay(t *testing.T) {
	db := openTestDB(t)
	gen := &fakeGenerator{reply: goodReply}
	svc := NewService(db, "sqlite3", gen, staticProfiles{}, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC) }

	first, err := svc.DailyRhema(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("DailyRhema error: %v", err)
	}
	if first.Date != "2026-03-01" || first.ScriptureRef != "Psalm 46:10 (NKJV)" {
		t.Fatalf("unexpected rhema %+v", first)
	}
	second, err := svc.DailyRhema(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("second DailyRhema error: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected one generation, got %d", gen.calls)
	}
	if second.Content != first.Content {
		t.Fatalf("expected stored row, got %+v", second)
	}

	svc.now = func() time.Time { return time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC) }
	if _, err := svc.DailyRhema(context.Background(), "user_1"); err != nil {
		t.Fatalf("next day error: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("expected a new generation on the next day, got %d", gen.calls)
	}
}

func TestDailyRhemaKeepsFirstStoredRow(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, "sqlite3", &fakeGenerator{reply: goodReply}, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	if err := svc.insertDaily(context.Background(), &models.DailyRhema{
		UserID: "user_2", Date: "2026-03-01", ScriptureRef: "John 1:1", ScriptureText: "In the beginning",
		Content: "earlier", PrayerFocus: "amen", CreatedAt: svc.now(),
	}); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	row := &models.DailyRhema{UserID: "user_2", Date: "2026-03-01", ScriptureRef: "x", ScriptureText: "x", Content: "later", PrayerFocus: "x", CreatedAt: svc.now()}
	if err := svc.insertDaily(context.Background(), row); err != nil {
		t.Fatalf("conflicting insert should be ignored: %v", err)
	}
	got, err := svc.findDaily(context.Background(), "user_2", "2026-03-01")
	if err != nil || got == nil || got.Content != "earlier" {
		t.Fatalf("expected first row kept, got %+v err=%v", got, err)
	}
}

func TestDailyRhemaFailures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"generator error", &fakeGenerator{err: errors.New("quota")}},
		{"incomplete json", &fakeGenerator{reply: `{"scripture_ref":"John 3:16"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(openTestDB(t), "sqlite3", tt.gen, nil, nil)
			if _, err := svc.DailyRhema(context.Background(), "user_3"); !errors.Is(err, ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", err)
			}
		})
	}
}

func TestDailyPromptUsesProfileOrDefaults(t *testing.T) {
	def := DailyPrompt(nil)
	for _, want := range []string{"Goals: Growth in Grace", "Struggles: Daily Distractions", "Bible Version: KJV", "John 3:16 (KJV)"} {
		if !strings.Contains(def, want) {
			t.Fatalf("default prompt missing %q:\n%s", want, def)
		}
	}
	custom := DailyPrompt(&models.UserProfile{
		SpiritualGoals:        []string{"Prayer", "Fasting"},
		Struggles:             []string{"Fear"},
		PreferredBibleVersion: "ESV",
	})
	for _, want := range []string{"Goals: Prayer, Fasting", "Struggles: Fear", "John 3:16 (ESV)"} {
		if !strings.Contains(custom, want) {
			t.Fatalf("custom prompt missing %q:\n%s", want, custom)
		}
	}
}

func TestDailyRhemaProfileFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc := NewService(openTestDB(t), "sqlite3", gen, staticProfiles{err: errors.New("db down")}, nil)
	if _, err := svc.DailyRhema(context.Background(), "user_4"); err != nil {
		t.Fatalf("DailyRhema error: %v", err)
	}
	if !strings.Contains(gen.prompts[0], "Growth in Grace") {
		t.Fatalf("expected default goals in prompt")
	}
}

func TestStrategize(t *testing.T) {
	tests := []struct {
		text string
		ref  string
	}{
		{"Please pray for HEALING of my back", "Isaiah 53:5"},
		{"I lost my job", "Philippians 4:19"},
		{"so much anxiety lately", "2 Timothy 1:7"},
		{"my marriage is struggling", "Joshua 24:15"},
		{"sick child at home", "Isaiah 53:5"},
		{"guidance for the week", "Hebrews 11:1"},
	}
	for _, tt := range tests {
		if got := Strategize(tt.text); got.ScriptureRef != tt.ref {
			t.Fatalf("Strategize(%q) = %s, want %s", tt.text, got.ScriptureRef, tt.ref)
		}
	}
}

func TestPrayerStrategyUpdatesRow(t *testing.T) {
	db := openTestDB(t)
	res, err := db.Exec(`INSERT INTO prayers (user_id, request_text, created_at) VALUES (?, ?, ?)`, "user_5", "fear of tomorrow", time.Now())
	if err != nil {
		t.Fatalf("insert prayer: %v", err)
	}
	id, _ := res.LastInsertId()
	svc := NewService(db, "sqlite3", nil, nil, nil)

	got, err := svc.PrayerStrategy(context.Background(), "user_5", id, "fear of tomorrow")
	if err != nil {
		t.Fatalf("PrayerStrategy error: %v", err)
	}
	var strategy, ref string
	if err := db.QueryRow(`SELECT ai_strategy, scripture_ref FROM prayers WHERE id = ?`, id).Scan(&strategy, &ref); err != nil {
		t.Fatalf("read prayer: %v", err)
	}
	if strategy != got.Strategy || ref != "2 Timothy 1:7" {
		t.Fatalf("row not updated: %q %q", strategy, ref)
	}

	if _, err := svc.PrayerStrategy(context.Background(), "user_5", id+100, "fear"); !errors.Is(err, ErrPrayerNotFound) {
		t.Fatalf("expected ErrPrayerNotFound, got %v", err)
	}
	if _, err := svc.PrayerStrategy(context.Background(), "", 0, "  "); !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("expected ErrEmptyRequest, got %v", err)
	}
	if got, err := svc.PrayerStrategy(context.Background(), "", 0, "money"); err != nil || got.ScriptureRef != "Philippians 4:19" {
		t.Fatalf("stateless strategy failed: %+v %v", got, err)
	}
}

func TestPrayerStrategyOnlyUpdatesOwnPrayer(t *testing.T) {
	db := openTestDB(t)
	res, err := db.Exec(`INSERT INTO prayers (user_id, request_text, created_at) VALUES (?, ?, ?)`, "owner", "healing for my back", time.Now())
	if err != nil {
		t.Fatalf("insert prayer: %v", err)
	}
	id, _ := res.LastInsertId()
	svc := NewService(db, "sqlite3", nil, nil, nil)

	if _, err := svc.PrayerStrategy(context.Background(), "someone_else", id, "money"); !errors.Is(err, ErrPrayerNotFound) {
		t.Fatalf("expected ErrPrayerNotFound for another user's prayer, got %v", err)
	}
	if _, err := svc.PrayerStrategy(context.Background(), "", id, "money"); !errors.Is(err, ErrSignInRequired) {
		t.Fatalf("expected ErrSignInRequired for anonymous write, got %v", err)
	}
	var strategy sql.NullString
	if err := db.QueryRow(`SELECT ai_strategy FROM prayers WHERE id = ?`, id).Scan(&strategy); err != nil {
		t.Fatalf("read prayer: %v", err)
	}
	if strategy.Valid {
		t.Fatalf("prayer was modified by a non-owner: %q", strategy.String)
	}
}
