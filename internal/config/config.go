package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks a missing or invalid required setting. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

// Config represents runtime configuration for the server and the offline tools.
type Config struct {
	Server    ServerConfig              `json:"server" yaml:"server"`
	Database  DatabaseConfig            `json:"database" yaml:"database"`
	AI        AIConfig                  `json:"ai" yaml:"ai"`
	Providers map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Retrieval RetrievalConfig           `json:"retrieval" yaml:"retrieval"`
	Ingest    IngestConfig              `json:"ingest" yaml:"ingest"`
	Redis     RedisConfig               `json:"redis" yaml:"redis"`
	Auth      AuthConfig                `json:"auth" yaml:"auth"`
	LogMode   string                    `json:"log_mode" yaml:"log_mode"`
}

type ServerConfig struct {
	Address        string   `json:"address" yaml:"address"`
	RequestTimeout int      `json:"request_timeout_seconds" yaml:"request_timeout_seconds" validate:"gte=0"`
	MaxStreams     int      `json:"max_streams" yaml:"max_streams" validate:"gte=0"`
	QueueSize      int      `json:"queue_size" yaml:"queue_size" validate:"gte=0"`
	AllowOrigins   []string `json:"allow_origins" yaml:"allow_origins"`
}

// DatabaseConfig describes the document store. URL is a DSN for the chosen
// driver; Key is the store credential and is injected as the password when
// the DSN does not carry one.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver" validate:"oneof=sqlite3 mysql postgres"`
	URL    string `json:"url" yaml:"url"`
	Key    string `json:"key" yaml:"key"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// AIConfig selects the generation provider and the embedding model.
type AIConfig struct {
	Provider       string `json:"provider" yaml:"provider" validate:"oneof=gemini openai claude"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	EmbedModel     string `json:"embed_model" yaml:"embed_model"`
	EmbedDimension int    `json:"embed_dimension" yaml:"embed_dimension" validate:"gt=0"`
}

type RetrievalConfig struct {
	MatchThreshold float64 `json:"match_threshold" yaml:"match_threshold" validate:"gte=0,lte=1"`
	MatchCount     int     `json:"match_count" yaml:"match_count" validate:"gt=0"`
}

type IngestConfig struct {
	LibraryDir  string `json:"library_dir" yaml:"library_dir"`
	ChunkSize   int    `json:"chunk_size" yaml:"chunk_size" validate:"gt=0"`
	Overlap     int    `json:"overlap" yaml:"overlap" validate:"gte=0,ltfield=ChunkSize"`
	RateLimitMS int    `json:"rate_limit_ms" yaml:"rate_limit_ms" validate:"gte=0"`
}

// RedisConfig is optional; an empty Host disables caching.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DB       int    `json:"db" yaml:"db"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
}

const (
	DefaultAddress        = ":8090"
	DefaultEmbedModel     = "text-embedding-004"
	DefaultEmbedDimension = 768
	DefaultChatModel      = "gemini-2.5-flash-lite"
	DefaultMatchThreshold = 0.5
	DefaultMatchCount     = 5
	DefaultChunkSize      = 1000
	DefaultOverlap        = 100
	DefaultRateLimit      = 200 * time.Millisecond
)

// Load reads configuration from the provided path (defaults to config.json).
// A missing file yields defaults; the environment is applied on top either way.
func Load(path string) (*Config, error) {
	loadDotEnv()
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := newDefaults()
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if cfg.Database.Driver == "sqlite3" && cfg.Database.URL != "" && cfg.Database.URL != ":memory:" &&
		!strings.HasPrefix(cfg.Database.URL, "file:") && !filepath.IsAbs(cfg.Database.URL) {
		cfg.Database.URL = filepath.Join(filepath.Dir(absPath), cfg.Database.URL)
	}
	if cfg.Ingest.LibraryDir != "" && !filepath.IsAbs(cfg.Ingest.LibraryDir) {
		cfg.Ingest.LibraryDir = filepath.Join(filepath.Dir(absPath), cfg.Ingest.LibraryDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

// loadDotEnv reads .env.local then .env; variables already set win.
func loadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.Server.Address, "RHEMA_ADDR")
	setString(&cfg.Database.Driver, "RHEMA_DB_DRIVER")
	setString(&cfg.Database.URL, "RHEMA_DATABASE_URL", "SUPABASE_URL")
	setString(&cfg.Database.Key, "RHEMA_DATABASE_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	setString(&cfg.AI.APIKey, "GEMINI_API_KEY", "GOOGLE_AI_API_KEY")
	setString(&cfg.AI.Provider, "RHEMA_AI_PROVIDER")
	setString(&cfg.Auth.JWTSecret, "RHEMA_JWT_SECRET")
	setString(&cfg.Ingest.LibraryDir, "RHEMA_LIBRARY_DIR")
	setString(&cfg.LogMode, "RHEMA_LOG_MODE")

	if addr := strings.TrimSpace(os.Getenv("RHEMA_REDIS_ADDR")); addr != "" {
		host, port, ok := strings.Cut(addr, ":")
		cfg.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Redis.Port = p
			}
		}
	}
}

// newDefaults presets the settings where zero is a legal value, so they only
// take the default when the file leaves them out.
func newDefaults() *Config {
	return &Config{
		Retrieval: RetrievalConfig{MatchThreshold: DefaultMatchThreshold},
		Ingest: IngestConfig{
			Overlap:     DefaultOverlap,
			RateLimitMS: int(DefaultRateLimit / time.Millisecond),
		},
	}
}

// applyDefaults fills settings that are invalid when zero.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120
	}
	if cfg.Server.MaxStreams == 0 {
		cfg.Server.MaxStreams = 32
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Driver == "sqlite" {
		cfg.Database.Driver = "sqlite3"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = DefaultEmbedModel
	}
	if cfg.AI.EmbedDimension == 0 {
		cfg.AI.EmbedDimension = DefaultEmbedDimension
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if p := cfg.Providers["gemini"]; p.Model == "" {
		p.Model = DefaultChatModel
		cfg.Providers["gemini"] = p
	}
	if cfg.Retrieval.MatchCount == 0 {
		cfg.Retrieval.MatchCount = DefaultMatchCount
	}
	if cfg.Ingest.LibraryDir == "" {
		cfg.Ingest.LibraryDir = filepath.Join("data", "library")
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = DefaultChunkSize
	}
}

var validate = validator.New()

// Validate checks structural constraints on the loaded configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid %s", ErrConfiguration, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// RequireCredentials reports every external credential the pipeline cannot run without:
// the document store URL and key, and the embedding model key. A local sqlite store
// carries no key.
func (c *Config) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "database url (RHEMA_DATABASE_URL)")
	}
	if c.Database.Driver != "sqlite3" && strings.TrimSpace(c.Database.Key) == "" {
		missing = append(missing, "database key (RHEMA_DATABASE_KEY)")
	}
	if strings.TrimSpace(c.AI.APIKey) == "" {
		missing = append(missing, "embedding api key (GEMINI_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// ProviderFor returns the generation settings for the configured provider.
// The gemini provider falls back to the shared AI key.
func (c *Config) ProviderFor(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.AI.Provider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: provider %s not configured", ErrConfiguration, name)
	}
	if p.APIKey == "" && name == "gemini" {
		p.APIKey = c.AI.APIKey
	}
	if p.APIKey == "" {
		return ProviderConfig{}, fmt.Errorf("%w: api key for provider %s", ErrConfiguration, name)
	}
	return p, nil
}

// RateLimit returns the delay between consecutive embedding calls during ingestion.
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.Ingest.RateLimitMS) * time.Millisecond
}

// RequestTimeout bounds a single query request, including its stream.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}
