package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"rhema/internal/auth"
	"rhema/internal/logger"
	"rhema/internal/models"
	"rhema/internal/rag"
	"rhema/internal/service/devotional"
	"rhema/internal/worker"
)

// Answerer opens an answer stream for a query. rag.Pipeline satisfies it.
type Answerer interface {
	Answer(ctx context.Context, rc rag.RequestContext, query string) (*rag.Answer, error)
}

// Devotions serves the daily rhema and prayer strategy routes.
type Devotions interface {
	DailyRhema(ctx context.Context, userID string) (*models.DailyRhema, error)
	PrayerStrategy(ctx context.Context, userID string, prayerID int64, requestText string) (models.PrayerStrategy, error)
}

// Profiles reads and saves personalization settings. profile.CachedStore satisfies it.
type Profiles interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	Upsert(ctx context.Context, p *models.UserProfile) error
}

// StreamAdmitter bounds concurrent answer streams. worker.Dispatcher satisfies it.
type StreamAdmitter interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type Deps struct {
	Pipeline     Answerer
	Devotions    Devotions
	Profiles     Profiles
	Auth         *auth.Service
	Streams      StreamAdmitter
	Timeout      time.Duration
	AllowOrigins []string
	Logger       *logger.Logger
}

// Handler wires HTTP routes to the query pipeline and devotional services.
type Handler struct {
	pipeline     Answerer
	devotions    Devotions
	profiles     Profiles
	auth         *auth.Service
	streams      StreamAdmitter
	timeout      time.Duration
	allowOrigins []string
	log          *logger.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Auth == nil {
		d.Auth = auth.NewService("", nil, d.Logger)
	}
	if d.Streams == nil {
		d.Streams = worker.NewDispatcher(worker.DispatcherConfig{MaxWorkers: 32}, nil, d.Logger)
	}
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Minute
	}
	return &Handler{
		pipeline:     d.Pipeline,
		devotions:    d.Devotions,
		profiles:     d.Profiles,
		auth:         d.Auth,
		streams:      d.Streams,
		timeout:      d.Timeout,
		allowOrigins: d.AllowOrigins,
		log:          d.Logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(cors.New(h.corsConfig()))
	router.GET("/healthz", h.health)

	optional := h.auth.OptionalMiddleware()
	router.POST("/functions/v1/chat-with-rhema", optional, h.chat)

	api := router.Group("/api")
	api.POST("/chat", optional, h.chat)
	api.POST("/prayers/strategy", optional, h.prayerStrategy)
	required := h.auth.RequireMiddleware()
	api.POST("/daily-rhema", required, h.dailyRhema)
	api.GET("/profile", required, h.getProfile)
	api.PUT("/profile", required, h.saveProfile)
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"authorization", "x-client-info", "apikey", "content-type"},
		ExposeHeaders: []string{headerContextMatches, headerRequestID, headerStreamStatus, headerStreamError},
		MaxAge:        12 * time.Hour,
	}
	var origins []string
	for _, o := range h.allowOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			origins = nil
			break
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) dailyRhema(c *gin.Context) {
	rc := auth.RequestContextFrom(c)
	if h.devotions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "daily rhema is not configured"})
		return
	}
	row, err := h.devotions.DailyRhema(c.Request.Context(), rc.Caller.UserID)
	if err != nil {
		h.log.Error("daily rhema failed", "request_id", rc.RequestID, "user_id", rc.Caller.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not prepare your daily rhema"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *Handler) getProfile(c *gin.Context) {
	rc := auth.RequestContextFrom(c)
	if h.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profiles are not configured"})
		return
	}
	p, err := h.profiles.Get(c.Request.Context(), rc.Caller.UserID)
	if err != nil {
		h.log.Error("load profile failed", "request_id", rc.RequestID, "user_id", rc.Caller.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load your profile"})
		return
	}
	if p == nil {
		p = &models.UserProfile{UserID: rc.Caller.UserID}
	}
	c.JSON(http.StatusOK, p)
}

type profileRequest struct {
	SpiritualGoals        []string `json:"spiritual_goals"`
	Struggles             []string `json:"struggles"`
	FavoriteMinisters     []string `json:"favorite_ministers"`
	PreferredBibleVersion string   `json:"preferred_bible_version"`
}

// saveProfile replaces the caller's profile; the id always comes from the token.
func (h *Handler) saveProfile(c *gin.Context) {
	rc := auth.RequestContextFrom(c)
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if h.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profiles are not configured"})
		return
	}
	p := &models.UserProfile{
		UserID:                rc.Caller.UserID,
		SpiritualGoals:        req.SpiritualGoals,
		Struggles:             req.Struggles,
		FavoriteMinisters:     req.FavoriteMinisters,
		PreferredBibleVersion: strings.TrimSpace(req.PreferredBibleVersion),
	}
	if err := h.profiles.Upsert(c.Request.Context(), p); err != nil {
		h.log.Error("save profile failed", "request_id", rc.RequestID, "user_id", rc.Caller.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save your profile"})
		return
	}
	c.JSON(http.StatusOK, p)
}

type prayerStrategyRequest struct {
	PrayerID    int64  `json:"prayer_id"`
	RequestText string `json:"request_text"`
}

func (h *Handler) prayerStrategy(c *gin.Context) {
	rc := auth.RequestContextFrom(c)
	var req prayerStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if h.devotions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prayer strategy is not configured"})
		return
	}
	strategy, err := h.devotions.PrayerStrategy(c.Request.Context(), rc.Caller.UserID, req.PrayerID, req.RequestText)
	if err != nil {
		switch {
		case errors.Is(err, devotional.ErrEmptyRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, devotional.ErrSignInRequired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, devotional.ErrPrayerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "prayer not found"})
		default:
			h.log.Error("prayer strategy failed", "request_id", rc.RequestID, "prayer_id", req.PrayerID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save prayer strategy"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"strategy":      strategy.Strategy,
		"scriptureRef":  strategy.ScriptureRef,
		"scriptureText": strategy.ScriptureText,
	})
}
