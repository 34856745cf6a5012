package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"rhema/internal/logger"
	"rhema/internal/rag"
	"rhema/internal/redis"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized wraps every token rejection.
var ErrUnauthorized = errors.New("unauthorized")

// Claims is the JWT payload issued by the web app.
type Claims struct {
	Role string `json:"role,omitempty"`
	Tier string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// Service verifies HS256 bearer tokens and resolves them to a rag.Caller.
// Verified tokens are cached in redis until they expire.
type Service struct {
	secret     []byte
	cache      *redis.Client
	log        *logger.Logger
	cookieName string
	headerName string
	now        func() time.Time
}

func NewService(secret string, cache *redis.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		secret:     []byte(secret),
		cache:      cache,
		log:        log,
		cookieName: "auth_token",
		headerName: "Authorization",
		now:        time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (s *Service) Enabled() bool {
	return len(s.secret) > 0
}

// IssueToken signs a token for caller valid for ttl.
func (s *Service) IssueToken(caller rag.Caller, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", errors.New("jwt secret not configured")
	}
	if caller.UserID == "" {
		return "", errors.New("invalid user id")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := s.now()
	claims := Claims{
		Role: string(caller.Role),
		Tier: caller.Tier,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

type cachedCaller struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Tier   string `json:"tier"`
}

// Verify validates the token signature and expiry and returns its caller.
func (s *Service) Verify(ctx context.Context, token string) (rag.Caller, error) {
	if token == "" {
		return rag.Caller{}, fmt.Errorf("%w: token required", ErrUnauthorized)
	}
	if !s.Enabled() {
		return rag.Caller{}, fmt.Errorf("%w: authentication disabled", ErrUnauthorized)
	}
	key := cacheKey(token)
	if s.cache != nil {
		var cc cachedCaller
		err := s.cache.GetJSON(ctx, key, &cc)
		if err == nil {
			return rag.Caller{UserID: cc.UserID, Role: rag.ParseRole(cc.Role), Tier: cc.Tier}, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warn("token cache read failed", "error", err)
		}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return rag.Caller{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return rag.Caller{}, fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	caller := rag.Caller{UserID: claims.Subject, Role: rag.ParseRole(claims.Role), Tier: claims.Tier}

	if s.cache != nil && claims.ExpiresAt != nil {
		if ttl := claims.ExpiresAt.Time.Sub(s.now()); ttl > 0 {
			cc := cachedCaller{UserID: caller.UserID, Role: string(caller.Role), Tier: caller.Tier}
			if err := s.cache.SetJSON(ctx, key, cc, ttl); err != nil {
				s.log.Warn("token cache write failed", "error", err)
			}
		}
	}
	return caller, nil
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "auth:jwt:" + hex.EncodeToString(sum[:])
}
