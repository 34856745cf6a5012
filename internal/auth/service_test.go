package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"rhema/internal/config"
	"rhema/internal/rag"
	"rhema/internal/redis"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerifyToken(t *testing.T) {
	svc := NewService("test-secret", nil, nil)
	token, err := svc.IssueToken(rag.Caller{UserID: "user_1", Role: rag.RoleMinister, Tier: "pro"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	caller, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if caller.UserID != "user_1" || caller.Role != rag.RoleMinister || caller.Tier != "pro" {
		t.Fatalf("unexpected caller %+v", caller)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	svc := NewService("test-secret", nil, nil)
	other := NewService("other-secret", nil, nil)
	forged, _ := other.IssueToken(rag.Caller{UserID: "user_1"}, time.Hour)

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := svc.IssueToken(rag.Caller{UserID: "user_1"}, time.Hour)
	svc.now = time.Now

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user_1"}).SignedString([]byte("test-secret"))
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", forged},
		{"expired", expired},
		{"missing exp", noExp},
		{"missing subject", noSub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Verify(context.Background(), tt.token); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestDisabledServiceRejectsEverything(t *testing.T) {
	svc := NewService("", nil, nil)
	if svc.Enabled() {
		t.Fatalf("service without secret should be disabled")
	}
	if _, err := svc.IssueToken(rag.Caller{UserID: "u"}, time.Hour); err == nil {
		t.Fatalf("expected issue error without secret")
	}
	if _, err := svc.Verify(context.Background(), "anything"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOptionalMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService("test-secret", nil, nil)
	token, _ := svc.IssueToken(rag.Caller{UserID: "user_9", Role: rag.RoleDisciple}, time.Hour)

	router := gin.New()
	var got rag.RequestContext
	router.GET("/", svc.OptionalMiddleware(), func(c *gin.Context) {
		got = RequestContextFrom(c)
		c.Status(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		setup  func(*http.Request)
		wantID string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "user_9"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "auth_token", Value: token}) }, "user_9"},
		{"invalid token stays anonymous", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, ""},
		{"no token", func(r *http.Request) {}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = rag.RequestContext{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusNoContent {
				t.Fatalf("unexpected status %d", rec.Code)
			}
			if got.Caller.UserID != tt.wantID {
				t.Fatalf("want user %q, got %+v", tt.wantID, got.Caller)
			}
			if got.RequestID == "" || rec.Header().Get("X-Request-ID") != got.RequestID {
				t.Fatalf("request id not propagated: %q vs %q", got.RequestID, rec.Header().Get("X-Request-ID"))
			}
		})
	}
}

func TestRequireMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService("test-secret", nil, nil)
	token, _ := svc.IssueToken(rag.Caller{UserID: "user_3"}, time.Hour)

	router := gin.New()
	router.GET("/", svc.RequireMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, RequestContextFrom(c).Caller.UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "3f1c2a0e-8b8e-4c8a-9a55-2f0d2b9b7c11")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "user_3" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") != "3f1c2a0e-8b8e-4c8a-9a55-2f0d2b9b7c11" {
		t.Fatalf("client request id not echoed")
	}
}

func TestVerifyUsesRedisCache(t *testing.T) {
	client := newRedisClient(t)
	defer client.Close()
	svc := NewService("test-secret", client, nil)
	token, _ := svc.IssueToken(rag.Caller{UserID: "cached_user", Role: rag.RoleDisciple}, time.Hour)
	if _, err := svc.Verify(context.Background(), token); err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	ttl, err := client.TTL(context.Background(), cacheKey(token))
	if err != nil || ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected cached token with ttl <= 1h, got %v err=%v", ttl, err)
	}

	svc.secret = []byte("rotated")
	caller, err := svc.Verify(context.Background(), token)
	if err != nil || caller.UserID != "cached_user" {
		t.Fatalf("expected cached caller, got %+v err=%v", caller, err)
	}
	_ = client.Del(context.Background(), cacheKey(token))
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(config.RedisConfig{Host: host, Port: port})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	return client
}
