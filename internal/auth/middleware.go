package auth

import (
	"net/http"
	"strings"

	"rhema/internal/rag"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestContextKey = "rhema_request_context"
	requestIDHeader   = "X-Request-ID"
)

// OptionalMiddleware resolves the caller when a valid token is present.
// Missing or invalid tokens continue as an anonymous caller.
func (s *Service) OptionalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := s.newRequestContext(c)
		if token := s.extractToken(c); token != "" {
			caller, err := s.Verify(c.Request.Context(), token)
			if err != nil {
				s.log.Warn("ignoring invalid token", "request_id", rc.RequestID, "error", err)
			} else {
				rc.Caller = caller
			}
		}
		c.Set(requestContextKey, rc)
		c.Next()
	}
}

// RequireMiddleware rejects requests without a valid token.
func (s *Service) RequireMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rc := s.newRequestContext(c)
		token := s.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		caller, err := s.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		rc.Caller = caller
		c.Set(requestContextKey, rc)
		c.Next()
	}
}

// RequestContextFrom returns the context stored by either middleware. Routes
// mounted without one get an anonymous context with a fresh request id.
func RequestContextFrom(c *gin.Context) rag.RequestContext {
	if val, ok := c.Get(requestContextKey); ok {
		if rc, ok := val.(rag.RequestContext); ok {
			return rc
		}
	}
	return rag.RequestContext{RequestID: uuid.NewString()}
}

func (s *Service) newRequestContext(c *gin.Context) rag.RequestContext {
	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return rag.RequestContext{RequestID: id}
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if token, err := c.Cookie(s.cookieName); err == nil && token != "" {
		return token
	}
	return ""
}
