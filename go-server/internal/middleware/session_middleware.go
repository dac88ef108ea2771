package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fonsecaaso/goodproducts/go-server/internal/token"
	"github.com/fonsecaaso/goodproducts/go-server/internal/workflow"
)

const (
	SessionCookie = "gp_session"
	sessionKey    = "session"
)

var ErrMissingSession = errors.New("session not found in context")

// SessionStore is the part of the session manager the middleware needs
type SessionStore interface {
	Create() *workflow.Session
	Get(id string) (*workflow.Session, bool)
}

// SessionOptions configure how page sessions travel in the cookie
type SessionOptions struct {
	Store  SessionStore
	Signer *token.Signer
	TTL    time.Duration
	Secure bool
}

// SessionMiddleware resolves the visitor's page session from the cookie and
// re-issues the cookie so its expiry slides with activity. It never starts a
// session: requests without a live one continue with none in the context.
func SessionMiddleware(opts SessionOptions) gin.HandlerFunc {
	logger := zap.L().With(zap.String("component", "session_middleware"))

	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(SessionCookie)
		if err != nil {
			c.Next()
			return
		}

		id, err := opts.Signer.ValidateToken(tokenStr)
		if err != nil {
			logger.Debug("Discarding invalid session cookie", zap.Error(err))
			c.Next()
			return
		}

		session, ok := opts.Store.Get(id)
		if !ok {
			c.Next()
			return
		}

		if err := issueCookie(c, opts, session); err != nil {
			logger.Warn("Failed to refresh session cookie", zap.Error(err))
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

// RequireSession starts a session for requests SessionMiddleware left without
// one. When minting is non-nil it must allow the client before a session is
// created; requests that already carry a session are not counted.
func RequireSession(opts SessionOptions, minting Limiter) gin.HandlerFunc {
	logger := zap.L().With(zap.String("component", "session_middleware"))

	return func(c *gin.Context) {
		if _, exists := c.Get(sessionKey); exists {
			c.Next()
			return
		}

		if minting != nil {
			allowed, err := minting.Allow(c.Request.Context(), c.ClientIP())
			if err != nil {
				logger.Warn("Rate limiter unavailable, allowing session start", zap.Error(err))
			} else if !allowed {
				rejectRateLimited(c, minting, logger)
				return
			}
		}

		session := opts.Store.Create()
		if err := issueCookie(c, opts, session); err != nil {
			logger.Error("Failed to sign session token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to start session",
				"code":  "SESSION_ERROR",
			})
			c.Abort()
			return
		}
		c.Set(sessionKey, session)

		c.Next()
	}
}

func issueCookie(c *gin.Context, opts SessionOptions, session *workflow.Session) error {
	tokenStr, err := opts.Signer.GenerateToken(session.ID())
	if err != nil {
		return err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, tokenStr, int(opts.TTL.Seconds()), "/", "", opts.Secure, true)
	return nil
}

// GetSessionFromContext returns ErrMissingSession when the request has no session
func GetSessionFromContext(c *gin.Context) (*workflow.Session, error) {
	value, exists := c.Get(sessionKey)
	if !exists {
		return nil, ErrMissingSession
	}

	session, ok := value.(*workflow.Session)
	if !ok {
		return nil, errors.New("invalid session type in context")
	}

	return session, nil
}
