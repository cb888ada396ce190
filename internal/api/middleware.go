package api

import (
	"errors"
	"strings"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionKey    = "session"
	capabilityKey = "admin_capability"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth rejects requests without a valid bearer token.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortWithError(c, apperr.New(apperr.KindAuth, apperr.CodeUnauthenticated, "Sign in required").WithRedirect("/auth"))
			return
		}
		sess, err := h.svc.Auth.Authenticate(token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// optionalAuth attaches a session when a valid bearer token is present.
func (h *Handler) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			sess, err := h.svc.Auth.Authenticate(token)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.Set(sessionKey, sess)
		}
		c.Next()
	}
}

// requireAdmin runs the role check once per request and hands the resulting
// capability to the handlers.
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := currentSession(c)
		if !ok {
			abortWithError(c, apperr.New(apperr.KindAuth, apperr.CodeUnauthenticated, "Sign in required").WithRedirect("/auth"))
			return
		}

		capability, err := auth.RequireAdmin(c.Request.Context(), h.svc.Roles, sess)
		if err != nil {
			if errors.Is(err, auth.ErrNotAdmin) {
				h.logger.Info("Admin route denied", zap.String("user_id", sess.UserID), zap.String("path", c.FullPath()))
				abortWithError(c, apperr.New(apperr.KindForbidden, apperr.CodeNotAdmin, "Admin access required").WithRedirect("/"))
				return
			}
			abortWithError(c, apperr.External("Could not check admin role", err))
			return
		}
		c.Set(capabilityKey, capability)
		c.Next()
	}
}

func currentSession(c *gin.Context) (auth.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return auth.Session{}, false
	}
	sess, ok := v.(auth.Session)
	return sess, ok
}

// mustSession is only used behind requireAuth.
func mustSession(c *gin.Context) auth.Session {
	sess, _ := currentSession(c)
	return sess
}

func adminCapability(c *gin.Context) auth.AdminCapability {
	v, _ := c.Get(capabilityKey)
	capability, _ := v.(auth.AdminCapability)
	return capability
}
