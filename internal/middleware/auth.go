package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/routing"
	"github.com/jwalitptl/clinic-portal/internal/session"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

// SessionCookie carries the portal session id for browser clients.
const SessionCookie = "portal_session"

type AuthMiddleware struct {
	sessions *session.Manager
}

func NewAuthMiddleware(sessions *session.Manager) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// SessionID reads the portal session id from the bearer header or the
// session cookie.
func SessionID(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if id, err := c.Cookie(SessionCookie); err == nil {
		return id
	}
	return ""
}

// Authenticate restores the portal session and attaches it to the context.
// Requests without a live session are answered 401 with a /login redirect.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := m.sessions.Get(c.Request.Context(), SessionID(c))
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewRedirectResponse("session expired or missing", routing.LoginPath))
				return
			}
			handler.Abort(c, err)
			return
		}
		c.Set(handler.ContextSession, sess)
		c.Next()
	}
}

// Identify attaches the session when there is one and never rejects.
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := SessionID(c); id != "" {
			if sess, err := m.sessions.Get(c.Request.Context(), id); err == nil {
				c.Set(handler.ContextSession, sess)
			}
		}
		c.Next()
	}
}

// RequireRole admits only the given roles; others get 403 and the
// dashboard redirect, as the page guard does.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := handler.CurrentSession(c)
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewRedirectResponse("session expired or missing", routing.LoginPath))
			return
		}
		user, ok := sess.User()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewRedirectResponse("session expired or missing", routing.LoginPath))
			return
		}
		if !routing.HasRole(roles, user.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, handler.NewRedirectResponse("permission denied", routing.DashboardPath))
			return
		}
		c.Next()
	}
}

// RequirePage admits the roles the page guard allows on page.
func (m *AuthMiddleware) RequirePage(page string) gin.HandlerFunc {
	return m.RequireRole(routing.RolesFor(page)...)
}
