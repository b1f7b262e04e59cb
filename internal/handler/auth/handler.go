package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/routing"
	"github.com/jwalitptl/clinic-portal/internal/session"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type Handler struct {
	sessions     *session.Manager
	secureCookie bool
}

func NewHandler(sessions *session.Manager, secureCookie bool) *Handler {
	return &Handler{sessions: sessions, secureCookie: secureCookie}
}

// RegisterRoutes mounts login on r. me and logout need a session and are
// mounted by RegisterProtected.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/login", h.Login)
}

func (h *Handler) RegisterProtected(r *gin.RouterGroup) {
	r.GET("/auth/me", h.Me)
	r.POST("/auth/logout", h.Logout)
}

// RegisterNavigation mounts the page guard; r must identify, not require,
// the session.
func (h *Handler) RegisterNavigation(r *gin.RouterGroup) {
	r.GET("/navigation", h.Navigate)
}

type loginResponse struct {
	SessionID string     `json:"sessionId"`
	User      model.User `json:"user"`
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Abort(c, apperrors.BadRequest("invalid login request", err))
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handler.Abort(c, err)
		return
	}
	user, _ := sess.User()

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sess.ID(), 0, "/", "", h.secureCookie, true)
	resp := handler.NewSuccessResponse(loginResponse{SessionID: sess.ID(), User: user})
	resp.Redirect = routing.DashboardPath
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	if sess := handler.CurrentSession(c); sess != nil {
		sess.Logout(c.Request.Context())
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookie, true)
	resp := handler.NewSuccessResponse("logged out successfully")
	resp.Redirect = routing.LoginPath
	c.JSON(http.StatusOK, resp)
}

// Me re-validates the session against the clinic API and returns the
// refreshed user.
func (h *Handler) Me(c *gin.Context) {
	sess := handler.CurrentSession(c)
	ok, err := sess.CheckAuth(c.Request.Context())
	if err != nil {
		handler.Abort(c, err)
		return
	}
	if !ok {
		redirect, _ := sess.TakeRedirect()
		if redirect == "" {
			redirect = routing.LoginPath
		}
		c.JSON(http.StatusUnauthorized, handler.NewRedirectResponse("session expired", redirect))
		return
	}
	user, _ := sess.User()
	c.JSON(http.StatusOK, handler.NewSuccessResponse(user))
}

func (h *Handler) Navigate(c *gin.Context) {
	var user *model.User
	if sess := handler.CurrentSession(c); sess != nil {
		if u, ok := sess.User(); ok {
			user = &u
		}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(routing.Guard(c.Query("path"), user)))
}
