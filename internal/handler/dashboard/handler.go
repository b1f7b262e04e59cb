package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/dashboard"
)

type Handler struct {
	svc *dashboard.Service
}

func NewHandler(svc *dashboard.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.Get)
}

type view struct {
	User    model.User              `json:"user"`
	Doctor  *dashboard.DoctorStats  `json:"doctor,omitempty"`
	Patient *dashboard.PatientStats `json:"patient,omitempty"`
}

// Get returns the dashboard of the session's role. Admins get their
// identity only.
func (h *Handler) Get(c *gin.Context) {
	sess := handler.CurrentSession(c)
	user, _ := sess.User()
	out := view{User: user}

	var err error
	switch user.Role {
	case model.RoleDoctor:
		out.Doctor, err = h.svc.Doctor(c.Request.Context(), sess)
	case model.RolePatient:
		out.Patient, err = h.svc.Patient(c.Request.Context(), sess)
	}
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(out))
}
