package appointment

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/appointment"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type Handler struct {
	svc *appointment.Service
}

func NewHandler(svc *appointment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appts := r.Group("/appointments")
	{
		appts.GET("", h.ListAppointments)
		appts.GET("/:id", h.GetAppointment)
		appts.PATCH("/:id/:action", h.ApplyAction)
	}
}

// detail is an appointment with the actions the caller may take on it.
type detail struct {
	model.Appointment
	Actions []model.AppointmentAction `json:"actions"`
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filter := appointment.Filter{
		Status: model.AppointmentStatus(c.Query("status")),
		From:   model.NormalizeDate(c.Query("from")),
		To:     model.NormalizeDate(c.Query("to")),
	}
	if raw := c.Query("upcoming"); raw != "" {
		upcoming, err := strconv.ParseBool(raw)
		if err != nil {
			handler.Abort(c, apperrors.BadRequest("upcoming must be a boolean", err))
			return
		}
		filter.Upcoming = upcoming
	}

	sess := handler.CurrentSession(c)
	list, err := h.svc.List(c.Request.Context(), sess, filter)
	if err != nil {
		handler.Abort(c, err)
		return
	}
	user, _ := sess.User()
	out := make([]detail, 0, len(list))
	for _, a := range list {
		out = append(out, detail{Appointment: a, Actions: appointment.Allowed(user.Role, a)})
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(out))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	sess := handler.CurrentSession(c)
	appt, err := h.svc.Get(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		handler.Abort(c, err)
		return
	}
	user, _ := sess.User()
	c.JSON(http.StatusOK, handler.NewSuccessResponse(detail{Appointment: *appt, Actions: appointment.Allowed(user.Role, *appt)}))
}

func (h *Handler) ApplyAction(c *gin.Context) {
	var form appointment.ActionForm
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&form); err != nil {
			handler.Abort(c, apperrors.BadRequest("invalid request body", err))
			return
		}
	}

	updated, err := h.svc.Apply(c.Request.Context(), handler.CurrentSession(c), c.Param("id"),
		model.AppointmentAction(c.Param("action")), form)
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}
