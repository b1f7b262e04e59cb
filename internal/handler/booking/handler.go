package booking

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/availability"
	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/service/booking"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type Handler struct {
	svc *booking.Service
	now func() time.Time
}

func NewHandler(svc *booking.Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	b := r.Group("/booking")
	{
		b.POST("", h.Start)
		b.GET("/:id", h.Get)
		b.DELETE("/:id", h.Discard)
		b.GET("/:id/calendar", h.Calendar)
		b.POST("/:id/doctors/reload", h.ReloadDoctors)
		b.POST("/:id/doctor", h.SelectDoctor)
		b.POST("/:id/service", h.SelectService)
		b.POST("/:id/date", h.SelectDate)
		b.POST("/:id/time", h.SelectTime)
		b.POST("/:id/reason", h.SubmitReason)
		b.POST("/:id/confirm", h.Confirm)
		b.POST("/:id/back", h.Back)
		b.POST("/:id/next", h.Next)
	}
}

func (h *Handler) wizard(c *gin.Context) (*booking.Wizard, bool) {
	sess := handler.CurrentSession(c)
	w, err := h.svc.Get(sess.ID(), c.Param("id"))
	if err != nil {
		handler.Abort(c, err)
		return nil, false
	}
	return w, true
}

// respond answers with the wizard state, or with err when the action
// failed. The error is also kept in the wizard's step.
func respond(c *gin.Context, w *booking.Wizard, status int, err error) {
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(status, handler.NewSuccessResponse(w.Snapshot()))
}

// Start opens a wizard. A failed doctor load still creates it, so the
// client can retry through doctors/reload.
func (h *Handler) Start(c *gin.Context) {
	w, err := h.svc.Start(c.Request.Context(), handler.CurrentSession(c))
	if w == nil {
		handler.Abort(c, err)
		return
	}
	resp := handler.NewSuccessResponse(w.Snapshot())
	if err != nil {
		resp.Message = apperrors.UserMessage(err)
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Get(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, http.StatusOK, nil)
}

func (h *Handler) Discard(c *gin.Context) {
	h.svc.Discard(handler.CurrentSession(c).ID(), c.Param("id"))
	c.JSON(http.StatusOK, handler.NewSuccessResponse("booking discarded"))
}

// Calendar renders the month grid of the select-date step. months moves
// the view forward from the month of the selection, or of today.
func (h *Handler) Calendar(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	snap := w.Snapshot()
	cal := availability.NewCalendar(h.now(),
		availability.WithAllowed(snap.AvailableDates),
		availability.WithSelected(snap.Date))
	if months, err := strconv.Atoi(c.DefaultQuery("months", "0")); err == nil {
		for i := 0; i < months && i < 12; i++ {
			cal.NextMonth()
		}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"title": cal.Title(),
		"weeks": cal.Grid(),
	}))
}

func (h *Handler) ReloadDoctors(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	_, err := w.LoadDoctors(c.Request.Context())
	respond(c, w, http.StatusOK, err)
}

type selectRequest struct {
	DoctorID  string `json:"doctorId"`
	ServiceID string `json:"serviceId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

func bind(c *gin.Context) (selectRequest, bool) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Abort(c, apperrors.BadRequest("invalid request body", err))
		return req, false
	}
	return req, true
}

func (h *Handler) SelectDoctor(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	req, ok := bind(c)
	if !ok {
		return
	}
	respond(c, w, http.StatusOK, w.SelectDoctor(c.Request.Context(), req.DoctorID))
}

func (h *Handler) SelectService(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	req, ok := bind(c)
	if !ok {
		return
	}
	respond(c, w, http.StatusOK, w.SelectService(c.Request.Context(), req.ServiceID))
}

func (h *Handler) SelectDate(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	req, ok := bind(c)
	if !ok {
		return
	}
	respond(c, w, http.StatusOK, w.SelectDate(c.Request.Context(), req.Date))
}

func (h *Handler) SelectTime(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	req, ok := bind(c)
	if !ok {
		return
	}
	respond(c, w, http.StatusOK, w.SelectSlot(req.Time))
}

func (h *Handler) SubmitReason(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	var form booking.ReasonForm
	if err := c.ShouldBindJSON(&form); err != nil {
		handler.Abort(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	respond(c, w, http.StatusOK, w.SubmitReason(form))
}

func (h *Handler) Confirm(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	_, err := w.Confirm(c.Request.Context())
	respond(c, w, http.StatusCreated, err)
}

func (h *Handler) Back(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, http.StatusOK, w.Back())
}

func (h *Handler) Next(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, http.StatusOK, w.Next())
}
