package schedule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/schedule"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

// Handler serves the doctor's schedule and service screens. Every request
// loads fresh lists from the API; nothing is kept between requests except
// the memoized doctor lookup.
type Handler struct {
	svc *schedule.Service
	now func() time.Time
}

func NewHandler(svc *schedule.Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	schedules := r.Group("/schedules")
	{
		schedules.GET("", h.ListSchedules)
		schedules.GET("/week", h.Week)
		schedules.GET("/month", h.Month)
		schedules.POST("", h.CreateSchedule)
		schedules.PUT("/:id", h.UpdateSchedule)
		schedules.PATCH("/:id/toggle", h.ToggleSchedule)
		schedules.DELETE("/:id", h.DeleteSchedule)
	}

	exceptions := r.Group("/schedule-exceptions")
	{
		exceptions.POST("", h.CreateException)
		exceptions.DELETE("/:id", h.DeleteException)
	}

	services := r.Group("/services")
	{
		services.GET("", h.ListServices)
		services.POST("", h.CreateService)
		services.PATCH("/:id", h.UpdateService)
		services.PATCH("/:id/toggle", h.ToggleService)
		services.DELETE("/:id", h.DeleteService)
	}
}

func (h *Handler) manager(c *gin.Context) (*schedule.Manager, bool) {
	m, err := h.svc.Open(c.Request.Context(), handler.CurrentSession(c))
	if err != nil {
		handler.Abort(c, err)
		return nil, false
	}
	return m, true
}

func (h *Handler) catalog(c *gin.Context) (*schedule.Catalog, bool) {
	cat, err := h.svc.OpenCatalog(c.Request.Context(), handler.CurrentSession(c))
	if err != nil {
		handler.Abort(c, err)
		return nil, false
	}
	return cat, true
}

func bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		handler.Abort(c, apperrors.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func (h *Handler) ListSchedules(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m.View()))
}

// date reads ?date=YYYY-MM-DD, defaulting to today.
func (h *Handler) date(c *gin.Context) (time.Time, bool) {
	raw := model.NormalizeDate(c.Query("date"))
	if raw == "" {
		return h.now(), true
	}
	d, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		handler.Abort(c, apperrors.BadRequest("date must be YYYY-MM-DD", err))
		return time.Time{}, false
	}
	return d, true
}

func (h *Handler) Week(c *gin.Context) {
	d, ok := h.date(c)
	if !ok {
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m.Week(d)))
}

func (h *Handler) Month(c *gin.Context) {
	d, ok := h.date(c)
	if !ok {
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m.Month(d)))
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var form schedule.ScheduleForm
	if !bind(c, &form) {
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.CreateSchedule(c.Request.Context(), form); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(m.View()))
}

func (h *Handler) UpdateSchedule(c *gin.Context) {
	var form schedule.ScheduleForm
	if !bind(c, &form) {
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.UpdateSchedule(c.Request.Context(), c.Param("id"), form); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m.View()))
}

func (h *Handler) ToggleSchedule(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.ToggleSchedule(c.Request.Context(), c.Param("id")); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m.View()))
}

func (h *Handler) DeleteSchedule(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m.View()))
}

func (h *Handler) CreateException(c *gin.Context) {
	var form schedule.ExceptionForm
	if !bind(c, &form) {
		return
	}
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.CreateException(c.Request.Context(), form); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(m.View()))
}

func (h *Handler) DeleteException(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.DeleteException(c.Request.Context(), c.Param("id")); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m.View()))
}

func (h *Handler) ListServices(c *gin.Context) {
	cat, ok := h.catalog(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cat.Services()))
}

func (h *Handler) CreateService(c *gin.Context) {
	var form schedule.ServiceForm
	if !bind(c, &form) {
		return
	}
	cat, ok := h.catalog(c)
	if !ok {
		return
	}
	if err := cat.Create(c.Request.Context(), form); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(cat.Services()))
}

func (h *Handler) UpdateService(c *gin.Context) {
	var req model.UpdateServiceRequest
	if !bind(c, &req) {
		return
	}
	cat, ok := h.catalog(c)
	if !ok {
		return
	}
	if err := cat.Update(c.Request.Context(), c.Param("id"), req); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cat.Services()))
}

func (h *Handler) ToggleService(c *gin.Context) {
	cat, ok := h.catalog(c)
	if !ok {
		return
	}
	if err := cat.Toggle(c.Request.Context(), c.Param("id")); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cat.Services()))
}

func (h *Handler) DeleteService(c *gin.Context) {
	cat, ok := h.catalog(c)
	if !ok {
		return
	}
	if err := cat.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cat.Services()))
}
