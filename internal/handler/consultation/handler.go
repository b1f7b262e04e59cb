package consultation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/consultation"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type Handler struct {
	svc *consultation.Service
}

func NewHandler(svc *consultation.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	cons := r.Group("/consultations")
	{
		cons.POST("", h.Start)
		cons.GET("/pending", h.Pending)
		cons.GET("/:id", h.Get)
		cons.DELETE("/:id", h.Discard)
		cons.POST("/:id/vitals", h.SubmitVitals)
		cons.POST("/:id/diagnosis", h.SubmitDiagnosis)
		cons.POST("/:id/prescriptions", h.SubmitPrescriptions)
		cons.POST("/:id/submit", h.Submit)
		cons.POST("/:id/back", h.Back)
		cons.POST("/:id/retry", h.Retry)
	}
}

func (h *Handler) wizard(c *gin.Context) (*consultation.Wizard, bool) {
	w, err := h.svc.Get(handler.CurrentSession(c).ID(), c.Param("id"))
	if err != nil {
		handler.Abort(c, err)
		return nil, false
	}
	return w, true
}

func bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		handler.Abort(c, apperrors.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func respond(c *gin.Context, w *consultation.Wizard, err error) {
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(w.Snapshot()))
}

func (h *Handler) Start(c *gin.Context) {
	var target consultation.Target
	if !bind(c, &target) {
		return
	}
	w, err := h.svc.Start(c.Request.Context(), handler.CurrentSession(c), target)
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(w.Snapshot()))
}

func (h *Handler) Get(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, nil)
}

func (h *Handler) Discard(c *gin.Context) {
	h.svc.Discard(handler.CurrentSession(c).ID(), c.Param("id"))
	c.JSON(http.StatusOK, handler.NewSuccessResponse("consultation discarded"))
}

func (h *Handler) Pending(c *gin.Context) {
	pending := h.svc.Pending(handler.CurrentSession(c).ID())
	if pending == nil {
		pending = []consultation.Snapshot{}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(pending))
}

func (h *Handler) SubmitVitals(c *gin.Context) {
	var vitals model.VitalSigns
	if !bind(c, &vitals) {
		return
	}
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, w.SubmitVitals(vitals))
}

func (h *Handler) SubmitDiagnosis(c *gin.Context) {
	var form consultation.DiagnosisForm
	if !bind(c, &form) {
		return
	}
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, w.SubmitDiagnosis(form))
}

func (h *Handler) SubmitPrescriptions(c *gin.Context) {
	var form consultation.PrescriptionForm
	if !bind(c, &form) {
		return
	}
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, w.SubmitPrescriptions(form))
}

// Submit answers 201 once the consultation exists. When only the
// appointment completion failed it answers 202: the consultation is saved
// and the completion is retried in the background.
func (h *Handler) Submit(c *gin.Context) {
	var form consultation.SummaryForm
	if c.Request.ContentLength != 0 && !bind(c, &form) {
		return
	}
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	cons, err := w.Submit(c.Request.Context(), form)
	if cons == nil {
		handler.Abort(c, err)
		return
	}
	if err != nil {
		resp := handler.NewSuccessResponse(w.Snapshot())
		resp.Message = "consultation saved, appointment completion pending: " + apperrors.UserMessage(err)
		c.JSON(http.StatusAccepted, resp)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(w.Snapshot()))
}

func (h *Handler) Back(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, w.Back())
}

func (h *Handler) Retry(c *gin.Context) {
	w, ok := h.wizard(c)
	if !ok {
		return
	}
	respond(c, w, w.RetryCompletion(c.Request.Context()))
}
