package medhistory

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	"github.com/jwalitptl/clinic-portal/internal/model"
	"github.com/jwalitptl/clinic-portal/internal/service/medhistory"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

type Handler struct {
	svc *medhistory.Service
}

func NewHandler(svc *medhistory.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	mh := r.Group("/medical-history")
	{
		mh.GET("", h.List)
		mh.GET("/exists", h.Exists)
		mh.POST("/generate", h.Generate)
		mh.GET("/:id", h.Get)
		mh.GET("/:id/pdf", h.Download)
		mh.DELETE("/:id", h.Delete)
	}
}

type generateRequest struct {
	PatientID string `json:"patientId"`
	model.GenerateHistoryRequest
}

// Generate answers 201 even when the list refresh failed; the stale list
// is flagged in the result and in the message.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.Abort(c, apperrors.BadRequest("invalid request body", err))
			return
		}
	}
	res, err := h.svc.Generate(c.Request.Context(), handler.CurrentSession(c), req.PatientID, req.GenerateHistoryRequest)
	if err != nil {
		handler.Abort(c, err)
		return
	}
	resp := handler.NewSuccessResponse(res)
	if res.Partial() {
		resp.Message = "history generated, but the list could not be refreshed: " + res.RefreshError
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), handler.CurrentSession(c), c.Query("patientId"))
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(list))
}

func (h *Handler) Exists(c *gin.Context) {
	ok := h.svc.HasHistory(c.Request.Context(), handler.CurrentSession(c), c.Query("patientId"))
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"exists": ok}))
}

func (h *Handler) Get(c *gin.Context) {
	hist, err := h.svc.Get(c.Request.Context(), handler.CurrentSession(c), c.Param("id"))
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(hist))
}

func (h *Handler) Download(c *gin.Context) {
	dl, err := h.svc.Download(c.Request.Context(), handler.CurrentSession(c), c.Param("id"), c.Query("filename"))
	if err != nil {
		handler.Abort(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	c.Data(http.StatusOK, dl.ContentType, dl.Data)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), handler.CurrentSession(c), c.Param("id")); err != nil {
		handler.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse("medical history deleted"))
}
