package record

import (
	"errors"

	"github.com/formdeck/core/internal/middleware"
	"github.com/formdeck/core/internal/pkg/pagination"
	"github.com/formdeck/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts record routes. Submissions are public for published
// forms; submitMW runs before a submission (optional auth, duplicate guard).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, submitMW ...gin.HandlerFunc) {
	submit := append(append([]gin.HandlerFunc{}, submitMW...), h.submit)
	rg.POST("/forms/:id/records", submit...)

	authed := rg.Group("", authMW)
	authed.GET("/forms/:id/records", h.list)
	authed.GET("/records/:id", h.get)
	authed.DELETE("/records/:id", h.delete)
}

func (h *Handler) submit(c *gin.Context) {
	var dto SubmitDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rec, created, err := h.svc.Submit(c.Request.Context(), c.Param("id"), &dto, middleware.IsAuthenticated(c))
	if err != nil {
		switch {
		case errors.Is(err, ErrFormNotFound):
			response.NotFound(c)
		case errors.Is(err, ErrFormNotPublished):
			response.Unauthorized(c)
		case errors.Is(err, ErrUnknownField), errors.Is(err, ErrRequiredField):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	if created {
		response.Created(c, rec)
		return
	}
	response.OK(c, rec)
}

func (h *Handler) list(c *gin.Context) {
	rows, pag, err := h.svc.List(c.Request.Context(), c.Param("id"), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, rows, pag)
}

func (h *Handler) get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if rec == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, rec)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
