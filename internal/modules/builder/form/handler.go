package form

import (
	"errors"

	"github.com/formdeck/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	forms := rg.Group("/forms")
	forms.GET("", h.list)
	forms.GET("/:id", h.get)

	authed := rg.Group("", authMW)
	authed.POST("/forms", h.create)
	authed.PUT("/forms/:id", h.update)
	authed.PATCH("/forms/:id", h.update)
	authed.DELETE("/forms/:id", h.delete)
	authed.POST("/forms/:id/sections", h.addSection)
	authed.POST("/sections/:id/subforms", h.addSubform)
}

func (h *Handler) list(c *gin.Context) {
	forms, err := h.svc.List(c.Request.Context(), c.Query("moduleId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, forms)
}

func (h *Handler) get(c *gin.Context) {
	f, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if f == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, f)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateFormDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	f, err := h.svc.Create(c.Request.Context(), &dto)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, f)
}

func (h *Handler) update(c *gin.Context) {
	var dto UpdateFormDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	f, err := h.svc.Update(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		writeError(c, err)
		return
	}
	if f == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, f)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) addSection(c *gin.Context) {
	var dto CreateSectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sec, err := h.svc.AddSection(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, sec)
}

func (h *Handler) addSubform(c *gin.Context) {
	var dto CreateSubformDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sub, err := h.svc.AddSubform(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, sub)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNameRequired):
		response.UnprocessableEntity(c, err.Error())
	case errors.Is(err, ErrModuleNotFound), errors.Is(err, ErrFormNotFound), errors.Is(err, ErrSectionNotFound):
		response.NotFoundMsg(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
