package lookup

import (
	"errors"
	"strings"

	"github.com/formdeck/core/internal/pkg/pagination"
	"github.com/formdeck/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	registry     *Registry
	svc          *Service
	linker       *Linker
	defaultLimit int
	maxLimit     int
}

func NewHandler(registry *Registry, svc *Service, linker *Linker) *Handler {
	return &Handler{
		registry:     registry,
		svc:          svc,
		linker:       linker,
		defaultLimit: svc.defaultLimit,
		maxLimit:     svc.maxLimit,
	}
}

// RegisterRoutes mounts /lookup. cacheMW wraps the read-heavy data routes and may be nil.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, cacheMW gin.HandlerFunc) {
	lk := rg.Group("/lookup")
	lk.GET("/sources", h.sources)
	lk.GET("/references/:sourceId", h.references)
	lk.GET("/options", h.options)

	cached := lk.Group("")
	if cacheMW != nil {
		cached.Use(cacheMW)
	}
	cached.GET("/fields", h.fields)
	cached.GET("/data", h.data)

	authed := lk.Group("", authMW)
	authed.POST("/sources/reconcile", h.reconcile)
}

func (h *Handler) sources(c *gin.Context) {
	response.OK(c, h.registry.Sources(c.Request.Context()))
}

func (h *Handler) reconcile(c *gin.Context) {
	report, err := h.registry.Reconcile(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, report)
}

func (h *Handler) fields(c *gin.Context) {
	fields, err := h.svc.GetFields(c.Request.Context(), c.Query("sourceId"))
	if err != nil {
		if errors.Is(err, ErrMissingSource) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, fields)
}

func (h *Handler) data(c *gin.Context) {
	w := pagination.WindowFromContext(c, h.defaultLimit, h.maxLimit)
	records, err := h.svc.GetData(c.Request.Context(), DataQuery{
		SourceID: c.Query("sourceId"),
		Search:   c.Query("search"),
		Limit:    w.Limit,
		Offset:   w.Offset,
	})
	if err != nil {
		if errors.Is(err, ErrMissingSource) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, records)
}

func (h *Handler) options(c *gin.Context) {
	fieldID := strings.TrimSpace(c.Query("fieldId"))
	if fieldID == "" {
		response.BadRequest(c, "fieldId is required")
		return
	}
	w := pagination.WindowFromContext(c, h.defaultLimit, h.maxLimit)
	res, err := h.svc.Options(c.Request.Context(), fieldID, c.Query("search"), w.Limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrFieldNotFound):
			response.NotFoundMsg(c, err.Error())
		case errors.Is(err, ErrNotLookupField):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, res)
}

func (h *Handler) references(c *gin.Context) {
	refs, err := h.linker.References(c.Request.Context(), c.Param("sourceId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, refs)
}
