package app

import (
	"github.com/formdeck/core/internal/middleware"
	"github.com/formdeck/core/internal/modules/builder/field"
	"github.com/formdeck/core/internal/modules/builder/form"
	"github.com/formdeck/core/internal/modules/builder/module"
	"github.com/formdeck/core/internal/modules/builder/record"
	"github.com/formdeck/core/internal/modules/lookup"
	"github.com/formdeck/core/internal/modules/system/core/health"
	"github.com/formdeck/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() {
	api := a.router.Group(apiPrefix)
	authMW := middleware.Auth(a.signer)

	var cacheMW gin.HandlerFunc
	var pinger health.Pinger
	if a.rc != nil {
		cacheMW = middleware.HTTPCache(a.rc, a.cfg.Lookup.DataCacheTTL)
		pinger = a.rc
	}

	health.RegisterRoutes(api, a.db, pinger, a.sched, authMW)
	lookup.NewHandler(a.registry, a.lookups, a.linker).RegisterRoutes(api, authMW, cacheMW)

	moduleSvc := module.NewService(a.db, module.WithLogger(a.logger), module.WithCatalog(a.registry))
	module.NewHandler(moduleSvc).RegisterRoutes(api, authMW)

	formSvc := form.NewService(a.db,
		form.WithLogger(a.logger),
		form.WithCatalog(a.registry),
		form.WithLinker(a.linker),
	)
	form.NewHandler(formSvc).RegisterRoutes(api, authMW)

	fieldSvc := field.NewService(a.db, a.linker, field.WithLogger(a.logger))
	field.NewHandler(fieldSvc).RegisterRoutes(api, authMW)

	recordOpts := []record.ServiceOption{record.WithLogger(a.logger)}
	submitMW := []gin.HandlerFunc{middleware.OptionalAuth(a.signer)}
	if a.rc != nil {
		recordOpts = append(recordOpts, record.WithCachePurge(a.rc,
			middleware.APICachePrefix+apiPrefix+"/lookup/data",
			middleware.APICachePrefix+apiPrefix+"/lookup/fields",
		))
		submitMW = append(submitMW, middleware.Idempotence(a.rc))
	}
	recordSvc := record.NewService(a.db, recordOpts...)
	record.NewHandler(recordSvc).RegisterRoutes(api, authMW, submitMW...)

	a.router.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	a.router.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })
}
