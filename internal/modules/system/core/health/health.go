package health

import (
	"context"
	"net/http"
	"time"

	"github.com/formdeck/core/internal/pkg/cron"
	"github.com/formdeck/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Pinger reports whether an optional backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const probeTimeout = 2 * time.Second

// RegisterRoutes mounts the public probe and the authenticated scheduler endpoints.
// cache may be nil when Redis is disabled.
func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, cache Pinger, sched *cron.Scheduler, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		dbOK := err == nil && sqlDB.PingContext(ctx) == nil

		body := gin.H{"database": dbOK}
		cacheOK := true
		if cache != nil {
			cacheOK = cache.Ping(ctx) == nil
			body["cache"] = cacheOK
		}

		status := "ok"
		code := http.StatusOK
		if !dbOK || !cacheOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		body["status"] = status
		c.JSON(code, body)
	})

	cronGroup := rg.Group("/health/cron", authMW)
	{
		cronGroup.GET("", func(c *gin.Context) {
			items := sched.List()
			byName := make(map[string]cron.ListItem, len(items))
			for _, item := range items {
				byName[item.Name] = item
			}
			response.OK(c, byName)
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, gin.H{"message": "job triggered"})
		})
	}
}
