package app

import (
	"context"

	"github.com/formdeck/core/internal/middleware"
	pkgcron "github.com/formdeck/core/internal/pkg/cron"
	"go.uber.org/zap"
)

const reconcileJobName = "reconcile_lookup_sources"

// registerCronJobs registers all scheduled background jobs.
func (a *App) registerCronJobs() {
	cronLogger := a.logger.Named("CronService")

	a.sched.Register(pkgcron.Job{
		Name:        reconcileJobName,
		Description: "sync lookup sources with modules and forms",
		Interval:    a.cfg.Lookup.ReconcileInterval,
		Immediate:   true,
		Fn: func(ctx context.Context) error {
			report, err := a.registry.Reconcile(ctx)
			if err != nil {
				cronLogger.Warn("lookup reconcile failed", zap.Error(err))
				return err
			}
			cronLogger.Info("lookup sources reconciled",
				zap.Int("modules", report.Modules),
				zap.Int("forms", report.Forms),
				zap.Int64("deactivated", report.Deactivated),
				zap.String("interval", humanizeDuration(a.cfg.Lookup.ReconcileInterval)),
			)
			if a.rc != nil {
				if _, err := a.rc.DelPrefix(ctx, middleware.APICachePrefix); err != nil {
					cronLogger.Warn("api cache flush failed", zap.Error(err))
				}
			}
			return nil
		},
	})
}
