package router

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/points-ledger-api/internal/handler"
	"github.com/noah-isme/points-ledger-api/internal/middleware"
	"github.com/noah-isme/points-ledger-api/internal/service"
	"github.com/noah-isme/points-ledger-api/pkg/config"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Students *handler.StudentHandler
	Ledger   *handler.LedgerHandler
	Catalog  *handler.CatalogHandler
	Admin    *handler.AdminHandler
	Ops      *handler.MetricsHandler
	Metrics  *service.MetricsService
}

// Register wires the HTTP routes into the gin engine.
func Register(r *gin.Engine, cfg *config.Config, deps Dependencies) {
	r.Use(middleware.Metrics(deps.Metrics))

	if deps.Ops != nil {
		r.GET("/health", deps.Ops.Health)
		r.GET("/ready", deps.Ops.Ready)
		if cfg.Metrics.Enabled {
			r.GET("/metrics", deps.Ops.Prometheus)
		}
	}

	api := r.Group(cfg.APIPrefix, middleware.Actor(cfg.Ledger.DefaultActor))

	if deps.Students != nil {
		students := api.Group("/students")
		students.GET("", deps.Students.List)
		students.POST("", deps.Students.Create)
		students.POST("/duplicates", deps.Students.CheckDuplicates)
		students.GET("/:id", deps.Students.Get)
		students.PUT("/:id", deps.Students.Update)
		students.DELETE("/:id", deps.Students.Deactivate)

		if deps.Ledger != nil {
			students.GET("/:id/balance", deps.Ledger.Balance)
			students.GET("/:id/history", deps.Ledger.History)
			students.POST("/:id/reconcile", deps.Ledger.Reconcile)
		}
	}

	if deps.Ledger != nil {
		ledger := api.Group("/ledger")
		ledger.POST("/awards", deps.Ledger.Award)
		ledger.POST("/redemptions", deps.Ledger.Redeem)
	}

	if deps.Catalog != nil {
		api.GET("/activities", deps.Catalog.ListActivities)
		api.POST("/activities", deps.Catalog.CreateActivity)
		api.PUT("/activities/:id", deps.Catalog.UpdateActivity)
		api.GET("/prizes", deps.Catalog.ListPrizes)
		api.POST("/prizes", deps.Catalog.CreatePrize)
		api.PATCH("/prizes/:id/stock", deps.Catalog.AdjustStock)
	}

	if deps.Admin != nil {
		api.GET("/audit-logs", deps.Admin.AuditLogs)
		api.GET("/settings", deps.Admin.Settings)
		api.PUT("/settings/:key", deps.Admin.UpdateSetting)
	}
}
