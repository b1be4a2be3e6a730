package handler

import "github.com/gin-gonic/gin"

type Handlers struct {
	Registry   *RegistryHandler
	Obligation *ObligationHandler
	Oracle     *OracleHandler
	Audit      *AuditHandler
}

// RegisterRoutes mounts the ledger API on an authenticated /v1 group.
func RegisterRoutes(v1 *gin.RouterGroup, h Handlers) {
	registry := v1.Group("/registry")
	{
		registry.POST("", h.Registry.Initialize)
		registry.GET("", h.Registry.Get)
		registry.DELETE("", h.Registry.Delete)
		registry.POST("/assets", h.Registry.AddAsset)
		registry.PUT("/assets/:id/price", h.Registry.UpdatePrice)
		registry.POST("/assets/:id/refresh", h.Registry.RefreshPrice)
		registry.POST("/risk-params", h.Registry.AddRiskParam)
	}

	obligation := v1.Group("/obligation")
	{
		obligation.POST("", h.Obligation.Init)
		obligation.DELETE("", h.Obligation.Delete)
		obligation.GET("/snapshot", h.Obligation.Snapshot)
		obligation.GET("/health", h.Obligation.Health)
		obligation.POST("/deposits", h.Obligation.AddDeposit)
		obligation.POST("/deposits/remove", h.Obligation.RemoveDeposit)
		obligation.POST("/borrows", h.Obligation.AddBorrow)
		obligation.POST("/borrows/remove", h.Obligation.RemoveBorrow)
	}

	if h.Oracle != nil {
		v1.GET("/oracle/feeds/*feed", h.Oracle.GetFeed)
	}
	if h.Audit != nil {
		v1.GET("/audit", h.Audit.List)
	}
}
