package api

import (
	"net/http"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"

	_ "github.com/cobytes/scanOrchestratorGo/docs" // registers the OpenAPI document
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RegisterRoutes registers all API routes. It is safe to call more than once.
func (s *Server) RegisterRoutes() {
	s.routesOnce.Do(s.registerRoutes)
}

func (s *Server) registerRoutes() {
	router := s.router
	authMW := s.authMW

	apiV1 := router.Group("/api/v1")

	apiV1.GET("/health", s.healthCheck)
	apiV1.HEAD("/health", s.healthCheck)

	scans := apiV1.Group("/scans", authMW.RequireAuthentication())
	{
		scans.GET("/kinds", s.listScanKinds)
		scans.POST("", s.createScan)
		scans.GET("", s.listScans)
		scans.GET("/:id", s.getScan)
		scans.GET("/:id/findings", s.listFindings)
		scans.POST("/:id/cancel", s.cancelScan)
		scans.DELETE("/:id", s.deleteScan)

		scans.GET("/:id/events", s.streamScanEvents)
		scans.GET("/:id/ws", s.streamScanWebSocket)
	}

	policies := apiV1.Group("/policies", authMW.RequireAuthentication())
	{
		policies.POST("", s.createPolicy)
		policies.GET("", s.listPolicies)
		policies.GET("/:id", s.getPolicy)
		policies.PUT("/:id", s.updatePolicy)
		policies.DELETE("/:id", s.deletePolicy)
	}

	admin := apiV1.Group("/admin", authMW.RequireAuthentication(), authMW.RequireAdmin())
	{
		admin.GET("/runtime", s.runtimeStatus)
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL("/swagger/doc.json"),
		ginSwagger.DocExpansion("list"),
		ginSwagger.DefaultModelsExpandDepth(-1),
		ginSwagger.PersistAuthorization(true),
	))

	router.NoRoute(s.handleNotFound)
	s.logger.Debug("API routes registered")
}

// healthCheck godoc
// @Summary Health check
// @Description Reports whether the API, its database and the recurring trigger are up.
// @Tags System
// @Produce json
// @Success 200 {object} models.SuccessResponse{data=models.HealthResponse} "Healthy"
// @Failure 503 {object} models.SuccessResponse{data=models.HealthResponse} "Database unreachable"
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	resp := models.HealthResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Database:  "ok",
		Timestamp: time.Now().UTC(),
	}
	if s.scheduler != nil {
		resp.Scheduler = s.scheduler()
	}

	status := http.StatusOK
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			s.logger.WithError(err).Warn("Health check database ping failed")
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, utils.Response{
		Success: status == http.StatusOK,
		Data:    resp,
		Meta:    &utils.Meta{Timestamp: resp.Timestamp, RequestID: utils.GetRequestID(c)},
	})
}

// runtimeStatus godoc
// @Summary Orchestrator runtime
// @Description Reports running scan tasks, scheduled policies and dropped events. Admin only.
// @Tags System
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.SuccessResponse{data=models.RuntimeResponse} "Runtime counters"
// @Failure 401 {object} models.ErrorResponse "Unauthorized"
// @Failure 403 {object} models.ErrorResponse "Not an admin"
// @Router /admin/runtime [get]
func (s *Server) runtimeStatus(c *gin.Context) {
	resp := models.RuntimeResponse{Timestamp: time.Now().UTC()}
	if s.runtime != nil {
		resp = s.runtime()
	}
	utils.SuccessResponse(c, resp)
}

func (s *Server) handleNotFound(c *gin.Context) {
	utils.NotFound(c, "Route not found: "+c.Request.URL.Path)
}
