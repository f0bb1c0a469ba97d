package route

import (
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/api/http/handler"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/api/http/middleware"
)

// SetupRouter builds the ops surface every worker exposes: liveness, readiness and metrics.
func SetupRouter(log *zap.Logger, healthHdl HealthHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))

	router.HandleMethodNotAllowed = true
	router.NoMethod(handler.NoMethod)
	router.NoRoute(handler.NoRoute)

	RegisterHealth(router, healthHdl)
	RegisterMetrics(router)

	return router
}
