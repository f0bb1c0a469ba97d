package route

import (
	"github.com/gin-gonic/gin"
)

type HealthHandler interface {
	Live(c *gin.Context)
	Ready(c *gin.Context)
}

func RegisterHealth(r gin.IRoutes, h HealthHandler) {
	r.GET("/healthz", h.Live)
	r.GET("/readyz", h.Ready)
}
