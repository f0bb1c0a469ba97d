package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultProbeTimeout = 2 * time.Second

// Probe is a named dependency check used by the readiness endpoint.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	log     *zap.Logger
	service string
	probes  []Probe
	timeout time.Duration
}

func NewHealthHandler(log *zap.Logger, service string, probes ...Probe) *HealthHandler {
	return &HealthHandler{
		log:     log,
		service: service,
		probes:  probes,
		timeout: defaultProbeTimeout,
	}
}

// Live answers as long as the process serves HTTP.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, ResponseWithMessage{
		Status:  StatusOK,
		Message: h.service,
	})
}

// Ready runs every probe and reports per-dependency state. One failing probe makes the whole answer 503.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	ready := true

	for _, p := range h.probes {
		if err := p.Check(ctx); err != nil {
			h.log.Warn("Readiness probe failed", zap.String("probe", p.Name), zap.Error(err))

			checks[p.Name] = err.Error()
			ready = false

			continue
		}

		checks[p.Name] = StatusOK
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, ResponseWithData{
			Status: StatusErr,
			Data:   checks,
		})

		return
	}

	c.JSON(http.StatusOK, ResponseWithData{
		Status: StatusSuccess,
		Data:   checks,
	})
}
