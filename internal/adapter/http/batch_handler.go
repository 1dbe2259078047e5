package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BatchRunner runs a registered batch job once, refusing overlap.
type BatchRunner interface {
	Run(ctx context.Context, name string) (any, error)
}

type BatchHandler struct {
	runner BatchRunner
	log    *zap.Logger
}

func NewBatchHandler(r BatchRunner, log *zap.Logger) *BatchHandler {
	return &BatchHandler{runner: r, log: nopIfNil(log)}
}

// Run handles POST /batches/:name/run. A batch already running, here or on
// another instance, answers 409.
func (h *BatchHandler) Run(c echo.Context) error {
	name := c.Param("name")
	start := time.Now()
	res, err := h.runner.Run(c.Request().Context(), name)
	if err != nil {
		return fail(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"batch":       name,
		"result":      res,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
