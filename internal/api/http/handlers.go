package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptbridge/internal/script/engine"
	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

// ResponseBody is the fixed answer to every request on the root route
const ResponseBody = "hello there"

// RequestEvent is dispatched once per incoming request
const RequestEvent = "request"

// Dispatcher is the part of the engine the handlers use
type Dispatcher interface {
	Dispatch(ctx context.Context, namespace []string, name, event string, payload value.Value) (bool, error)
	State() engine.State
	QueueDepth() int
}

// Target names the event target requests are dispatched to
type Target struct {
	Namespace []string
	Name      string
	// Timeout bounds how long a request waits for its dispatch
	Timeout time.Duration
}

// Handlers contains all HTTP handlers
type Handlers struct {
	engine  Dispatcher
	target  Target
	tracer  *tracing.Tracer
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates a new handler set; tracer and metrics may be nil
func NewHandlers(eng Dispatcher, target Target, tracer *tracing.Tracer, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		engine:  eng,
		target:  target,
		tracer:  tracer,
		metrics: metrics,
		logger:  logger.Named("http"),
	}
}

// Request dispatches the request event with a null payload. The response
// does not depend on the outcome; failures are logged.
func (h *Handlers) Request(c *gin.Context) {
	ctx := c.Request.Context()
	if h.target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.target.Timeout)
		defer cancel()
	}

	var span *tracing.Span
	if h.tracer != nil {
		span, ctx = h.tracer.StartSpan(ctx, "dispatch "+RequestEvent)
	}

	vetoed, err := h.engine.Dispatch(ctx, h.target.Namespace, h.target.Name, RequestEvent, value.Null)
	if err != nil {
		h.logger.Error("request dispatch failed", append(tracing.Fields(ctx), zap.Error(err))...)
	} else if vetoed {
		h.logger.Debug("request event vetoed", tracing.Fields(ctx)...)
	}

	if span != nil {
		if err != nil {
			span.SetError(err)
		}
		span.SetTag("vetoed", boolTag(vetoed))
		h.tracer.End(span)
	}

	c.String(http.StatusOK, ResponseBody)
}

// Health reports the environment state; it answers 503 until serving
func (h *Handlers) Health(c *gin.Context) {
	state := h.engine.State()
	status := http.StatusOK
	if state != engine.StateServing {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{
		"status":      state.String(),
		"queue_depth": h.engine.QueueDepth(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(status, body)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
