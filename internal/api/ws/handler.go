package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptbridge/internal/script/value"
)

// MessageEvent is dispatched once per received frame
const MessageEvent = "message"

const (
	maxFrameBytes = 1 << 20
	writeWait     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Dispatcher delivers events to the script environment
type Dispatcher interface {
	Dispatch(ctx context.Context, namespace []string, name, event string, payload value.Value) (bool, error)
}

// Reply is written back for every frame
type Reply struct {
	Vetoed bool   `json:"vetoed"`
	Error  string `json:"error,omitempty"`
}

// Handler turns websocket frames into events
type Handler struct {
	engine    Dispatcher
	namespace []string
	name      string
	timeout   time.Duration
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

// NewHandler creates a websocket handler; metrics may be nil
func NewHandler(eng Dispatcher, namespace []string, name string, timeout time.Duration, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:    eng,
		namespace: namespace,
		name:      name,
		timeout:   timeout,
		metrics:   metrics,
		logger:    logger.Named("ws"),
	}
}

// HandleConnection upgrades the request and serves frames until the peer
// goes away. Frames are handled one at a time, so replies keep frame order.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}
	conn.SetReadLimit(maxFrameBytes)

	ctx := c.Request.Context()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		h.record("in", kind)

		reply := h.handle(ctx, kind, data)
		if err := h.send(conn, reply); err != nil {
			h.logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *Handler) handle(ctx context.Context, kind int, data []byte) Reply {
	payload := decode(kind, data)

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	vetoed, err := h.engine.Dispatch(ctx, h.namespace, h.name, MessageEvent, payload)
	if err != nil {
		h.logger.Error("message dispatch failed", zap.Error(err))
		return Reply{Error: err.Error()}
	}
	return Reply{Vetoed: vetoed}
}

// decode reads JSON frames as structured values; anything else is passed
// as a string
func decode(kind int, data []byte) value.Value {
	if kind == websocket.BinaryMessage {
		return value.String(string(data))
	}
	var decoded any
	if err := sonic.Unmarshal(data, &decoded); err != nil {
		return value.String(string(data))
	}
	return value.FromGo(decoded)
}

func (h *Handler) send(conn *websocket.Conn, reply Reply) error {
	data, err := sonic.Marshal(reply)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	h.record("out", websocket.TextMessage)
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) record(direction string, kind int) {
	if h.metrics == nil {
		return
	}
	msgType := "text"
	if kind == websocket.BinaryMessage {
		msgType = "binary"
	}
	h.metrics.RecordWSMessage(direction, msgType)
}
