package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/app"
	"github.com/vkuksa/huddle/internal/config"
	"github.com/vkuksa/huddle/internal/core"
	"github.com/vkuksa/huddle/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Controller owns the WebSocket side of the signaling surface. It is
// safe for concurrent use; one instance serves all connections.
type Controller struct {
	Orch    *app.Orchestrator
	Limiter *app.EventRateLimiter
	Cfg     *config.Config
}

func NewController(orch *app.Orchestrator, limiter *app.EventRateLimiter, cfg *config.Config) *Controller {
	return &Controller{Orch: orch, Limiter: limiter, Cfg: cfg}
}

// client is one live connection's identity: the routable peer id (fresh
// per connection) and the browser-scoped token used for rate limiting.
type client struct {
	id    domain.PeerID
	token string
	conn  core.SignalConnection
}

type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's pumps.
// The peer id is minted here; it is the identifier every relayed frame
// gets stamped with.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	cl := &client{
		id:    domain.PeerID(uuid.NewString()),
		token: token,
		conn:  conn,
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Peers.Bind(cl.id, conn, cancel)
	log.Info().Str("module", "signal").Str("peer", string(cl.id)).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cl, conn)
}

func (ctl *Controller) encode(event string, v any) (core.Frame, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("marshal payload")
		return nil, false
	}
	frame, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("marshal envelope")
		return nil, false
	}
	return frame, true
}

// reply sends an event back on the originating connection.
func (ctl *Controller) reply(cl *client, event string, v any) {
	if frame, ok := ctl.encode(event, v); ok {
		_ = cl.conn.TrySend(frame)
	}
}

// sendTo delivers an event to a peer looked up by id, best-effort.
func (ctl *Controller) sendTo(id domain.PeerID, event string, v any) {
	if frame, ok := ctl.encode(event, v); ok {
		ctl.Orch.SendTo(id, frame)
	}
}

// broadcast fans an event out to a membership snapshot, encoding once.
func (ctl *Controller) broadcast(members []domain.Participant, event string, v any) {
	if len(members) == 0 {
		return
	}
	if frame, ok := ctl.encode(event, v); ok {
		ctl.Orch.BroadcastTo(members, frame)
	}
}
