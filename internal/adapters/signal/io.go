package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *Controller) pingPeriod() time.Duration {
	if ctl.Cfg.PingPeriod > 0 {
		return ctl.Cfg.PingPeriod
	}
	return 54 * time.Second
}

func (ctl *Controller) writePump(ctx context.Context, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cl *client, c *wsSignalConn) {
	// A missed pong past the next ping marks the connection dead.
	pongWait := ctl.pingPeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(cl.id)).Msg("readPump closing")
		ctl.onDisconnect(cl)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("peer", string(cl.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("peer", string(cl.id)).Msg("readPump read error")
				return
			}
			ctl.dispatch(cl, data)
		}
	}
}

func (ctl *Controller) dispatch(cl *client, data []byte) {
	env, err := parseEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(cl.id)).Msg("bad envelope")
		ctl.reply(cl, evError, errorEvent{Error: "bad_payload"})
		return
	}

	switch env.Event {
	case evJoinRoom:
		ctl.handleJoinRoom(cl, env.Data)
	case evLeaveRoom:
		ctl.handleLeaveRoom(cl, env.Data)
	case evOffer, evAnswer, evIceCandidate:
		ctl.handleNegotiation(cl, env.Event, env.Data)
	case evSendMessage:
		ctl.handleSendMessage(cl, env.Data)
	case evSendReaction:
		ctl.handleSendReaction(cl, env.Data)
	case evSendGesture:
		ctl.handleSendGesture(cl, env.Data)
	case evKickUser:
		ctl.handleKickUser(cl, env.Data)
	case evMuteUser:
		ctl.handleMuteUser(cl, env.Data)
	case evApproveUser:
		ctl.handleApproveUser(cl, env.Data)
	case evDenyUser:
		ctl.handleDenyUser(cl, env.Data)
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
		ctl.reply(cl, evError, errorEvent{Error: "unknown_event"})
	}
}

// onDisconnect runs exactly once per transport death, from the read
// pump's defer. Cleanup is idempotent with a prior explicit leave: a
// connection no longer in any room yields no departures.
func (ctl *Controller) onDisconnect(cl *client) {
	for _, dep := range ctl.Orch.Disconnect(cl.id) {
		ctl.fanOutDeparture(dep)
	}
	ctl.Limiter.Forget(cl.token)
}
