package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/adapters/signal"
	"github.com/vkuksa/huddle/internal/app"
	"github.com/vkuksa/huddle/internal/config"
)

// ClientTokenMiddleware tags every request with a browser-scoped token.
// The token is a rate-limit and logging identity; the routable peer id
// is minted per WebSocket connection, not here.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// iceServers assembles the list clients should use for NAT traversal.
// The STUN/TURN service itself is external; this only hands out its
// coordinates.
func iceServers(cfg *config.Config) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(cfg.STUNURLs)+len(cfg.TURN))
	if len(cfg.STUNURLs) > 0 {
		out = append(out, webrtc.ICEServer{URLs: cfg.STUNURLs})
	}
	for _, t := range cfg.TURN {
		out = append(out, webrtc.ICEServer{
			URLs:       []string{t.URL},
			Username:   t.Username,
			Credential: t.Credential,
		})
	}
	return out
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": orch.Peers.Count(),
		})
	})

	api := r.Group("/api")

	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": iceServers(cfg)})
	})

	// Read-only snapshot of active calls. Room metadata CRUD lives in an
	// external service; this is observability over live signaling state.
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": orch.Rooms.Snapshot()})
	})

	r.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}
