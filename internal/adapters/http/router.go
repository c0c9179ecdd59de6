package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomcast/internal/adapters/ws"
	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/config"
)

const clientTokenKey = "client_token"

// Deps are the services the router exposes. Metrics and Health are optional.
type Deps struct {
	Namespaces *app.Namespaces
	WS         *ws.Controller
	Metrics    http.Handler
	Health     func(context.Context) error
}

// ClientTokenMiddleware keeps one token per browser in the session cookie.
// Every websocket of that browser joins the same client room.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientTokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", healthHandler(deps.Health))
	if deps.Metrics != nil && cfg.MetricsPath != "" {
		r.GET(cfg.MetricsPath, gin.WrapH(deps.Metrics))
	}

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})

	api := r.Group("/api")
	api.Use(sessions.Sessions("roomcast", store))
	api.Use(ClientTokenMiddleware())

	h := &handlers{nsps: deps.Namespaces, defaultNsp: cfg.Namespace}
	api.GET("/namespaces", h.namespaces)
	api.GET("/clients", h.clients)
	api.GET("/rooms", h.rooms)
	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
		deps.WS.HandleWS(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("metrics", cfg.MetricsPath).Msg("router setup")
	return r
}
