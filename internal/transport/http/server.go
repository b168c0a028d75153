package http

import (
	stdhttp "net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/medianest/gateway/internal/auth"
	"github.com/medianest/gateway/internal/config"
	"github.com/medianest/gateway/internal/core"
	"github.com/medianest/gateway/internal/status"
	"github.com/medianest/gateway/internal/store"
)

// NewServer builds the HTTP server carrying every gateway surface:
// WebSocket admission, the long-poll fallback, the ingress API, and the
// health probe. The returned PollManager must be Run for session
// reaping.
func NewServer(
	gateway *core.Gateway,
	dispatcher *core.Dispatcher,
	handlers *core.Handlers,
	verifier *auth.Verifier,
	broadcaster *core.Broadcaster,
	tracker *status.Tracker,
	notifications store.NotificationStore,
	cfg config.Config,
	logger *zerolog.Logger,
) (*stdhttp.Server, *PollManager) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigin))

	router.GET("/health", healthHandler)

	wsHandler := NewWSHandler(gateway, dispatcher, handlers, verifier,
		cfg.OutboundQueueSize, originPatterns(cfg.AllowedOrigin), logger)
	router.GET("/ws", wsHandler.Handle)

	pollManager := NewPollManager(gateway, dispatcher, handlers, verifier,
		cfg.OutboundQueueSize, cfg.PollSessionTTL, logger)
	poll := router.Group("/poll")
	{
		poll.POST("/connect", pollManager.Connect)
		poll.GET("/events", pollManager.Events)
		poll.POST("/send", pollManager.Send)
		poll.POST("/disconnect", pollManager.Disconnect)
	}

	ingress := NewIngressHandlers(broadcaster, tracker, notifications, logger)
	api := router.Group("/api")
	api.Use(ServiceAuthMiddleware(verifier, cfg.ServiceKeyHash, logger))
	{
		api.POST("/broadcast/status", ingress.BroadcastStatus)
		api.POST("/notify/:user_id", ingress.Notify)
	}

	server := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return server, pollManager
}

func healthHandler(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
}

// originPatterns converts the configured browser origin into the host
// pattern the websocket library matches against.
func originPatterns(origin string) []string {
	if origin == "" {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return []string{origin}
	}
	return []string{u.Host}
}
