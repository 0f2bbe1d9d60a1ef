package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pixelgrid/chatcore/internal/config"
	"github.com/pixelgrid/chatcore/internal/core"
	"github.com/pixelgrid/chatcore/internal/identity"
)

// NewServer builds the HTTP server: REST API, websocket stream, health and
// metrics endpoints. The websocket endpoint lives on a plain net/http mux
// because the upgrade hijacks the connection, which gin's ResponseWriter
// wrapper cannot do; everything else goes through gin.
func NewServer(engine *core.Engine, codec *identity.Codec, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rooms := NewRoomHandlers(engine, logger)
	messages := NewMessageHandlers(engine, logger)

	limiter := newLimiterPool(cfg.APIRatePerSecond, cfg.APIRateBurst)

	api := router.Group("/api")
	api.Use(IdentityMiddleware(codec, logger))
	api.Use(RateLimitMiddleware(limiter))
	{
		api.POST("/rooms", rooms.CreateRoom)
		api.GET("/rooms", rooms.ListRooms)
		api.POST("/rooms/:id/join", rooms.JoinRoom)
		api.POST("/rooms/:id/leave", rooms.LeaveRoom)
		api.PUT("/rooms/:id/mute", rooms.SetMuted)
		api.PUT("/rooms/:id/pin", rooms.SetPinned)
		api.POST("/rooms/:id/archive", rooms.ArchiveRoom)

		api.POST("/rooms/:id/messages", messages.SendMessage)
		api.GET("/rooms/:id/messages", messages.History)
		api.POST("/rooms/:id/read", messages.MarkRead)
		api.GET("/rooms/:id/unread", messages.Unread)
		api.GET("/rooms/:id/presence", messages.Presence)
		api.GET("/unread", messages.TotalUnread)

		api.PUT("/messages/:id", messages.EditMessage)
		api.DELETE("/messages/:id", messages.DeleteMessage)
		api.POST("/messages/:id/reactions", messages.ToggleReaction)
	}

	ws := NewWSHandler(engine, codec, logger)
	mux := stdhttp.NewServeMux()
	mux.HandleFunc("/ws", ws.Handle)
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
