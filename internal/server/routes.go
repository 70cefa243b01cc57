package server

import (
	"github.com/gin-gonic/gin"

	"github.com/nestdesk/nestdesk/internal/assistant/chat"
	"github.com/nestdesk/nestdesk/internal/assistant/voice"
	"github.com/nestdesk/nestdesk/internal/config"
	"github.com/nestdesk/nestdesk/internal/handlers"
	"github.com/nestdesk/nestdesk/internal/relay"
	"github.com/nestdesk/nestdesk/pkg/Logger"
)

type Dependencies struct {
	Hub          *relay.Hub
	Driver       *chat.Driver
	Orchestrator *voice.Orchestrator
	Logger       *Logger.Logger
	Configs      *config.Settings
}

func NewServerDependencies(
	hub *relay.Hub,
	driver *chat.Driver,
	orchestrator *voice.Orchestrator,
	logger *Logger.Logger,
	cfg *config.Settings,
) Dependencies {
	return Dependencies{
		Hub:          hub,
		Driver:       driver,
		Orchestrator: orchestrator,
		Logger:       logger,
		Configs:      cfg,
	}
}

func InitializeRoutes(cfg *config.Settings, r *gin.Engine, dep Dependencies) {
	r.Use(handlers.CORSMiddleware())
	r.Use(handlers.RequestLoggerMiddleware(dep.Logger))
	r.Use(handlers.ErrorHandlerMiddleware(dep.Logger))

	r.GET("/", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"message": "Server healthy"}) })
	r.GET("/health", func(ctx *gin.Context) { ctx.JSON(200, gin.H{"status": "ok"}) })

	relayHandler := handlers.NewRelayHandler(dep.Hub, cfg.Upstream.TenantID, dep.Logger.Named("relay"))
	r.GET("/ws", relayHandler.Connect)
	r.GET("/ws/stats", relayHandler.Stats)

	assistantHandler := handlers.NewAssistantHandler(dep.Driver, dep.Orchestrator, dep.Logger.Named("assistant"))
	api := r.Group("/api/assistant")
	{
		api.POST("/chat", assistantHandler.Chat)
		api.POST("/voice", assistantHandler.Voice)
		api.POST("/speak", assistantHandler.Speak)
	}
}
