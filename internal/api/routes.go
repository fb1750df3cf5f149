package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/api/handlers"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/api/middleware"
	"github.com/TheGojiOG/gameserver-lifecycle/internal/config"
)

// Dependencies are the services the router exposes over HTTP.
type Dependencies struct {
	Lifecycle handlers.Lifecycle
	Servers   handlers.ServerLookup
	Console   handlers.ConsoleBacklog
	Streamer  handlers.Streamer
	// Metrics is optional.
	Metrics handlers.MetricsSource
}

// SetupRouter configures and returns the HTTP router
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.RateLimit(cfg.Server.RateLimitPerMinute))
	router.Use(middleware.SecurityHeaders())

	serverHandler := handlers.NewServerHandler(deps.Lifecycle, deps.Metrics)
	jobHandler := handlers.NewJobHandler(deps.Lifecycle)
	streamHandler := handlers.NewStreamHandler(deps.Lifecycle, deps.Servers, deps.Console, deps.Streamer)

	v1 := router.Group("/api/v1")
	{
		servers := v1.Group("/servers")
		{
			servers.GET("", serverHandler.ListServers)
			servers.GET(":name/status", serverHandler.GetServerStatus)
			servers.POST(":name/start", serverHandler.StartServer)
			servers.POST(":name/stop", serverHandler.StopServer)
			servers.GET(":name/metrics", serverHandler.GetServerMetrics)
			servers.GET(":name/console", streamHandler.GetConsole)
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET(":id", jobHandler.GetJob)
			jobs.POST(":id/abort", jobHandler.AbortJob)
		}

		v1.GET("/ws/jobs", streamHandler.HandleJobsWebSocket)
		v1.GET("/ws/console/:name", streamHandler.HandleConsoleWebSocket)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
