package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orrn/printconnect/internal/api/handlers"
	"github.com/orrn/printconnect/internal/api/middleware"
	"github.com/orrn/printconnect/internal/config"
	"github.com/orrn/printconnect/internal/core"
)

type Deps struct {
	Config *config.Config
	Jobs   *core.JobManager
	// Counters and Auth are nil when the database is disabled.
	Counters handlers.CounterStore
	Auth     *middleware.AuthMiddleware
}

func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.SetHTMLTemplate(handlers.Templates())

	display := handlers.NewDisplayHandler(d.Jobs, cfg.Display.Title, cfg.Display.RefreshInterval)
	printer := handlers.NewPrintHandler(d.Jobs, cfg.Server.MaxUploadMB<<20)

	router.GET("/", display.Index)
	router.GET("/health", handlers.Health)
	router.POST("/process_print",
		middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateWindow),
		printer.ProcessPrint)

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	api.Use(noStore())

	if d.Auth == nil {
		api.Any("/*path", func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, handlers.ErrorResponse{Error: "Operator API requires a database"})
		})
		return router
	}

	auth := api.Group("/auth")
	auth.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateWindow))
	{
		auth.GET("/status", d.Auth.StatusHandler)
		auth.POST("/setup", d.Auth.SetupHandler)
		auth.POST("/login", d.Auth.LoginHandler)
		auth.POST("/logout", d.Auth.LogoutHandler)
		auth.PUT("/password", d.Auth.RequireAuth(), d.Auth.ChangePasswordHandler)
	}

	protected := api.Group("/")
	protected.Use(d.Auth.RequireAuth())
	handlers.NewOperatorHandler(d.Jobs, d.Counters, cfg).RegisterRoutes(protected)

	return router
}

func noStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Next()
	}
}
