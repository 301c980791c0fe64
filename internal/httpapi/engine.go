// Package httpapi wires the data-plane and internal-backstage HTTP routes
// onto a gin engine, composed with the generic infrastructure/middleware
// stack around the outside.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Unleash/unleash-edge/infrastructure/middleware"
	"github.com/Unleash/unleash-edge/internal/edgeapp"
)

// NewHandler builds the complete downstream HTTP handler for app: the gin
// engine carrying every route, wrapped by the cross-cutting middleware
// stack (outermost first): recovery, access logging, security headers,
// CORS, rate limiting, body size limiting, request timeout.
func NewHandler(app *edgeapp.App) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	registerRoutes(engine, app)

	var h http.Handler = engine
	h = middleware.NewTimeoutMiddleware(requestTimeout(app)).Handler(h)
	h = middleware.NewBodyLimitMiddleware(0).Handler(h)
	h = newRateLimiter(app).Handler(h)
	h = middleware.NewCORSMiddleware(nil).Handler(h)
	h = middleware.NewSecurityHeadersMiddleware(nil).Handler(h)
	h = middleware.LoggingMiddleware(app.Logger)(h)
	h = middleware.NewRecoveryMiddleware(app.Logger).Handler(h)
	return h
}

func requestTimeout(app *edgeapp.App) time.Duration {
	if app.Config.Server.SlowClientTimeout > 0 {
		return app.Config.Server.SlowClientTimeout
	}
	return 10 * time.Second
}

func newRateLimiter(app *edgeapp.App) *middleware.RateLimiter {
	rps := app.Config.Server.RateLimitPerSecond
	burst := app.Config.Server.RateLimitBurst
	if rps <= 0 {
		rps = 200
	}
	if burst <= 0 {
		burst = 400
	}
	rl := middleware.NewRateLimiter(rps, burst, app.Logger)
	rl.StartCleanup(5 * time.Minute)
	return rl
}

func registerRoutes(engine *gin.Engine, app *edgeapp.App) {
	metricsHTTP := middleware.NewHTTPMetricsMiddleware()
	engine.Use(metricsHTTP.Handler())

	client := engine.Group("/")
	client.Use(requireToken(app))
	{
		client.GET("/client/features", handleClientFeatures(app))
		client.POST("/client/metrics", handlePostMetrics(app))
		client.POST("/client/register", handlePostRegister(app))
		client.GET("/client/streaming", handleClientStreaming(app))
	}

	engine.POST("/edge/validate", handleEdgeValidate(app))

	frontend := engine.Group("/")
	frontend.Use(requireToken(app))
	{
		frontend.GET("/frontend", handleEvaluatedFeatures(app))
		frontend.GET("/proxy", handleEvaluatedFeatures(app))
	}

	backstage := engine.Group("/internal-backstage")
	registerBackstageRoutes(backstage, app)
}
