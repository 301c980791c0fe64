package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Unleash/unleash-edge/infrastructure/middleware"
	"github.com/Unleash/unleash-edge/internal/edgeapp"
	pkgmetrics "github.com/Unleash/unleash-edge/pkg/metrics"
	"github.com/Unleash/unleash-edge/pkg/version"
)

// registerBackstageRoutes mounts the internal diagnostic surface under the
// group's already-set "/internal-backstage" prefix. health/ready/metrics
// are always on; tokens/features/instancedata/metricsbatch are gated by
// config.BackstageConfig so an operator can narrow the diagnostic surface
// in a public-facing deployment.
func registerBackstageRoutes(g *gin.RouterGroup, app *edgeapp.App) {
	health := middleware.NewHealthChecker(version.FullVersion(), app.Logger)
	g.GET("/health", gin.WrapF(health.Handler()))
	g.GET("/ready", gin.WrapF(middleware.ReadinessHandler(app.Ready)))
	g.GET("/metrics", gin.WrapH(pkgmetrics.Handler()))

	if app.Config.Backstage.EnableTokens {
		g.GET("/tokens", handleBackstageTokens(app))
	}
	if app.Config.Backstage.EnableFeatures {
		g.GET("/features", handleBackstageFeatures(app))
	}
	if app.Config.Backstage.EnableInstanceData {
		g.GET("/instancedata", gin.WrapF(middleware.InstanceDataHandler(app.Logger)))
	}
	if app.Config.Backstage.EnableMetricsBatch {
		g.GET("/metricsbatch", handleBackstageMetricsBatch(app))
	}
}

type tokenDiagnostic struct {
	Token       string   `json:"token"`
	Environment string   `json:"environment"`
	Kind        string   `json:"type"`
	Status      string   `json:"status"`
	Projects    []string `json:"projects,omitempty"`
}

// handleBackstageTokens dumps the token cache, masking each secret so the
// diagnostic endpoint cannot be used to recover a usable credential.
func handleBackstageTokens(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		all := app.Tokens.All()
		out := make([]tokenDiagnostic, 0, len(all))
		for _, tok := range all {
			out = append(out, tokenDiagnostic{
				Token:       maskToken(tok.Raw),
				Environment: tok.Environment,
				Kind:        tok.Kind.String(),
				Status:      tok.Status.String(),
				Projects:    tok.Projects.Slice(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"tokens": out, "count": len(out)})
	}
}

func maskToken(raw string) string {
	idx := strings.LastIndex(raw, ".")
	if idx < 0 || idx == len(raw)-1 {
		return raw
	}
	return raw[:idx+1] + "***"
}

type environmentDiagnostic struct {
	Environment  string `json:"environment"`
	Revision     int64  `json:"revision"`
	ETag         string `json:"etag"`
	FeatureCount int    `json:"feature_count"`
}

// handleBackstageFeatures reports, per known environment, the current
// revision/ETag and feature count without dumping the full payload, which
// can be large and is already served by /client/features for a token that
// is allowed to read it.
func handleBackstageFeatures(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		environments := app.Features.KnownEnvironments()
		out := make([]environmentDiagnostic, 0, len(environments))
		for _, env := range environments {
			snap, ok := app.Features.Get(env)
			if !ok {
				continue
			}
			out = append(out, environmentDiagnostic{
				Environment:  env,
				Revision:     snap.Revision,
				ETag:         snap.ETag,
				FeatureCount: len(snap.Features.Features),
			})
		}
		c.JSON(http.StatusOK, gin.H{"environments": out})
	}
}

type metricsBatchDiagnostic struct {
	Toggles []toggleDiagnostic `json:"toggles"`
}

type toggleDiagnostic struct {
	AppName     string           `json:"app_name"`
	Environment string           `json:"environment"`
	Feature     string           `json:"feature"`
	Yes         int64            `json:"yes"`
	No          int64            `json:"no"`
	Variants    map[string]int64 `json:"variants,omitempty"`
}

// handleBackstageMetricsBatch reports the metrics aggregator's current
// pending buckets without draining them, so inspecting the batch never
// loses data the sender's next tick would otherwise have flushed upstream.
func handleBackstageMetricsBatch(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		toggles, _ := app.Aggregator.Peek()
		out := make([]toggleDiagnostic, 0, len(toggles))
		for key, stats := range toggles {
			out = append(out, toggleDiagnostic{
				AppName:     key.AppName,
				Environment: key.Environment,
				Feature:     key.Feature,
				Yes:         stats.Yes,
				No:          stats.No,
				Variants:    stats.Variants,
			})
		}
		c.JSON(http.StatusOK, metricsBatchDiagnostic{Toggles: out})
	}
}
