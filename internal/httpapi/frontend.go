package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/Unleash/unleash-edge/infrastructure/errors"
	"github.com/Unleash/unleash-edge/internal/edgeapp"
	"github.com/Unleash/unleash-edge/internal/evaluation"
	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/token"
)

var frontendEngine evaluation.Engine = evaluation.PassthroughEngine{}

type evaluatedFeaturesResponse struct {
	Toggles []evaluation.Result `json:"toggles"`
}

// handleEvaluatedFeatures serves GET /frontend and GET /proxy: already-
// evaluated feature states for a frontend (or client) token, built from
// the context carried in the query string. Unlike /client/features this
// never triggers an upstream fetch — a missing cache entry is reported as
// ContextMissingForFrontend rather than parked and retried.
func handleEvaluatedFeatures(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := mustToken(c)
		if tok.Kind == token.KindAdmin {
			writeAPIError(c, apierrors.TokenInvalidClient("admin tokens cannot read evaluated features"))
			return
		}

		snap, ok := app.Features.Get(tok.Environment)
		if !ok {
			writeAPIError(c, apierrors.ContextMissingForFrontend(tok.Environment, firstProject(tok)))
			return
		}

		filtered := featurestore.FilterByProjects(snap.Features, tok.Projects)
		results := frontendEngine.Evaluate(filtered, evalContext(c))

		appName := c.Query("appName")
		if appName == "" {
			appName = "unknown"
		}
		for _, r := range results {
			app.Aggregator.RecordToggle(appName, tok.Environment, r.Name, r.Enabled, r.Variant)
		}

		c.JSON(http.StatusOK, evaluatedFeaturesResponse{Toggles: results})
	}
}

// evalContext builds an evaluation context from every query parameter
// except appName, which identifies the calling application rather than
// describing the evaluation subject.
func evalContext(c *gin.Context) evaluation.Context {
	ctx := evaluation.Context{}
	for k, values := range c.Request.URL.Query() {
		if k == "appName" || len(values) == 0 {
			continue
		}
		ctx[k] = values[0]
	}
	return ctx
}
