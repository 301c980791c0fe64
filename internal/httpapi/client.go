package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/Unleash/unleash-edge/infrastructure/errors"
	"github.com/Unleash/unleash-edge/infrastructure/httputil"
	"github.com/Unleash/unleash-edge/internal/edgeapp"
	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/token"
)

// handleClientFeatures serves GET /client/features: the project-filtered
// feature set for the caller's token, honoring If-None-Match for the
// 304-on-unchanged-ETag case that makes repeat polling free for an SDK
// that already holds the current body.
func handleClientFeatures(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := mustToken(c)
		if tok.Kind == token.KindAdmin {
			writeAPIError(c, apierrors.TokenInvalidClient("admin tokens cannot read client features"))
			return
		}

		snap, ok := app.Features.Get(tok.Environment)
		if !ok {
			if tok.Kind == token.KindFrontend {
				writeAPIError(c, apierrors.ContextMissingForFrontend(tok.Environment, firstProject(tok)))
				return
			}
			httputil.ServiceUnavailable(c.Writer, "no features cached yet for this environment")
			return
		}

		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == snap.ETag {
			c.Header("ETag", snap.ETag)
			c.Status(http.StatusNotModified)
			return
		}

		filtered := featurestore.FilterByProjects(snap.Features, tok.Projects)
		c.Header("ETag", snap.ETag)
		c.JSON(http.StatusOK, filtered)
	}
}

func firstProject(tok token.EdgeToken) string {
	if tok.Projects.IsWildcard() {
		return "*"
	}
	names := tok.Projects.Slice()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// wireToggleBucket mirrors the upstream POST /client/metrics body shape: a
// window of pre-aggregated per-feature yes/no/variant counts.
type wireToggleBucket struct {
	Yes      int64            `json:"yes"`
	No       int64            `json:"no"`
	Variants map[string]int64 `json:"variants"`
}

type clientMetricsRequest struct {
	AppName     string `json:"appName"`
	InstanceID  string `json:"instanceId"`
	Environment string `json:"environment"`
	Bucket      struct {
		Start   string                       `json:"start"`
		Stop    string                       `json:"stop"`
		Toggles map[string]wireToggleBucket `json:"toggles"`
	} `json:"bucket"`
}

// handlePostMetrics serves POST /client/metrics: merges the caller's
// already-aggregated bucket into the running window, to be flushed
// upstream by the metrics sender's own timer. The request never blocks on
// that upstream call and never fails due to it.
func handlePostMetrics(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := mustToken(c)

		var req clientMetricsRequest
		if !httputil.DecodeJSONOptional(c.Writer, c.Request, &req) {
			return
		}

		environment := req.Environment
		if environment == "" {
			environment = tok.Environment
		}
		appName := req.AppName
		if appName == "" {
			appName = "unknown"
		}

		for feature, bucket := range req.Bucket.Toggles {
			app.Aggregator.AddToggleCounts(appName, environment, feature, bucket.Yes, bucket.No, bucket.Variants)
		}

		c.Status(http.StatusAccepted)
	}
}

// handlePostRegister serves POST /client/register: SDK instance
// registration. The edge proxy has no registry of its own to populate —
// it only needs to accept the call so an unmodified SDK does not treat the
// edge instance as a non-conformant upstream.
func handlePostRegister(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req map[string]interface{}
		if !httputil.DecodeJSONOptional(c.Writer, c.Request, &req) {
			return
		}
		c.Status(http.StatusAccepted)
	}
}
