package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Unleash/unleash-edge/infrastructure/httputil"
	"github.com/Unleash/unleash-edge/internal/edgeapp"
)

type validateRequest struct {
	Tokens []string `json:"tokens"`
}

type validateResult struct {
	Token       string   `json:"token"`
	Valid       bool     `json:"valid"`
	Type        string   `json:"type,omitempty"`
	Projects    []string `json:"projects,omitempty"`
	Environment string   `json:"environment,omitempty"`
}

// handleEdgeValidate serves POST /edge/validate using exactly the same
// wire shape upstream exposes, so a caller can point either at the origin
// feature-management server or at this edge instance interchangeably. Not
// gated behind requireToken: validating a token is how a caller finds out
// whether it is usable in the first place.
func handleEdgeValidate(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateRequest
		if !httputil.DecodeJSON(c.Writer, c.Request, &req) {
			return
		}

		out := make([]validateResult, 0, len(req.Tokens))
		for _, raw := range req.Tokens {
			tok, allowed := admit(c.Request.Context(), app, raw)
			out = append(out, validateResult{
				Token:       raw,
				Valid:       allowed,
				Type:        tok.Kind.String(),
				Projects:    tok.Projects.Slice(),
				Environment: tok.Environment,
			})
		}

		c.JSON(http.StatusOK, out)
	}
}
