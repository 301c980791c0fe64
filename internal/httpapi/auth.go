package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Unleash/unleash-edge/infrastructure/httputil"
	apierrors "github.com/Unleash/unleash-edge/infrastructure/errors"
	"github.com/Unleash/unleash-edge/internal/edgeapp"
	"github.com/Unleash/unleash-edge/internal/mode"
	"github.com/Unleash/unleash-edge/internal/token"
)

// onDemandValidationTimeout bounds the one narrow case where a downstream
// request handler may block on upstream I/O: a Dynamic-mode token never
// seen before, validated and fetched inline so the first request for it
// need not fail outright.
const onDemandValidationTimeout = 3 * time.Second

const tokenContextKey = "edge.token"

// requireToken extracts the Authorization header, admits the raw token
// through the validator (or, in Offline mode, the token cache directly),
// and rejects the request with TokenInvalidClient when it cannot be
// admitted. On success the resolved token.EdgeToken is stashed on the gin
// context for the route handler.
func requireToken(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			writeAPIError(c, apierrors.TokenInvalidClient("missing Authorization header"))
			c.Abort()
			return
		}

		tok, allowed := admit(c.Request.Context(), app, raw)
		if !allowed {
			writeAPIError(c, apierrors.TokenInvalidClient("token not recognized"))
			c.Abort()
			return
		}

		c.Set(tokenContextKey, tok)
		c.Next()
	}
}

// admit resolves raw against the running instance's trust rules. In
// Offline mode (no validator, no upstream) only tokens already in the
// cache as Trusted/Validated are accepted — there is no upstream to ask.
// Otherwise the validator's Admit/ValidateNow pair runs the mode-sensitive
// Strict/Dynamic trust rules described by the token model.
func admit(ctx context.Context, app *edgeapp.App, raw string) (token.EdgeToken, bool) {
	if app.Mode.State() == mode.Offline || app.Validator == nil {
		tok, ok := app.Tokens.Lookup(raw)
		if !ok {
			return token.EdgeToken{}, false
		}
		return tok, tok.Status == token.StatusTrusted || tok.Status == token.StatusValidated
	}

	tok := app.Validator.Admit(raw)
	if tok.Status == token.StatusUnknown {
		waitCtx, cancel := context.WithTimeout(ctx, onDemandValidationTimeout)
		defer cancel()
		tok = app.Validator.ValidateNow(waitCtx, raw)
		if tok.Status == token.StatusValidated && app.Refresher != nil {
			app.Refresher.Tick(waitCtx)
		}
	}
	return tok, tok.Status == token.StatusValidated || tok.Status == token.StatusTrusted
}

// mustToken retrieves the token stashed by requireToken. Only ever called
// from a handler reachable behind that middleware.
func mustToken(c *gin.Context) token.EdgeToken {
	v, _ := c.Get(tokenContextKey)
	tok, _ := v.(token.EdgeToken)
	return tok
}

// writeAPIError maps an *apierrors.Error onto the standard JSON error
// envelope, preserving its HTTP status and structured details.
func writeAPIError(c *gin.Context, err *apierrors.Error) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	httputil.WriteErrorResponse(c.Writer, c.Request, status, string(err.Code), err.Message, err.Details)
}
