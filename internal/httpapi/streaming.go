package httpapi

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	apierrors "github.com/Unleash/unleash-edge/infrastructure/errors"
	"github.com/Unleash/unleash-edge/internal/edgeapp"
	"github.com/Unleash/unleash-edge/internal/featurestore"
	"github.com/Unleash/unleash-edge/internal/token"
)

// streamPollInterval bounds how quickly a connected GET /client/streaming
// subscriber observes a new commit. The feature store itself has no
// publish/subscribe hook, so this endpoint polls it, which is adequate for
// the expected number of concurrently streaming connections.
const streamPollInterval = 2 * time.Second

// handleClientStreaming serves GET /client/streaming: a server-sent-events
// feed of the caller's project-filtered feature set, re-emitted whenever
// the backing environment's ETag changes. The initial event is sent
// immediately so a subscriber never waits a full poll interval for its
// first view.
func handleClientStreaming(app *edgeapp.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := mustToken(c)
		if tok.Kind == token.KindAdmin {
			writeAPIError(c, apierrors.TokenInvalidClient("admin tokens cannot stream client features"))
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		lastETag := ""
		ticker := time.NewTicker(streamPollInterval)
		defer ticker.Stop()

		emit := func() {
			snap, ok := app.Features.Get(tok.Environment)
			if !ok || snap.ETag == lastETag {
				return
			}
			lastETag = snap.ETag
			filtered := featurestore.FilterByProjects(snap.Features, tok.Projects)
			c.SSEvent("features", filtered)
			c.Writer.Flush()
		}

		emit()
		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-ticker.C:
				emit()
				return true
			}
		})
	}
}
