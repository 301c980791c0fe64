// Package middleware provides the HTTP middleware stack shared by every
// route internal/httpapi registers.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/Unleash/unleash-edge/infrastructure/httputil"
	"github.com/Unleash/unleash-edge/pkg/logging"
)

// RecoveryMiddleware recovers from panics in a route handler and logs them
// with a stack trace instead of letting the connection die silently.
type RecoveryMiddleware struct {
	logger *logging.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger *logging.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger}
}

// Handler returns the recovery middleware handler.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				m.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
					"panic":       fmt.Sprintf("%v", err),
					"stack":       string(stack),
					"path":        r.URL.Path,
					"method":      r.Method,
					"remote_addr": r.RemoteAddr,
				}).Error("panic recovered")

				httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, "", "internal server error", nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
