package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware logs every request through the wrapped handler: method, path,
// remote address and how long the handler took.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"remote":   r.RemoteAddr,
				"duration": time.Since(start),
			}).Info("request")
		})
	}
}

// LogWebSocketConnect records an accepted websocket upgrade.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, path string) {
	logger.WithFields(logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}).Info("websocket connected")
}

// LogWebSocketDisconnect records a websocket teardown and its cause, if any.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, path string, err error) {
	fields := logrus.Fields{
		"remote": remoteAddr,
		"path":   path,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("websocket disconnected")
}
