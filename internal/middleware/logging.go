// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, and duration of each request.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			method := r.Method

			next.ServeHTTP(w, r)

			duration := time.Since(start)
			logger.WithFields(logrus.Fields{
				"method":      method,
				"path":        path,
				"duration_ms": duration.Milliseconds(),
				"remote":      r.RemoteAddr,
				"user_agent":  r.UserAgent(),
			}).Info("http request")
		})
	}
}

// LogWebSocketConnect records an accepted session socket upgrade.
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, sessionCode string) {
	logger.WithFields(logrus.Fields{
		"remote":  remoteAddr,
		"session": sessionCode,
	}).Info("websocket connected")
}

// LogWebSocketDisconnect records a session socket closing, with the read
// loop's terminal error when there was one.
func LogWebSocketDisconnect(logger *logrus.Logger, remoteAddr, sessionCode string, err error) {
	fields := logrus.Fields{
		"remote":  remoteAddr,
		"session": sessionCode,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("websocket disconnected")
}
