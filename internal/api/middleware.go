package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-liveqa/internal/auth"
	"go.uber.org/zap"
)

func (s *QAApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error("panic", zap.Error(panicError), zap.String("path", r.URL.Path))
				w.Header().Set("Connection", "close")
				s.writeError(w, NewInternalServerError(panicError))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request. The gorilla logging handler keeps
// the response writer hijackable for websocket upgrades.
func (s *QAApp) requestLogger(next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		s.log.Debug("request",
			zap.String("method", p.Request.Method),
			zap.String("path", p.URL.Path),
			zap.Int("status", p.StatusCode),
			zap.Int("size", p.Size),
			zap.Duration("duration", time.Since(p.TimeStamp)),
		)
	})
}

// presenterMiddleware requires a valid bearer token and stores the
// presenter identity in the request context.
func (s *QAApp) presenterMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authorizer.Authorize(r.Context(), auth.BearerToken(r))
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				s.log.Error("authorize request", zap.Error(err))
				s.writeError(w, NewInternalServerError(err))
				return
			}
			s.writeError(w, NewUnauthorizedError())
			return
		}

		if !identity.IsPresenter() {
			s.writeError(w, NewUnauthorizedError())
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	}
}
