package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/rest"
)

func (c controller) generateTimeBasedId() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + c.generator.GenerateRandomString(6)
}

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", c.generateTimeBasedId()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (c controller) requestLoggingMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.logger.InfoContext(r.Context(), "request",
			"method", r.Method,
			"url", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		next.ServeHTTP(w, r)
	})
}

func (c controller) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := c.parseJWT(getToken(r))
		if err != nil {
			c.logger.DebugContext(r.Context(), "failed to parse token", "error", err)
			rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "invalid user"})
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey, u)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("user_id", u.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
