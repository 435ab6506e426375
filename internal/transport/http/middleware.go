package http

import (
	"log/slog"
	"time"

	"github.com/astro-web3/token-relay/internal/domain/authn"
	"github.com/astro-web3/token-relay/pkg/logger"
	"github.com/astro-web3/token-relay/pkg/metrics"
	"github.com/astro-web3/token-relay/pkg/security"
	"github.com/astro-web3/token-relay/pkg/tracer"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", requestid.Get(c)),
		}

		if c.Writer.Status() >= 500 {
			logger.ErrorContext(c.Request.Context(), "request failed", attrs...)
		} else {
			logger.InfoContext(c.Request.Context(), "request completed", attrs...)
		}
	}
}

// authMiddleware binds the caller's security context to the request context.
// Requests without credentials continue as anonymous.
func authMiddleware(authService authn.Service, m metrics.RelayMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "transport.http.Authenticate")
		defer span.End()

		sc, err := authService.Authenticate(ctx, c.GetHeader("Authorization"))
		if err != nil {
			status, code, msg := statusFor(err)
			if code == codeUnauthorized {
				m.RecordAuthentication(ctx, string(authn.ResultRejected))
				logger.WarnContext(ctx, "authentication rejected", slog.String("error", err.Error()))
				c.Header("WWW-Authenticate", wwwAuthenticateInvalid)
			} else {
				m.RecordAuthentication(ctx, string(authn.ResultError))
				logger.ErrorContext(ctx, "authentication failed", slog.String("error", err.Error()))
			}
			span.RecordError(err)
			abortWithError(c, status, code, msg)
			return
		}

		result := authn.ResultAnonymous
		if sc.Authenticated() {
			result = authn.ResultAuthenticated
			span.SetAttributes(attribute.String("auth.subject", sc.Subject()))
		}
		span.SetAttributes(attribute.String("auth.result", string(result)))
		m.RecordAuthentication(ctx, string(result))

		c.Request = c.Request.WithContext(security.WithContext(c.Request.Context(), sc))
		c.Next()
	}
}
