package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apprelay "github.com/astro-web3/token-relay/internal/app/relay"
	"github.com/astro-web3/token-relay/internal/domain/relay"
	"github.com/astro-web3/token-relay/pkg/logger"
	"github.com/astro-web3/token-relay/pkg/security"
	"github.com/astro-web3/token-relay/pkg/tracer"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const maxRelayBodyBytes = 10 << 20

// RelayService is the application surface the handlers depend on.
type RelayService interface {
	WhoAmI(ctx context.Context, sc *security.Context) *apprelay.Identity
	Forward(ctx context.Context, sc *security.Context, call relay.Call) (*relay.Result, error)
}

type Handler struct {
	appService RelayService
}

func NewHandler(appService RelayService) *Handler {
	return &Handler{appService: appService}
}

type WhoAmIResponse struct {
	Subject       string         `json:"subject,omitempty"`
	Authenticated bool           `json:"authenticated"`
	Authorities   []string       `json:"authorities"`
	Claims        map[string]any `json:"claims,omitempty"`
}

func (h *Handler) WhoAmI(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.WhoAmI")
	defer span.End()

	sc, err := security.FromContext(ctx)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "security context unavailable", slog.String("error", err.Error()))
		abortWithError(c, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	id := h.appService.WhoAmI(ctx, sc)
	c.JSON(http.StatusOK, WhoAmIResponse{
		Subject:       id.Subject,
		Authenticated: id.Authenticated,
		Authorities:   id.Authorities,
		Claims:        id.Claims,
	})
}

func (h *Handler) Relay(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Relay")
	defer span.End()

	upstream := c.Param("upstream")
	span.SetAttributes(attribute.String("relay.upstream", upstream))

	sc, err := security.FromContext(ctx)
	if err != nil {
		span.RecordError(err)
		logger.ErrorContext(ctx, "security context unavailable", slog.String("error", err.Error()))
		abortWithError(c, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	var body []byte
	if c.Request.Body != nil {
		body, err = io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRelayBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				abortWithError(c, http.StatusRequestEntityTooLarge, codeRequestTooLarge, "request body too large")
				return
			}
			abortWithError(c, http.StatusBadRequest, codeBadRequest, "failed to read request body")
			return
		}
	}

	res, err := h.appService.Forward(ctx, sc, relay.Call{
		Upstream: upstream,
		Method:   c.Request.Method,
		Path:     c.Param("path"),
		Query:    c.Request.URL.RawQuery,
		Header:   c.Request.Header.Clone(),
		Body:     body,
	})
	if err != nil {
		span.RecordError(err)
		status, code, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "relay failed",
				slog.String("upstream", upstream),
				slog.String("error", err.Error()),
			)
		} else {
			logger.WarnContext(ctx, "relay refused",
				slog.String("upstream", upstream),
				slog.String("error", err.Error()),
			)
		}
		abortWithError(c, status, code, msg)
		return
	}

	for k, vs := range res.Header {
		if skipResponseHeader(k) {
			continue
		}
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	if ct := res.Header.Get("Content-Type"); ct != "" {
		c.Data(res.Status, ct, res.Body)
		return
	}
	c.Status(res.Status)
	_, _ = c.Writer.Write(res.Body)
}

func skipResponseHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "content-type", "connection", "keep-alive", "transfer-encoding", "trailer", "upgrade":
		return true
	}
	return false
}
