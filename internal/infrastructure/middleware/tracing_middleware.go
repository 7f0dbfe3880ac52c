package middleware

import (
	"time"

	apperrors "meetsignal/pkg/errors"
	"meetsignal/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Keys the websocket gateway sets on the gin context once the upgrade is decided.
const (
	ContextKeyConnectionID = "connection_id"
	ContextKeyUpgrade      = "ws_upgrade"
)

// Upgrade outcomes recorded under ContextKeyUpgrade.
const (
	UpgradeAccepted       = "accepted"
	UpgradeAtCapacity     = "at_capacity"
	UpgradeFailed         = "failed"
	UpgradeHubUnavailable = "hub_unavailable"
)

// TracingMiddleware opens one span per request. For /ws the span covers the whole
// websocket session and carries the upgrade outcome and connection id.
func TracingMiddleware(authMode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, route)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.remote_addr", c.ClientIP()),
			tracing.AuthModeKey.String(authMode),
		)
		if id := c.Param("id"); id != "" {
			span.SetAttributes(tracing.MeetingIDKey.String(id))
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
		)
		if identity, _ := IdentityFromContext(c); identity.UserID != "" {
			span.SetAttributes(tracing.UserIDKey.String(identity.UserID))
		}

		failed := status >= 400
		if outcome := c.GetString(ContextKeyUpgrade); outcome != "" {
			span.SetAttributes(tracing.UpgradeKey.String(outcome))
			if id := c.GetString(ContextKeyConnectionID); id != "" {
				span.SetAttributes(tracing.ConnectionIDKey.String(id))
			}
			failed = outcome != UpgradeAccepted
		}
		if last := c.Errors.Last(); last != nil {
			if appErr := apperrors.GetAppError(last.Err); appErr != nil {
				span.SetAttributes(tracing.ErrorCodeKey.String(string(appErr.Code)))
			}
			failed = true
		}

		if failed {
			span.SetStatus(codes.Error, c.Errors.String())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
