package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/nodeboss/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Request surfaces, recorded on every server span as nodeboss.surface.
const (
	SurfaceReferralRedirect = "referral_redirect"
	SurfaceSaleWebhook      = "sale_webhook"
	SurfaceAuth             = "auth"
	SurfaceAPI              = "api"
	SurfaceUnmatched        = "unmatched"
)

const (
	SurfaceKey = attribute.Key("nodeboss.surface")
	OrgIDKey   = attribute.Key("nodeboss.org_id")
)

var untracedRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// SurfaceOf classifies a gin route template.
func SurfaceOf(route string) string {
	switch {
	case route == "":
		return SurfaceUnmatched
	case strings.HasPrefix(route, "/r/"):
		return SurfaceReferralRedirect
	case strings.HasPrefix(route, "/webhooks/"):
		return SurfaceSaleWebhook
	case strings.HasPrefix(route, "/auth/"):
		return SurfaceAuth
	default:
		return SurfaceAPI
	}
}

// GinMiddleware opens a server span per request. Health checks and
// metrics scrapes are not traced.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName + "/http")
	return func(c *gin.Context) {
		route := c.FullPath()
		if _, skip := untracedRoutes[route]; skip {
			c.Next()
			return
		}

		surface := SurfaceOf(route)
		if route == "" {
			route = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				SurfaceKey.String(surface),
				attribute.String("http.method", method),
				attribute.String("http.route", route),
			),
		)

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)
		if orgID := requestOrgID(c, surface); orgID != "" {
			span.SetAttributes(OrgIDKey.String(orgID))
		}

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		case surface == SurfaceSaleWebhook && status >= http.StatusBadRequest:
			// The gateway stops retrying on 4xx, so a rejected delivery is the
			// last trace of that sale event.
			span.AddEvent("sale_event.rejected", trace.WithAttributes(attribute.Int("http.status_code", status)))
		}
		span.End()
	}
}

// requestOrgID prefers the org resolved by auth and falls back to the org
// named in the webhook path.
func requestOrgID(c *gin.Context, surface string) string {
	if orgID := obscontext.OrgIDFromContext(c.Request.Context()); orgID != "" {
		return orgID
	}
	if surface == SurfaceSaleWebhook {
		return strings.TrimSpace(c.Param("org_id"))
	}
	return ""
}
