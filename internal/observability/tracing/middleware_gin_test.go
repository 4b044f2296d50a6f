package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/nodeboss/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTracedRouter(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/r/:code", func(c *gin.Context) { c.Redirect(http.StatusFound, "/") })
	r.POST("/webhooks/:org_id/sales", func(c *gin.Context) {
		c.Status(http.StatusGone)
	})
	r.GET("/api/sales", func(c *gin.Context) {
		ctx := obscontext.WithOrgID(c.Request.Context(), "42")
		c.Request = c.Request.WithContext(ctx)
		c.Status(http.StatusServiceUnavailable)
	})
	return r, recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestGinMiddlewareNamesSpanAfterRoute(t *testing.T) {
	r, recorder := newTracedRouter(t)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/r/alice-01", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "HTTP GET /r/:code" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	if v, _ := spanAttr(spans[0], SurfaceKey); v.AsString() != SurfaceReferralRedirect {
		t.Fatalf("surface = %q", v.AsString())
	}
	if _, ok := spanAttr(spans[0], OrgIDKey); ok {
		t.Fatalf("public redirect should not carry an org id")
	}
}

func TestGinMiddlewareMarksRejectedSaleEvents(t *testing.T) {
	r, recorder := newTracedRouter(t)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/7/sales", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if v, _ := spanAttr(span, OrgIDKey); v.AsString() != "7" {
		t.Fatalf("org id = %q, want path org", v.AsString())
	}
	events := span.Events()
	if len(events) != 1 || events[0].Name != "sale_event.rejected" {
		t.Fatalf("expected sale_event.rejected event, got %v", events)
	}
	if span.Status().Code == codes.Error {
		t.Fatalf("a 4xx delivery is not a server error")
	}
}

func TestGinMiddlewareFlagsServerErrors(t *testing.T) {
	r, recorder := newTracedRouter(t)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sales", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status for 503")
	}
	if v, _ := spanAttr(spans[0], OrgIDKey); v.AsString() != "42" {
		t.Fatalf("org id = %q, want the authenticated org", v.AsString())
	}
}

func TestGinMiddlewareSkipsHealth(t *testing.T) {
	r, recorder := newTracedRouter(t)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if n := len(recorder.Ended()); n != 0 {
		t.Fatalf("health checks should not be traced, got %d spans", n)
	}
}

func TestSurfaceSamplerAlwaysKeepsSaleWebhooks(t *testing.T) {
	sampler := NewSurfaceSampler(0.0000001, SurfaceSaleWebhook)
	var highTraceID trace.TraceID
	for i := range highTraceID {
		highTraceID[i] = 0xff
	}

	webhook := sampler.ShouldSample(sdktrace.SamplingParameters{
		TraceID:    highTraceID,
		Name:       "HTTP POST /webhooks/:org_id/sales",
		Attributes: []attribute.KeyValue{SurfaceKey.String(SurfaceSaleWebhook)},
	})
	if webhook.Decision != sdktrace.RecordAndSample {
		t.Fatalf("sale webhook decision = %v", webhook.Decision)
	}

	api := sampler.ShouldSample(sdktrace.SamplingParameters{
		TraceID:    highTraceID,
		Name:       "HTTP GET /api/sales",
		Attributes: []attribute.KeyValue{SurfaceKey.String(SurfaceAPI)},
	})
	if api.Decision != sdktrace.Drop {
		t.Fatalf("api decision = %v, want ratio sampler to drop", api.Decision)
	}
}

func TestSurfaceOf(t *testing.T) {
	cases := map[string]string{
		"":                        SurfaceUnmatched,
		"/r/:code":                SurfaceReferralRedirect,
		"/webhooks/:org_id/sales": SurfaceSaleWebhook,
		"/auth/login":             SurfaceAuth,
		"/api/commissions/:id":    SurfaceAPI,
	}
	for route, want := range cases {
		if got := SurfaceOf(route); got != want {
			t.Fatalf("SurfaceOf(%q) = %q, want %q", route, got, want)
		}
	}
}
