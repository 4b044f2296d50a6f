package tracing

import (
	"sort"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type surfaceSampler struct {
	base   sdktrace.Sampler
	always map[string]struct{}
}

// NewSurfaceSampler samples spans by trace id ratio, except spans started on
// one of the always surfaces, which are recorded every time.
func NewSurfaceSampler(ratio float64, always ...string) sdktrace.Sampler {
	set := make(map[string]struct{}, len(always))
	for _, surface := range always {
		if surface = strings.TrimSpace(surface); surface != "" {
			set[surface] = struct{}{}
		}
	}
	return surfaceSampler{base: sdktrace.TraceIDRatioBased(ratio), always: set}
}

func (s surfaceSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range p.Attributes {
		if attr.Key != SurfaceKey {
			continue
		}
		if _, ok := s.always[attr.Value.AsString()]; ok {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
			}
		}
		break
	}
	return s.base.ShouldSample(p)
}

func (s surfaceSampler) Description() string {
	surfaces := make([]string, 0, len(s.always))
	for surface := range s.always {
		surfaces = append(surfaces, surface)
	}
	sort.Strings(surfaces)
	return "SurfaceSampler{" + s.base.Description() + ",always=" + strings.Join(surfaces, "|") + "}"
}
