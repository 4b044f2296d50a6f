package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "override"),
		attribute.String("user_id", "456"),
		attribute.String("currency", "USD"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("expected user_id to be dropped")
		}
	}
}

func TestMetricsRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSale(context.Background(), "completed")
	m.RecordCommission(context.Background(), "override", "USD", 100)
	m.RecordPayoutCapped(context.Background())
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "nodeboss"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m.commissionTransactions == nil || m.saleEvents == nil || m.rateLimitDenied == nil {
		t.Fatalf("expected all counters to be initialized")
	}
	m.RecordCommission(context.Background(), "referral_sale", "usd", 2500)
}
