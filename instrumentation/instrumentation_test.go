package instrumentation

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewDisabledUsesNoopProviders(t *testing.T) {
	inst, err := New(Config{ServiceName: "test", Enabled: false})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if inst.Metrics() == nil {
		t.Fatal("metrics holder missing")
	}

	// Recording against no-op instruments must not panic.
	inst.Metrics().RecordCodeExchange(context.Background(), "client-1", "S256")
	inst.Metrics().RecordAuditEvent(context.Background(), "token_issued")

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestMetricsRecordThroughSDK(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := New(Config{
		ServiceName:   "test",
		Enabled:       true,
		MeterProvider: provider,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx := context.Background()
	inst.Metrics().RecordAuthorizationStarted(ctx, "client-1")
	inst.Metrics().RecordAuthorizationStarted(ctx, "client-1")
	inst.Metrics().RecordCodeReuseDetected(ctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	found := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			found[m.Name] = total
		}
	}

	if found["oauth.authorization.started"] != 2 {
		t.Errorf("oauth.authorization.started = %d, want 2", found["oauth.authorization.started"])
	}
	if found["oauth.code.reuse_detected"] != 1 {
		t.Errorf("oauth.code.reuse_detected = %d, want 1", found["oauth.code.reuse_detected"])
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := New(Config{
		ServiceName:   "test",
		Enabled:       true,
		MeterProvider: provider,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	counts := func(n int64) StorageSizeCallback {
		return func() int64 { return n }
	}
	if err := inst.RegisterStorageSizeCallbacks(counts(1), counts(2), counts(3), counts(4), counts(5), counts(6)); err != nil {
		t.Fatalf("RegisterStorageSizeCallbacks() error: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error: %v", err)
	}

	want := map[string]int64{
		"storage.clients.count":        1,
		"storage.states.count":         2,
		"storage.codes.count":          3,
		"storage.tokens.count":         4,
		"storage.refresh_tokens.count": 5,
		"storage.sessions.count":       6,
	}
	got := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok {
				continue
			}
			for _, dp := range gauge.DataPoints {
				got[m.Name] = dp.Value
			}
		}
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("%s = %d, want %d", name, got[name], value)
		}
	}
}
