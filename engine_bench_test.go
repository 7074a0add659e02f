package goAuthz

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func newBenchmarkEngine(b *testing.B) *Engine {
	b.Helper()

	cfg := testConfig()
	cfg.Anomaly.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true
	store := seedTestStore()
	engine, err := New().
		WithConfig(cfg).
		WithActorProvider(store).
		WithPermissionSource(store).
		WithSessionStore(store).
		WithTwoFactorStore(store).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(engine.Close)
	return engine
}

func BenchmarkAuthorizeCacheHit(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()
	if _, err := engine.Authorize(ctx, "alice", "products", "read", ""); err != nil {
		b.Fatalf("warmup failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authorize(ctx, "alice", "products", "read", ""); err != nil {
			b.Fatalf("authorize failed: %v", err)
		}
	}
}

func BenchmarkAuthorizeCacheHitParallel(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()
	if _, err := engine.Authorize(ctx, "bob", "categories", "delete", ""); err != nil {
		b.Fatalf("warmup failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := engine.Authorize(ctx, "bob", "categories", "delete", ""); err != nil {
				b.Fatalf("authorize failed: %v", err)
			}
		}
	})
}

func BenchmarkAuthorizeMiss(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Authorize(ctx, "carol", "products", "read", strconv.Itoa(i)); err != nil {
			b.Fatalf("authorize failed: %v", err)
		}
	}
}

func BenchmarkValidateSession(b *testing.B) {
	engine := newBenchmarkEngine(b)
	ctx := context.Background()
	sess, err := engine.CreateSession(ctx, "alice", SessionOptions{})
	if err != nil {
		b.Fatalf("create failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if got, err := engine.ValidateSession(ctx, sess.Token, ""); err != nil || got == nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricCacheHit)
	}
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricCacheHit)
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 700 * time.Microsecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricAuthorizeLatency, d)
		}
	})
}
