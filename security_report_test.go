package goAuthz

import (
	"context"
	"strings"
	"testing"

	"github.com/MrEthical07/goAuthz/broadcast"
)

type discardTransport struct{}

func (discardTransport) Publish(context.Context, []byte) error { return nil }

func (discardTransport) Subscribe(ctx context.Context, _ func([]byte)) error {
	<-ctx.Done()
	return nil
}

func (discardTransport) Close() error { return nil }

func TestSecurityReportReflectsConfig(t *testing.T) {
	te := newTestEngine(t, elevationTestConfig())

	r := te.SecurityReport()
	if !r.ElevationEnabled || r.ElevationAlgorithm != "hs256" {
		t.Fatalf("unexpected elevation fields %+v", r)
	}
	if r.MaxSessionsPerActor != 5 || r.BackupCodeCount != 10 {
		t.Fatalf("unexpected session/backup fields %+v", r)
	}
	if r.CrossInstanceBroadcast {
		t.Fatal("expected no transport")
	}
	if !strings.Contains(strings.Join(r.Warnings, ","), "no broadcast transport") {
		t.Fatalf("expected transport warning, got %v", r.Warnings)
	}
}

func TestSecurityReportWithTransport(t *testing.T) {
	var tr broadcast.Transport = discardTransport{}
	te := newTestEngine(t, testConfig(), func(b *Builder) {
		b.WithTransport(tr)
	})
	if !te.SecurityReport().CrossInstanceBroadcast {
		t.Fatal("expected transport to be reported")
	}
}
