package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/goAuthz/cache"
	"github.com/MrEthical07/goAuthz/session"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func sessions(types ...session.DeviceType) []*session.Session {
	out := make([]*session.Session, 0, len(types))
	for i, dt := range types {
		out = append(out, &session.Session{
			ID:        fmt.Sprintf("s%d", i),
			ActorID:   "a1",
			Active:    true,
			Device:    session.Device{Type: dt},
			CreatedAt: now.Add(-time.Hour),
			ExpiresAt: now.Add(time.Hour),
		})
	}
	return out
}

func findingTypes(fs []Finding) map[string]Severity {
	out := make(map[string]Severity, len(fs))
	for _, f := range fs {
		out[f.Type] = f.Severity
	}
	return out
}

func TestConcurrentSessionsThreshold(t *testing.T) {
	d := NewDetector(Config{}, nil, logr.Discard())

	got := d.Inspect("a1", "s2", sessions(session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop), now)
	if len(got) != 0 {
		t.Fatalf("expected no finding at threshold, got %+v", got)
	}

	got = d.Inspect("a1", "s3", sessions(session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop), now)
	types := findingTypes(got)
	if types[TypeConcurrentSessions] != SeverityMedium || len(types) != 1 {
		t.Fatalf("expected medium concurrent_sessions, got %+v", got)
	}
	if got[0].Details["active_sessions"] != "4" || got[0].SessionID != "s3" {
		t.Fatalf("unexpected details %+v", got[0])
	}
}

func TestMultipleDevicesWithinWindow(t *testing.T) {
	d := NewDetector(Config{}, nil, logr.Discard())

	got := d.Inspect("a1", "s2", sessions(session.DeviceDesktop, session.DeviceMobile, session.DeviceTablet), now)
	types := findingTypes(got)
	if types[TypeMultipleDevices] != SeverityLow {
		t.Fatalf("expected low multiple_devices, got %+v", got)
	}
	if got[0].Details["device_types"] != "desktop,mobile,tablet" {
		t.Fatalf("unexpected device list %q", got[0].Details["device_types"])
	}

	old := sessions(session.DeviceDesktop, session.DeviceMobile, session.DeviceTablet)
	old[0].CreatedAt = now.Add(-25 * time.Hour)
	if got := d.Inspect("a1", "s2", old, now); len(got) != 0 {
		t.Fatalf("expected sessions outside the window ignored, got %+v", got)
	}
}

func TestDeviceTypeFallsBackToUserAgent(t *testing.T) {
	d := NewDetector(Config{}, nil, logr.Discard())
	ss := sessions("", "", "")
	ss[0].UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0 Safari/537.36"
	ss[1].UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148 Safari/604.1"
	ss[2].UserAgent = "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) Safari/604.1"

	if got := findingTypes(d.Inspect("a1", "s2", ss, now)); got[TypeMultipleDevices] != SeverityLow {
		t.Fatalf("expected multiple_devices from user agents, got %+v", got)
	}
}

func TestFindingReportedOnEveryInspectionAboveThreshold(t *testing.T) {
	counters := cache.New(cache.Config{})
	d := NewDetector(Config{}, counters, logr.Discard())
	five := sessions(session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop)

	for i := 0; i < 4; i++ {
		got := d.Inspect("a1", fmt.Sprintf("s%d", i), five, now)
		if len(got) != 1 || got[0].Type != TypeConcurrentSessions {
			t.Fatalf("inspection %d: expected a concurrent_sessions finding, got %+v", i, got)
		}
	}
}

func TestRepeatFindingsSuppressedUntilGrowth(t *testing.T) {
	counters := cache.New(cache.Config{})
	d := NewDetector(Config{SuppressRepeats: true}, counters, logr.Discard())
	four := sessions(session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop)
	five := append(four, sessions(session.DeviceDesktop)...)

	if got := d.Inspect("a1", "x", four, now); len(got) != 1 {
		t.Fatalf("expected first finding, got %+v", got)
	}
	if got := d.Inspect("a1", "x", four, now); len(got) != 0 {
		t.Fatalf("expected repeat suppressed, got %+v", got)
	}
	if got := d.Inspect("a1", "x", five, now); len(got) != 1 {
		t.Fatalf("expected growth to report, got %+v", got)
	}

	counters.InvalidateActor("a1")
	if got := d.Inspect("a1", "x", five, now); len(got) != 1 {
		t.Fatalf("expected report after counters cleared, got %+v", got)
	}

	d.Inspect("a1", "x", sessions(session.DeviceDesktop), now)
	if got := d.Inspect("a1", "x", four, now); len(got) != 1 {
		t.Fatalf("expected report after falling below threshold, got %+v", got)
	}
}

type panicCounters struct{}

func (panicCounters) ActorCounter(string, string) int64     { panic("counter backend exploded") }
func (panicCounters) SetActorCounter(string, string, int64) {}

func TestInspectRecoversFromPanics(t *testing.T) {
	d := NewDetector(Config{SuppressRepeats: true}, panicCounters{}, logr.Discard())
	got := d.Inspect("a1", "s", sessions(session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop, session.DeviceDesktop), now)
	if got != nil {
		t.Fatalf("expected nil findings after panic, got %+v", got)
	}
}
