// Package anomaly inspects an actor's live sessions after each session
// creation and reports advisory security findings.
//
// Findings never block the caller. Inspect recovers from panics in its own
// parsing and logs them.
package anomaly

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/goAuthz/session"
)

// Finding types.
const (
	TypeConcurrentSessions = "concurrent_sessions"
	TypeMultipleDevices    = "multiple_devices"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Finding is one advisory observation.
type Finding struct {
	Type       string
	Severity   Severity
	ActorID    string
	SessionID  string
	Details    map[string]string
	DetectedAt time.Time
}

// FindingSink receives findings for persistence or review.
type FindingSink interface {
	RecordFinding(ctx context.Context, f Finding) error
}

// Counters holds the last value reported per actor and finding type when
// repeats are suppressed. *cache.Cache satisfies it.
type Counters interface {
	ActorCounter(actorID, name string) int64
	SetActorCounter(actorID, name string, value int64)
}

// Config tunes the detector. Zero values select defaults.
type Config struct {
	// ConcurrentThreshold is exceeded when more sessions than this are live.
	ConcurrentThreshold int
	// DeviceThreshold is exceeded when more distinct device types than this
	// were seen inside DeviceWindow.
	DeviceThreshold int
	DeviceWindow    time.Duration
	// SuppressRepeats reports a finding again only once its observed value
	// grows past the last reported one. Off, every inspection above a
	// threshold reports.
	SuppressRepeats bool
}

const (
	DefaultConcurrentThreshold = 3
	DefaultDeviceThreshold     = 2
	DefaultDeviceWindow        = 24 * time.Hour
)

// Detector evaluates the heuristics.
type Detector struct {
	cfg      Config
	counters Counters
	log      logr.Logger
}

// NewDetector returns a Detector. counters is only consulted with
// SuppressRepeats set and may be nil otherwise.
func NewDetector(cfg Config, counters Counters, log logr.Logger) *Detector {
	if cfg.ConcurrentThreshold <= 0 {
		cfg.ConcurrentThreshold = DefaultConcurrentThreshold
	}
	if cfg.DeviceThreshold <= 0 {
		cfg.DeviceThreshold = DefaultDeviceThreshold
	}
	if cfg.DeviceWindow <= 0 {
		cfg.DeviceWindow = DefaultDeviceWindow
	}
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Detector{cfg: cfg, counters: counters, log: log}
}

// Inspect evaluates the actor's live sessions right after sessionID was
// created and returns one finding per exceeded threshold.
func (d *Detector) Inspect(actorID, sessionID string, active []*session.Session, now time.Time) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(fmt.Errorf("panic: %v", r), "anomaly inspection failed", "actor", actorID)
			findings = nil
		}
	}()

	count := len(active)
	if d.crossed(actorID, TypeConcurrentSessions, count, d.cfg.ConcurrentThreshold) {
		findings = append(findings, Finding{
			Type:      TypeConcurrentSessions,
			Severity:  SeverityMedium,
			ActorID:   actorID,
			SessionID: sessionID,
			Details: map[string]string{
				"active_sessions": strconv.Itoa(count),
				"threshold":       strconv.Itoa(d.cfg.ConcurrentThreshold),
			},
			DetectedAt: now,
		})
	}

	types := d.deviceTypes(active, now)
	if d.crossed(actorID, TypeMultipleDevices, len(types), d.cfg.DeviceThreshold) {
		findings = append(findings, Finding{
			Type:      TypeMultipleDevices,
			Severity:  SeverityLow,
			ActorID:   actorID,
			SessionID: sessionID,
			Details: map[string]string{
				"device_types": strings.Join(types, ","),
				"window":       d.cfg.DeviceWindow.String(),
			},
			DetectedAt: now,
		})
	}
	return findings
}

// crossed reports whether value exceeds threshold. With SuppressRepeats it
// also requires value to be above the last reported level; that level
// resets once the value falls back.
func (d *Detector) crossed(actorID, name string, value, threshold int) bool {
	if !d.cfg.SuppressRepeats {
		return value > threshold
	}
	if value <= threshold {
		if d.counters != nil && d.counters.ActorCounter(actorID, name) != 0 {
			d.counters.SetActorCounter(actorID, name, 0)
		}
		return false
	}
	if d.counters == nil {
		return true
	}
	if int64(value) <= d.counters.ActorCounter(actorID, name) {
		return false
	}
	d.counters.SetActorCounter(actorID, name, int64(value))
	return true
}

func (d *Detector) deviceTypes(active []*session.Session, now time.Time) []string {
	cutoff := now.Add(-d.cfg.DeviceWindow)
	seen := make(map[string]struct{})
	for _, s := range active {
		if s == nil || s.CreatedAt.Before(cutoff) {
			continue
		}
		dt := s.Device.Type
		if dt == "" {
			dt = session.ParseUserAgent(s.UserAgent).Type
		}
		seen[string(dt)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
