package goAuthz

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by goAuthz APIs.
//
// MetricID values are stable within a release; exporters map them to names.
type MetricID uint16

const (
	// MetricAuthorizeAllowed counts Authorize calls that returned true.
	MetricAuthorizeAllowed MetricID = iota
	// MetricAuthorizeDenied counts Authorize calls that returned false.
	MetricAuthorizeDenied
	// MetricCacheHit is an exported constant or variable used by the authorization engine.
	MetricCacheHit
	// MetricCacheMiss is an exported constant or variable used by the authorization engine.
	MetricCacheMiss
	// MetricUnknownActor counts decisions denied because the actor does not exist.
	MetricUnknownActor
	// MetricSessionCreated is an exported constant or variable used by the authorization engine.
	MetricSessionCreated
	// MetricSessionEvicted counts sessions deactivated by the per-actor limit.
	MetricSessionEvicted
	// MetricSessionExpired is an exported constant or variable used by the authorization engine.
	MetricSessionExpired
	// MetricSessionTerminated is an exported constant or variable used by the authorization engine.
	MetricSessionTerminated
	// MetricSessionInvalid counts validations that resolved to no session.
	MetricSessionInvalid
	// MetricSessionValidated is an exported constant or variable used by the authorization engine.
	MetricSessionValidated
	// MetricSessionIPChanged is an exported constant or variable used by the authorization engine.
	MetricSessionIPChanged
	// MetricTwoFactorSetup is an exported constant or variable used by the authorization engine.
	MetricTwoFactorSetup
	// MetricTwoFactorEnabled is an exported constant or variable used by the authorization engine.
	MetricTwoFactorEnabled
	// MetricTwoFactorDisabled is an exported constant or variable used by the authorization engine.
	MetricTwoFactorDisabled
	// MetricTwoFactorSuccess is an exported constant or variable used by the authorization engine.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure is an exported constant or variable used by the authorization engine.
	MetricTwoFactorFailure
	// MetricTwoFactorRateLimited is an exported constant or variable used by the authorization engine.
	MetricTwoFactorRateLimited
	// MetricTwoFactorReplay counts TOTP codes rejected because their time
	// step was already used.
	MetricTwoFactorReplay
	// MetricBackupCodeUsed is an exported constant or variable used by the authorization engine.
	MetricBackupCodeUsed
	// MetricBackupCodeRegenerated is an exported constant or variable used by the authorization engine.
	MetricBackupCodeRegenerated
	// MetricElevationIssued is an exported constant or variable used by the authorization engine.
	MetricElevationIssued
	// MetricElevationRejected is an exported constant or variable used by the authorization engine.
	MetricElevationRejected
	// MetricAnomalyFinding counts security findings reported by the anomaly detector.
	MetricAnomalyFinding
	// MetricUpdatePublished counts permission updates published by this instance.
	MetricUpdatePublished
	// MetricUpdateApplied counts permission updates applied to the local cache.
	MetricUpdateApplied
	// MetricAuthorizeLatency is the histogram of Authorize durations.
	MetricAuthorizeLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by goAuthz APIs.
//
// Counters are lock-free and safe for concurrent use.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by goAuthz APIs.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the Authorize latency histogram is being recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc is a no-op on a nil or disabled receiver and for out-of-range IDs.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increments id by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe describes the observe operation and its observable behavior.
//
// Only MetricAuthorizeLatency carries a histogram; other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthorizeLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricAuthorizeLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthorizeLatency].buckets[i])
		}
		s.Histograms[MetricAuthorizeLatency] = buckets
	}

	return s
}

// bucketIndex maps d onto the upper bounds 0.5, 1, 2.5, 5, 10, 25, 50 ms and +Inf.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 500:
		return 0
	case us <= 1000:
		return 1
	case us <= 2500:
		return 2
	case us <= 5000:
		return 3
	case us <= 10000:
		return 4
	case us <= 25000:
		return 5
	case us <= 50000:
		return 6
	default:
		return 7
	}
}
