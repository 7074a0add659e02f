package goAuthz

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// AuditEvent is one security-relevant occurrence. Tokens, TOTP secrets and
// backup codes never appear in any field.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	ActorID   string            `json:"actor_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events from the engine's audit worker, one at a time.
// A sink that can fail reports the failure itself; the engine never retries.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// DiscardSink drops every event.
type DiscardSink struct{}

func (DiscardSink) Emit(context.Context, AuditEvent) {}

// LogSink writes each event as a structured log line at V(level).
type LogSink struct {
	log   logr.Logger
	level int
}

func NewLogSink(log logr.Logger, level int) *LogSink {
	return &LogSink{log: log.WithName("audit"), level: level}
}

func (s *LogSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.log.GetSink() == nil {
		return
	}
	kv := []any{
		"event", event.EventType,
		"success", event.Success,
		"at", event.Timestamp,
	}
	if event.ActorID != "" {
		kv = append(kv, "actor", event.ActorID)
	}
	if event.SessionID != "" {
		kv = append(kv, "session", event.SessionID)
	}
	if event.IP != "" {
		kv = append(kv, "ip", event.IP)
	}
	if event.Error != "" {
		kv = append(kv, "code", event.Error)
	}
	if len(event.Metadata) > 0 {
		kv = append(kv, "metadata", event.Metadata)
	}
	s.log.V(s.level).Info("audit event", kv...)
}

// JSONLinesSink encodes events as newline-delimited JSON. Writes are
// serialized so lines never interleave.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	if w == nil {
		return &JSONLinesSink{}
	}
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

func (s *JSONLinesSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}

// FanoutSink hands every event to each sink in order.
type FanoutSink []AuditSink

func (f FanoutSink) Emit(ctx context.Context, event AuditEvent) {
	for _, s := range f {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
