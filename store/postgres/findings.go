package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrEthical07/goAuthz/anomaly"
)

// RecordFinding implements anomaly.FindingSink.
func (s *Store) RecordFinding(ctx context.Context, f anomaly.Finding) error {
	details, err := json.Marshal(f.Details)
	if err != nil {
		return fmt.Errorf("marshal finding details: %w", err)
	}
	stmt, args, err := s.builder.Insert("security_findings").
		Columns("type", "severity", "actor_id", "session_id", "details", "detected_at").
		Values(f.Type, string(f.Severity), f.ActorID, f.SessionID, details, f.DetectedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert finding sql: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert finding: %w", err)
	}
	return nil
}
