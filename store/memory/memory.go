// Package memory implements every goAuthz store contract in process memory.
// It suits tests and single-process deployments; nothing survives a
// restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goAuthz/anomaly"
	"github.com/MrEthical07/goAuthz/mfa"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/session"
)

// Store holds actors, role grants, sessions, two-factor records and
// findings. All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	actors   map[string]permission.Actor
	grants   map[permission.Role][]permission.Permission
	sessions map[string]*session.Session
	byToken  map[[32]byte]string
	byActor  map[string][]string
	secrets  map[string]mfa.Secret
	codes    map[string][]mfa.BackupCode
	findings []anomaly.Finding
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		actors:   make(map[string]permission.Actor),
		grants:   make(map[permission.Role][]permission.Permission),
		sessions: make(map[string]*session.Session),
		byToken:  make(map[[32]byte]string),
		byActor:  make(map[string][]string),
		secrets:  make(map[string]mfa.Secret),
		codes:    make(map[string][]mfa.BackupCode),
	}
}

/* ==== actors and grants ==== */

// PutActor inserts or replaces an actor.
func (s *Store) PutActor(a permission.Actor) {
	s.mu.Lock()
	s.actors[a.ID] = a
	s.mu.Unlock()
}

// GetActor implements permission.ActorProvider.
func (s *Store) GetActor(_ context.Context, actorID string) (permission.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[actorID]
	if !ok {
		return permission.Actor{}, permission.ErrActorNotFound
	}
	return a, nil
}

// SetRolePermissions replaces the grants of role.
func (s *Store) SetRolePermissions(role permission.Role, grants []permission.Permission) {
	s.mu.Lock()
	s.grants[role] = append([]permission.Permission(nil), grants...)
	s.mu.Unlock()
}

// PermissionsForRole implements permission.Source.
func (s *Store) PermissionsForRole(_ context.Context, role permission.Role) ([]permission.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]permission.Permission(nil), s.grants[role]...), nil
}

/* ==== sessions ==== */

// CreateWithLimit implements session.Store.
func (s *Store) CreateWithLimit(_ context.Context, sess *session.Session, limit int, now time.Time) ([]string, error) {
	if limit < 1 {
		return nil, session.ErrInvalidLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make([]string, 0, len(s.byActor[sess.ActorID]))
	for _, id := range s.byActor[sess.ActorID] {
		if existing := s.sessions[id]; existing.Live(now) {
			live = append(live, id)
		}
	}

	var evicted []string
	for len(live) > limit-1 {
		id := live[0]
		live = live[1:]
		victim := s.sessions[id]
		victim.Active = false
		victim.TerminatedReason = session.ReasonSessionLimit
		evicted = append(evicted, id)
	}

	stored := sess.Clone()
	s.sessions[stored.ID] = stored
	s.byToken[stored.TokenHash] = stored.ID
	s.byActor[stored.ActorID] = append(live, stored.ID)
	return evicted, nil
}

// Get implements session.Store.
func (s *Store) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess.Clone(), nil
}

// GetByTokenHash implements session.Store.
func (s *Store) GetByTokenHash(ctx context.Context, hash [32]byte) (*session.Session, error) {
	s.mu.Lock()
	id, ok := s.byToken[hash]
	s.mu.Unlock()
	if !ok {
		return nil, session.ErrNotFound
	}
	return s.Get(ctx, id)
}

// Deactivate implements session.Store.
func (s *Store) Deactivate(_ context.Context, id, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.Active {
		return false, nil
	}
	sess.Active = false
	sess.TerminatedReason = reason
	s.unindexLocked(sess.ActorID, id)
	return true, nil
}

// DeactivateAll implements session.Store.
func (s *Store) DeactivateAll(_ context.Context, actorID, exceptID, reason string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	keep := s.byActor[actorID][:0]
	for _, id := range s.byActor[actorID] {
		if id == exceptID {
			keep = append(keep, id)
			continue
		}
		if sess := s.sessions[id]; sess.Active {
			sess.Active = false
			sess.TerminatedReason = reason
			out = append(out, id)
		}
	}
	s.byActor[actorID] = keep
	return out, nil
}

// ListActive implements session.Store.
func (s *Store) ListActive(_ context.Context, actorID string, now time.Time) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.byActor[actorID]))
	for _, id := range s.byActor[actorID] {
		if sess := s.sessions[id]; sess.Live(now) {
			out = append(out, sess.Clone())
		}
	}
	return out, nil
}

func (s *Store) unindexLocked(actorID, id string) {
	ids := s.byActor[actorID]
	for i, v := range ids {
		if v == id {
			s.byActor[actorID] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

/* ==== two-factor ==== */

// GetTwoFactor implements mfa.Store.
func (s *Store) GetTwoFactor(_ context.Context, actorID string) (*mfa.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[actorID]
	if !ok {
		return nil, nil
	}
	return &sec, nil
}

// SaveTwoFactorSecret implements mfa.Store.
func (s *Store) SaveTwoFactorSecret(_ context.Context, actorID, secret string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[actorID] = mfa.Secret{ActorID: actorID, Secret: secret, CreatedAt: now}
	return nil
}

// SetTwoFactorEnabled implements mfa.Store.
func (s *Store) SetTwoFactorEnabled(_ context.Context, actorID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[actorID]
	if !ok {
		return nil
	}
	sec.Enabled = true
	sec.EnabledAt = now
	s.secrets[actorID] = sec
	return nil
}

// AdvanceTOTPCounter implements mfa.Store.
func (s *Store) AdvanceTOTPCounter(_ context.Context, actorID string, counter int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[actorID]
	if !ok || counter <= sec.LastUsedCounter {
		return false, nil
	}
	sec.LastUsedCounter = counter
	s.secrets[actorID] = sec
	return true, nil
}

// DeleteTwoFactor implements mfa.Store.
func (s *Store) DeleteTwoFactor(_ context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, actorID)
	delete(s.codes, actorID)
	return nil
}

// ReplaceBackupCodes implements mfa.Store.
func (s *Store) ReplaceBackupCodes(_ context.Context, actorID string, codes []mfa.BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[actorID] = append([]mfa.BackupCode(nil), codes...)
	return nil
}

// ConsumeBackupCode implements mfa.Store.
func (s *Store) ConsumeBackupCode(_ context.Context, actorID, codeHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.codes[actorID]
	for i := range codes {
		if !codes[i].Used && codes[i].CodeHash == codeHash {
			codes[i].Used = true
			codes[i].UsedAt = now
			return true, nil
		}
	}
	return false, nil
}

// CountUnusedBackupCodes implements mfa.Store.
func (s *Store) CountUnusedBackupCodes(_ context.Context, actorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes[actorID] {
		if !c.Used {
			n++
		}
	}
	return n, nil
}

/* ==== findings ==== */

// RecordFinding implements anomaly.FindingSink.
func (s *Store) RecordFinding(_ context.Context, f anomaly.Finding) error {
	s.mu.Lock()
	s.findings = append(s.findings, f)
	s.mu.Unlock()
	return nil
}

// Findings returns recorded findings ordered by detection time.
func (s *Store) Findings() []anomaly.Finding {
	s.mu.Lock()
	out := append([]anomaly.Finding(nil), s.findings...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out
}

var (
	_ permission.ActorProvider = (*Store)(nil)
	_ permission.Source        = (*Store)(nil)
	_ session.Store            = (*Store)(nil)
	_ mfa.Store                = (*Store)(nil)
	_ anomaly.FindingSink      = (*Store)(nil)
)
