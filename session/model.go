package session

import "time"

// Termination reasons recorded on deactivated sessions.
const (
	ReasonExpired          = "expired"
	ReasonSessionLimit     = "session_limit"
	ReasonLogout           = "logout"
	ReasonRevoked          = "revoked"
	ReasonActorDeactivated = "actor_deactivated"
)

// Session is one authenticated actor session.
//
// Token carries the plaintext token only on the value returned from
// creation. Stores persist TokenHash and never Token.
type Session struct {
	ID        string
	ActorID   string
	Token     string
	TokenHash [32]byte

	IPAddress   string
	UserAgent   string
	Device      Device
	Fingerprint string

	Active           bool
	TerminatedReason string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether s is active and unexpired at now.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.Active && now.Before(s.ExpiresAt)
}

// Clone returns a copy of s without the plaintext token.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Token = ""
	return &c
}
