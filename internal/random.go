package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	// SessionTokenBytes is the raw entropy of a session token (256 bits).
	SessionTokenBytes      = 32
	sessionTokenEncodedLen = 43
)

// NewSessionToken returns a base64url (unpadded) encoding of n random bytes.
// n below SessionTokenBytes is raised to SessionTokenBytes.
func NewSessionToken(n int) (string, error) {
	if n < SessionTokenBytes {
		n = SessionTokenBytes
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashSessionToken returns the lookup digest persisted in place of the token.
func HashSessionToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// ValidTokenShape reports whether token could have been produced by
// NewSessionToken. It lets callers reject garbage before a store round-trip.
func ValidTokenShape(token string) bool {
	if len(token) < sessionTokenEncodedLen {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(token)
	return err == nil
}

// ErrShortRandom is returned when the system random source yields fewer
// bytes than requested.
var ErrShortRandom = errors.New("short random read")

// RandomBytes fills a new slice of n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	read, err := rand.Read(out)
	if err != nil {
		return nil, err
	}
	if read != n {
		return nil, ErrShortRandom
	}
	return out, nil
}
