package flows

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

// BackupCodeAlphabet omits I, O, 0 and 1 so printed codes survive being
// read aloud.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultBackupCodeLength is the canonical code length (50 bits of entropy).
const DefaultBackupCodeLength = 10

// NewBackupCode draws length symbols from BackupCodeAlphabet.
func NewBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	buf := make([]byte, length)
	for i := range buf {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		buf[i] = BackupCodeAlphabet[n]
	}
	return string(buf), nil
}

// FormatBackupCode splits a canonical code in two halves joined by a dash.
func FormatBackupCode(code string) string {
	if len(code) < 8 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// CanonicalizeBackupCode upper-cases code and drops dashes and whitespace.
func CanonicalizeBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, code)
}

// isBackupCodeShape reports whether canonical could have been issued with
// the given length.
func isBackupCodeShape(canonical string, length int) bool {
	if len(canonical) != length {
		return false
	}
	for i := 0; i < len(canonical); i++ {
		if strings.IndexByte(BackupCodeAlphabet, canonical[i]) < 0 {
			return false
		}
	}
	return true
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
