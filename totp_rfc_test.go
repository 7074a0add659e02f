package goAuthz

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTOTPVerifyRFCVectorsSHA1(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "goAuthz",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      0,
	})
	secret := []byte("12345678901234567890")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA1 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA256(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "goAuthz",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA256",
		Skew:      0,
	})
	secret := []byte("12345678901234567890123456789012")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	}

	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA256 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA512(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "goAuthz",
		Digits:    8,
		Period:    30,
		Algorithm: "SHA512",
		Skew:      0,
	})
	secret := []byte("1234567890123456789012345678901234567890123456789012345678901234")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "90693936"},
		{1111111109, "25091201"},
		{1111111111, "99943326"},
		{1234567890, "93441116"},
		{2000000000, "38618901"},
		{20000000000, "47863826"},
	}

	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("SHA512 vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestTOTPDriftWindowAcceptsAdjacentStep(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "goAuthz",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})
	secret := []byte("12345678901234567890")
	now := time.Unix(1234567890, 0)
	prevCounter := (now.Unix() / 30) - 1
	code, err := hotpCode(secret, prevCounter, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}

	ok, _, err := m.VerifyCode(secret, code, now)
	if err != nil || !ok {
		t.Fatalf("expected skew code accepted, ok=%v err=%v", ok, err)
	}
}

func TestTOTPWrongDigitsRejected(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "goAuthz",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})
	secret := []byte("12345678901234567890")
	ok, _, err := m.VerifyCode(secret, "12345678", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong-length code to be rejected")
	}
}

func TestTOTPBase32RoundTrip(t *testing.T) {
	m := newTOTPManager(TOTPConfig{
		Issuer:    "goAuthz",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})
	secret, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if strings.Contains(secret, "=") || len(secret) != 32 {
		t.Fatalf("expected 32 unpadded base32 chars, got %q", secret)
	}

	now := time.Unix(1700000000, 0)
	code, err := m.CodeAt(secret, now)
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	ok, counter, err := m.VerifyBase32(strings.ToLower(secret), code, now.Add(30*time.Second))
	if err != nil || !ok {
		t.Fatalf("expected adjacent-step code accepted, ok=%v err=%v", ok, err)
	}
	if want := now.Unix() / 30; counter != want {
		t.Fatalf("expected matched step %d, got %d", want, counter)
	}
	ok, _, err = m.VerifyBase32(secret, code, now.Add(90*time.Second))
	if err != nil || ok {
		t.Fatalf("expected code outside the window rejected, ok=%v err=%v", ok, err)
	}
}

func TestTOTPRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "goAuthz", Digits: 6, Period: 30, Skew: 1})

	if ok, _, err := m.VerifyBase32("JBSWY3DPEHPK3PXP", "12a456", time.Now()); ok || err != nil {
		t.Fatalf("non-numeric code must be false without error, ok=%v err=%v", ok, err)
	}
	if _, _, err := m.VerifyBase32("not base32!", "123456", time.Now()); !errors.Is(err, errInvalidTOTPSecret) {
		t.Fatalf("expected errInvalidTOTPSecret, got %v", err)
	}
	if _, _, err := m.VerifyBase32("", "123456", time.Now()); !errors.Is(err, errEmptyTOTPSecret) {
		t.Fatalf("expected errEmptyTOTPSecret, got %v", err)
	}
}

func TestProvisionURI(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "Admin Console", Digits: 6, Period: 30})
	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "u1")
	if !strings.HasPrefix(uri, "otpauth://totp/Admin%20Console:u1?") {
		t.Fatalf("unexpected uri %q", uri)
	}
	for _, part := range []string{"secret=JBSWY3DPEHPK3PXP", "digits=6", "period=30", "algorithm=SHA1"} {
		if !strings.Contains(uri, part) {
			t.Fatalf("uri %q missing %q", uri, part)
		}
	}
}
