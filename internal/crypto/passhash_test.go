package crypto

import (
	"bytes"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	a, err := RandBytes(SaltLen)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != SaltLen {
		t.Fatalf("len=%d, want=%d", len(a), SaltLen)
	}
	b, err := RandBytes(SaltLen)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes are equal")
	}
}

func TestHashPassword_SaltAndPasswordSensitive(t *testing.T) {
	t.Parallel()

	pw := []byte("secret")
	salt := []byte("0123456789abcdef")

	h1 := HashPassword(pw, salt)
	if !bytes.Equal(h1, HashPassword(pw, salt)) {
		t.Fatalf("hash not deterministic for same input")
	}
	if bytes.Equal(h1, HashPassword(pw, []byte("fedcba9876543210"))) {
		t.Fatalf("hash should differ when salt differs")
	}
	if bytes.Equal(h1, HashPassword([]byte("secret!"), salt)) {
		t.Fatalf("hash should differ when password differs")
	}
}

func TestNewCredential_RoundTrip(t *testing.T) {
	t.Parallel()

	salt, hash, err := NewCredential("secret")
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	if len(salt) != SaltLen || len(hash) == 0 {
		t.Fatalf("bad credential: salt=%d hash=%d", len(salt), len(hash))
	}
	if !VerifyPassword([]byte("secret"), salt, hash) {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword([]byte("wrong"), salt, hash) {
		t.Fatalf("wrong password verified")
	}

	salt2, hash2, err := NewCredential("secret")
	if err != nil {
		t.Fatalf("NewCredential(2): %v", err)
	}
	if bytes.Equal(salt, salt2) || bytes.Equal(hash, hash2) {
		t.Fatalf("credentials for the same password must not repeat")
	}
}

func TestVerifyPassword_EmptyStoredHash(t *testing.T) {
	t.Parallel()

	if VerifyPassword([]byte(""), nil, nil) {
		t.Fatalf("empty stored hash must never verify")
	}
}
