package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var now = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("secret")
	token, err := Sign(secret, Claims{Sub: "user-1", Name: "Avery", Role: "project_manager", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims, err := NewVerifier(secret, clockwork.NewFakeClockAt(now)).Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Sub != "user-1" || claims.Role != "project_manager" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	token, err := Sign(secret, Claims{Sub: "user-1", Exp: now.Add(time.Minute).Unix()})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	clock := clockwork.NewFakeClockAt(now)
	verifier := NewVerifier(secret, clock)
	if _, err := verifier.Verify(token); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	token, err := Sign([]byte("secret"), Claims{Sub: "user-1", Role: "viewer", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	forged, err := Sign([]byte("other"), Claims{Sub: "user-1", Role: "admin", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	verifier := NewVerifier([]byte("secret"), clockwork.NewFakeClockAt(now))
	cases := map[string]string{
		"wrong secret":  forged,
		"no signature":  "abc",
		"extra segment": token + ".x",
		"empty":         "",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := verifier.Verify(value); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
