package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedTime() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func testVerifier(t *testing.T) *HMACTokenVerifier {
	t.Helper()
	verifier, err := NewHMACTokenVerifier("super-secret", time.Second)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	verifier.WithClock(fixedTime)
	return verifier
}

func TestMintAndVerifyRoundTrip(t *testing.T) {
	verifier := testVerifier(t)
	token, err := verifier.Mint("player-7", "match-42", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.PlayerID != "player-7" || claims.MatchID != "match-42" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	verifier := testVerifier(t)
	token, err := verifier.Mint("player-7", "", -time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	verifier := testVerifier(t)
	token, err := verifier.Mint("player-7", "", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	//1.- Flip a character in the signature segment.
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := verifier.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	minter, err := NewHMACTokenVerifier("other-secret", time.Second)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	minter.WithClock(fixedTime)
	token, err := minter.Mint("player-7", "", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	verifier := testVerifier(t)
	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	verifier := testVerifier(t)
	for _, token := range []string{"", "onesegment", "two.segments", "a.b.c.d"} {
		if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewHMACTokenVerifier("   ", time.Second); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
