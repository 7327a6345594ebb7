package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	sec := "secret123"
	exp := time.Now().Add(5 * time.Minute).Unix()

	tok, err := GenerateAudioToken(sec, "abc", "user.with.dots", exp)
	if err != nil { t.Fatalf("gen: %v", err) }

	c, err := ValidateAudioToken(sec, tok, "abc", time.Now(), time.Minute)
	if err != nil { t.Fatalf("validate: %v", err) }
	if c.SessionID != "abc" || c.UserID != "user.with.dots" || c.Exp != exp {
		t.Fatalf("mismatch: %+v", c)
	}
}

func TestBadSignature(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute).Unix()
	tok, _ := GenerateAudioToken("secret123", "abc", "u1", exp)
	if _, err := ValidateAudioToken("other", tok, "abc", time.Now(), 0); !errors.Is(err, ErrTokenSig) {
		t.Fatalf("expected ErrTokenSig, got %v", err)
	}

	// flip a char
	if tok[0] == 'A' {
		tok = "B" + tok[1:]
	} else {
		tok = "A" + tok[1:]
	}
	if _, err := ValidateAudioToken("secret123", tok, "", time.Now(), 0); err == nil {
		t.Fatalf("expected error for bad token")
	}
}

func TestExpiryAndSession(t *testing.T) {
	sec := "s"
	exp := time.Now().Add(-30 * time.Second).Unix()
	tok, _ := GenerateAudioToken(sec, "abc", "u1", exp)
	if _, err := ValidateAudioToken(sec, tok, "abc", time.Now(), 0); !errors.Is(err, ErrTokenExp) {
		t.Fatalf("expected ErrTokenExp, got %v", err)
	}
	if _, err := ValidateAudioToken(sec, tok, "abc", time.Now(), time.Minute); err != nil {
		t.Fatalf("skew should admit the token: %v", err)
	}
	if _, err := ValidateAudioToken(sec, tok, "xyz", time.Now(), time.Minute); !errors.Is(err, ErrTokenSID) {
		t.Fatalf("expected ErrTokenSID, got %v", err)
	}
	if _, err := GenerateAudioToken("", "abc", "u1", exp); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc.def"); got != "abc.def" {
		t.Fatalf("got %q", got)
	}
	if got := BearerToken("Basic xyz"); got != "" {
		t.Fatalf("got %q", got)
	}
}
