package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	issuer := NewSessionTokenIssuer("secret", time.Hour)
	token, sid, expiresAt, err := issuer.Issue("", "store-tok")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if sid == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("unexpected issue result: sid=%q expires=%s", sid, expiresAt)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.ResolvedSessionID() != sid || claims.StoreToken != "store-tok" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionTokenFallsBackToSubject(t *testing.T) {
	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-7"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	parsed, err := ParseSessionToken("secret", token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.ResolvedSessionID() != "user-7" {
		t.Fatalf("expected subject as session id, got %q", parsed.ResolvedSessionID())
	}
}

func TestSessionTokenRejectsMissingIdentity(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := ParseSessionToken("secret", token); !errors.Is(err, ErrSessionTokenInvalid) {
		t.Fatalf("expected ErrSessionTokenInvalid, got %v", err)
	}
}

func TestSessionTokenRejectsWrongSecret(t *testing.T) {
	token, _, _, err := NewSessionTokenIssuer("secret", time.Hour).Issue("s1", "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := ParseSessionToken("other", token); err == nil {
		t.Fatalf("expected signature error")
	}
}
