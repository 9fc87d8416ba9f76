package auth

import (
	"errors"
	"testing"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	token, err := issuer.Issue("player_1", "room_1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := issuer.Verify(token, "player_1", "room_1"); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestVerifyRejectsMismatchedClaims(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	token, _ := issuer.Issue("player_1", "room_1")

	if err := issuer.Verify(token, "player_2", "room_1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong player: got %v", err)
	}
	if err := issuer.Verify(token, "player_1", "room_2"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong room: got %v", err)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, _ := NewTokenIssuer("secret-a").Issue("player_1", "room_1")
	if err := NewTokenIssuer("secret-b").Verify(token, "player_1", "room_1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret accepted: %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("test-secret")
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if err := issuer.Verify(token, "player_1", "room_1"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q accepted: %v", token, err)
		}
	}
}
