package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, err := iss.Issue("player-1", "lobby-1")
	if err != nil {
		t.Fatal(err)
	}
	s, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.PlayerID != "player-1" || s.LobbyID != "lobby-1" {
		t.Fatalf("session = %+v", s)
	}
}

func TestParseRejects(t *testing.T) {
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	iss, _ := NewIssuer("secret", time.Hour)
	iss.now = func() time.Time { return base }
	good, err := iss.Issue("p", "l")
	if err != nil {
		t.Fatal(err)
	}

	other, _ := NewIssuer("another secret", time.Hour)
	other.now = iss.now
	forged, _ := other.Issue("p", "l")

	tests := []struct {
		name  string
		token string
		now   time.Time
	}{
		{"empty", "", base},
		{"garbage", "not.a.token", base},
		{"wrong key", forged, base},
		{"expired", good, base.Add(2 * time.Hour)},
		{"unsigned", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJwIiwibG9iYnkiOiJsIn0.", base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			iss.now = func() time.Time { return now }
			if _, err := iss.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewIssuerRandomSecret(t *testing.T) {
	a, err := NewIssuer("", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewIssuer("", time.Hour)
	token, _ := a.Issue("p", "l")
	if _, err := b.Parse(token); err == nil {
		t.Fatal("random secrets should differ")
	}
	if _, err := NewIssuer("x", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
