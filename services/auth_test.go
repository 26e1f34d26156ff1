package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndParseToken(t *testing.T) {
	auth := NewAuthService("test-secret", nil)

	token, err := auth.MintToken("user-1", "a@example.com", "org-1", "member")
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}

	claims, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "a@example.com" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.OrganizationID != "org-1" || claims.Role != "member" {
		t.Fatalf("unexpected org claims: %+v", claims)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	auth := NewAuthService("secret-a", nil)
	other := NewAuthService("secret-b", nil)

	token, err := auth.MintToken("user-1", "a@example.com", "org-1", "member")
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	if _, err := other.ParseToken(token); err == nil {
		t.Fatal("token signed with another secret must not parse")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthService("test-secret", nil)

	claims := &AccessClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatal("expired token must not parse")
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	auth := NewAuthService("test-secret", nil)

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid bearer", "Bearer abc123", "abc123", false},
		{"lowercase scheme", "bearer abc123", "abc123", false},
		{"missing scheme", "abc123", "", true},
		{"empty token", "Bearer ", "", true},
		{"empty header", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRefreshClaims(t *testing.T) {
	ctx := context.Background()

	t.Run("claims with org pass through without lookup", func(t *testing.T) {
		claims := &AccessClaims{UserID: "u1", OrganizationID: "org-1", Role: "member"}
		got, err := RefreshClaims(ctx, claims, func(ctx context.Context, userID string) (string, string, error) {
			t.Fatal("lookup must not run when claims already carry an org")
			return "", "", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != claims {
			t.Fatal("claims with an org must be returned unchanged")
		}
	})

	t.Run("empty org backfilled from lookup", func(t *testing.T) {
		claims := &AccessClaims{UserID: "u1", Role: "viewer"}
		got, err := RefreshClaims(ctx, claims, func(ctx context.Context, userID string) (string, string, error) {
			if userID != "u1" {
				t.Fatalf("lookup got user %q", userID)
			}
			return "org-9", "admin", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.OrganizationID != "org-9" || got.Role != "admin" {
			t.Fatalf("claims not refreshed: %+v", got)
		}
		// Pure function: the original claims are untouched.
		if claims.OrganizationID != "" || claims.Role != "viewer" {
			t.Fatalf("input claims mutated: %+v", claims)
		}
	})

	t.Run("user still without org", func(t *testing.T) {
		claims := &AccessClaims{UserID: "u1"}
		got, err := RefreshClaims(ctx, claims, func(ctx context.Context, userID string) (string, string, error) {
			return "", "viewer", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.OrganizationID != "" {
			t.Fatalf("org must stay empty, got %q", got.OrganizationID)
		}
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		boom := errors.New("db down")
		_, err := RefreshClaims(ctx, &AccessClaims{UserID: "u1"}, func(ctx context.Context, userID string) (string, string, error) {
			return "", "", boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected lookup error, got %v", err)
		}
	})
}

func TestResolve(t *testing.T) {
	auth := NewAuthService("test-secret", nil)
	ctx := context.Background()

	t.Run("empty token", func(t *testing.T) {
		if s := auth.Resolve(ctx, "", nil); s != nil {
			t.Fatalf("empty token must resolve to nil, got %+v", s)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if s := auth.Resolve(ctx, "not-a-jwt", nil); s != nil {
			t.Fatalf("garbage token must resolve to nil, got %+v", s)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token, _ := auth.MintToken("user-1", "a@example.com", "org-1", "member")
		s := auth.Resolve(ctx, token, nil)
		if s == nil {
			t.Fatal("valid token must resolve")
		}
		if s.UserID != "user-1" || s.OrganizationID != "org-1" || s.Role != "member" {
			t.Fatalf("unexpected session: %+v", s)
		}
	})

	t.Run("stale token refreshed through lookup", func(t *testing.T) {
		token, _ := auth.MintToken("user-1", "a@example.com", "", "viewer")
		s := auth.Resolve(ctx, token, func(ctx context.Context, userID string) (string, string, error) {
			return "org-5", "admin", nil
		})
		if s == nil || s.OrganizationID != "org-5" || s.Role != "admin" {
			t.Fatalf("session not refreshed: %+v", s)
		}
	})

	t.Run("refresh failure degrades to token claims", func(t *testing.T) {
		token, _ := auth.MintToken("user-1", "a@example.com", "", "viewer")
		s := auth.Resolve(ctx, token, func(ctx context.Context, userID string) (string, string, error) {
			return "", "", errors.New("db down")
		})
		if s == nil {
			t.Fatal("a lookup failure must not unauthenticate the request")
		}
		if s.OrganizationID != "" {
			t.Fatalf("session must keep the empty org, got %q", s.OrganizationID)
		}
	})
}

func TestPasswordHashing(t *testing.T) {
	auth := NewAuthService("test-secret", nil)

	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("hash must not equal the password")
	}
	if !auth.CheckPassword(hash, "hunter22") {
		t.Fatal("correct password must verify")
	}
	if auth.CheckPassword(hash, "hunter23") {
		t.Fatal("wrong password must not verify")
	}
}
