// ABOUTME: Unit tests for token issuing and parsing
// ABOUTME: Tests round-trips for all three kinds, kind confusion, expiry, and tampering

package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("test-secret-key-0123456789abcdef")

func newTestIssuer() *Issuer {
	return NewIssuer(testSecret, 0, time.Hour, 10*time.Minute)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	tok, err := issuer.IssueAccess("principal-123", []string{"read", "write", "admin"}, false)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	claims, err := issuer.ParseAccess(tok)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}

	if claims.Subject != "principal-123" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "principal-123")
	}
	if claims.TOTPPending {
		t.Error("TOTPPending = true, want false")
	}
	if len(claims.Scopes) != 3 || claims.Scopes[0] != "read" {
		t.Errorf("Scopes = %v", claims.Scopes)
	}
	if claims.ExpiresAt != nil {
		t.Error("access token should not expire when accessExpiry is 0")
	}
}

func TestAccessToken_TOTPPending(t *testing.T) {
	issuer := newTestIssuer()

	tok, err := issuer.IssueAccess("principal-123", nil, true)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	claims, err := issuer.ParseAccess(tok)
	if err != nil {
		t.Fatalf("ParseAccess() error = %v", err)
	}
	if !claims.TOTPPending {
		t.Error("TOTPPending = false, want true")
	}
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	tok, err := issuer.IssueRefresh("principal-123", []string{"read"})
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}

	claims, err := issuer.ParseRefresh(tok)
	if err != nil {
		t.Fatalf("ParseRefresh() error = %v", err)
	}
	if !claims.Refresh {
		t.Error("Refresh = false, want true")
	}
	if claims.Subject != "principal-123" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.ExpiresAt == nil {
		t.Error("refresh token must carry an expiry")
	}
}

func TestMagicPair_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	emailTok, claimTok, err := issuer.IssueMagicPair("principal-123")
	if err != nil {
		t.Fatalf("IssueMagicPair() error = %v", err)
	}
	if emailTok == claimTok {
		t.Fatal("the two halves must be distinct tokens")
	}

	emailClaims, err := issuer.ParseMagic(emailTok)
	if err != nil {
		t.Fatalf("ParseMagic(email half) error = %v", err)
	}
	claimClaims, err := issuer.ParseMagic(claimTok)
	if err != nil {
		t.Fatalf("ParseMagic(claim half) error = %v", err)
	}

	if emailClaims.Subject != claimClaims.Subject {
		t.Error("pair halves carry different subjects")
	}
	if emailClaims.Fingerprint != claimClaims.Fingerprint {
		t.Error("pair halves carry different fingerprints")
	}
	if emailClaims.Side != SideEmail || claimClaims.Side != SideClaim {
		t.Errorf("sides = %q/%q, want %q/%q", emailClaims.Side, claimClaims.Side, SideEmail, SideClaim)
	}

	// Two separate pairs never share a fingerprint
	_, otherClaim, _ := issuer.IssueMagicPair("principal-123")
	otherClaims, _ := issuer.ParseMagic(otherClaim)
	if otherClaims.Fingerprint == claimClaims.Fingerprint {
		t.Error("independent pairs share a fingerprint")
	}
}

func TestParse_KindConfusion(t *testing.T) {
	issuer := newTestIssuer()

	access, _ := issuer.IssueAccess("principal-123", []string{"read"}, false)
	refresh, _ := issuer.IssueRefresh("principal-123", []string{"read"})
	_, magic, _ := issuer.IssueMagicPair("principal-123")

	// A refresh token is not a valid access token
	if _, err := issuer.ParseAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseAccess(refresh) = %v, want ErrTokenInvalid", err)
	}

	// An access token is not a valid refresh token
	if _, err := issuer.ParseRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseRefresh(access) = %v, want ErrTokenInvalid", err)
	}

	// An access token is not a valid magic claim
	if _, err := issuer.ParseMagic(access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseMagic(access) = %v, want ErrTokenInvalid", err)
	}

	// A magic claim is neither a valid access token nor a valid refresh token
	if _, err := issuer.ParseAccess(magic); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseAccess(magic) = %v, want ErrTokenInvalid", err)
	}
	if _, err := issuer.ParseRefresh(magic); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseRefresh(magic) = %v, want ErrTokenInvalid", err)
	}
}

func TestParse_InvalidTokens(t *testing.T) {
	issuer := newTestIssuer()

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"malformed JWT", "header.payload.signature"},
		{
			"wrong secret",
			func() string {
				other := NewIssuer([]byte("different-secret-0123456789abcdef"), 0, time.Hour, time.Minute)
				tok, _ := other.IssueAccess("principal-123", nil, false)
				return tok
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.ParseAccess(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseAccess() = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParse_TamperedToken(t *testing.T) {
	issuer := newTestIssuer()

	tok, _ := issuer.IssueAccess("principal-123", []string{"read"}, false)
	parts := strings.Split(tok, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	if _, err := issuer.ParseAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseAccess(tampered) = %v, want ErrTokenInvalid", err)
	}
}

func TestParse_ExpiredToken(t *testing.T) {
	// Access expiry of one nanosecond: expired by the time we parse.
	issuer := NewIssuer(testSecret, time.Nanosecond, time.Hour, time.Minute)

	tok, err := issuer.IssueAccess("principal-123", nil, false)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := issuer.ParseAccess(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseAccess(expired) = %v, want ErrTokenInvalid", err)
	}
}
