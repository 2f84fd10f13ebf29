// ABOUTME: Tests for TOTP enrollment and verification
// ABOUTME: Covers RFC test vectors, the skew window, and counter replay rejection

package totp

import (
	"strings"
	"testing"
	"time"
)

// rfcSecret is the RFC 6238 test secret "12345678901234567890" in base32.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func engineAt(t *testing.T, unix int64, skew int) *Engine {
	t.Helper()
	e := NewEngine("fedigate-test", skew)
	e.now = func() time.Time { return time.Unix(unix, 0) }
	return e
}

func TestHOTP_RFCVectors(t *testing.T) {
	// RFC 6238 Appendix B vectors for SHA-1, truncated to 6 digits.
	key := []byte("12345678901234567890")
	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tt := range tests {
		counter := uint64(tt.unix / 30)
		if got := hotp(key, counter); got != tt.want {
			t.Errorf("hotp at t=%d = %q, want %q", tt.unix, got, tt.want)
		}
	}
}

func TestGenerateCode_MatchesVectors(t *testing.T) {
	code, err := GenerateCode(rfcSecret, time.Unix(59, 0))
	if err != nil {
		t.Fatalf("GenerateCode() error = %v", err)
	}
	if code != "287082" {
		t.Errorf("GenerateCode = %q, want %q", code, "287082")
	}

	if _, err := GenerateCode("!!!", time.Unix(59, 0)); err == nil {
		t.Error("GenerateCode accepted an undecodable secret")
	}
}

func TestVerify_AcceptsCurrentCode(t *testing.T) {
	e := engineAt(t, 1111111109, 1)

	counter, ok := e.Verify("081804", rfcSecret, nil)
	if !ok {
		t.Fatal("Verify rejected the current code")
	}
	if counter != 1111111109/30 {
		t.Errorf("counter = %d, want %d", counter, 1111111109/30)
	}
}

func TestVerify_SkewWindow(t *testing.T) {
	// Code for t=59 (counter 1); clock has moved one step ahead.
	e := engineAt(t, 59+30, 1)

	if _, ok := e.Verify("287082", rfcSecret, nil); !ok {
		t.Error("Verify rejected a code one step behind within skew")
	}

	// Two steps ahead is outside skew=1.
	e = engineAt(t, 59+60, 1)
	if _, ok := e.Verify("287082", rfcSecret, nil); ok {
		t.Error("Verify accepted a code outside the skew window")
	}
}

func TestVerify_RejectsConsumedCounter(t *testing.T) {
	e := engineAt(t, 1111111109, 1)

	counter, ok := e.Verify("081804", rfcSecret, nil)
	if !ok {
		t.Fatal("initial Verify failed")
	}

	// Same code after the counter was persisted: the stored counter no longer
	// precedes it.
	if _, ok := e.Verify("081804", rfcSecret, &counter); ok {
		t.Error("Verify accepted a replayed code")
	}

	// An earlier stored counter still admits the code.
	earlier := counter - 5
	if _, ok := e.Verify("081804", rfcSecret, &earlier); !ok {
		t.Error("Verify rejected a code newer than the stored counter")
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	e := engineAt(t, 1111111109, 1)

	tests := []struct {
		name   string
		code   string
		secret string
	}{
		{"wrong code", "000000", rfcSecret},
		{"short code", "0818", rfcSecret},
		{"long code", "08180400", rfcSecret},
		{"empty code", "", rfcSecret},
		{"bad secret", "081804", "not-base32!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := e.Verify(tt.code, tt.secret, nil); ok {
				t.Error("Verify accepted invalid input")
			}
		})
	}
}

func TestEnroll(t *testing.T) {
	e := NewEngine("fedigate-test", 1)

	enrollment, err := e.Enroll("alice@example.org")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	if enrollment.Secret == "" {
		t.Error("empty secret")
	}
	if !strings.HasPrefix(enrollment.URI, "otpauth://totp/") {
		t.Errorf("URI = %q, want otpauth://totp/ prefix", enrollment.URI)
	}
	if !strings.Contains(enrollment.URI, "issuer=fedigate-test") {
		t.Errorf("URI missing issuer: %q", enrollment.URI)
	}
	if !strings.Contains(enrollment.URI, "secret="+enrollment.Secret) {
		t.Errorf("URI missing secret: %q", enrollment.URI)
	}

	// A code generated from the enrolled secret must verify.
	key, err := decodeSecret(enrollment.Secret)
	if err != nil {
		t.Fatalf("decodeSecret failed: %v", err)
	}
	now := time.Now()
	e.now = func() time.Time { return now }
	code := hotp(key, uint64(now.Unix()/30))
	if _, ok := e.Verify(code, enrollment.Secret, nil); !ok {
		t.Error("Verify rejected a code generated from the enrolled secret")
	}

	// Secrets are unique per enrollment.
	second, _ := e.Enroll("alice@example.org")
	if second.Secret == enrollment.Secret {
		t.Error("two enrollments produced the same secret")
	}
}
