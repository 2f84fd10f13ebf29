// ABOUTME: TOTP enrollment and verification (RFC 6238 over RFC 4226 HOTP)
// ABOUTME: Verification is counter-anchored so a consumed code can never validate again

package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// Period is the TOTP time step.
	Period = 30 * time.Second

	// Digits is the length of a generated code.
	Digits = 6

	secretBytes = 20
)

// Enrollment is the material handed to a user enrolling a second factor.
type Enrollment struct {
	Secret string // base32, no padding
	URI    string // otpauth:// provisioning URI for authenticator apps
}

// Engine generates enrollment material and verifies submitted codes.
type Engine struct {
	issuer string
	skew   int // accepted time-step drift in either direction
	now    func() time.Time
}

// NewEngine creates a TOTP engine. The issuer appears in authenticator apps;
// skew bounds the search window around the current time step.
func NewEngine(issuer string, skew int) *Engine {
	if skew < 0 {
		skew = 0
	}
	return &Engine{
		issuer: issuer,
		skew:   skew,
		now:    time.Now,
	}
}

// Enroll generates a fresh random secret and a provisioning URI for the label
// (typically the principal's email).
func (e *Engine) Enroll(label string) (*Enrollment, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating totp secret: %w", err)
	}

	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	uri := url.URL{
		Scheme: "otpauth",
		Host:   "totp",
		Path:   "/" + e.issuer + ":" + label,
	}
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("issuer", e.issuer)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprintf("%d", Digits))
	q.Set("period", fmt.Sprintf("%d", int(Period.Seconds())))
	uri.RawQuery = q.Encode()

	return &Enrollment{Secret: secret, URI: uri.String()}, nil
}

// Verify checks a submitted code against the secret. Candidate counters are
// the time-step counters within the skew window, restricted to values strictly
// greater than lastCounter (nil means no code has ever been consumed). On a
// match it returns the matched counter, which the caller must persist before
// the code counts as consumed. Returns ok=false when nothing in the window
// matches.
func (e *Engine) Verify(code, secret string, lastCounter *int64) (int64, bool) {
	key, err := decodeSecret(secret)
	if err != nil {
		return 0, false
	}

	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return 0, false
	}

	current := e.now().Unix() / int64(Period.Seconds())
	floor := int64(-1)
	if lastCounter != nil {
		floor = *lastCounter
	}

	for offset := -e.skew; offset <= e.skew; offset++ {
		counter := current + int64(offset)
		if counter <= floor {
			continue
		}
		expected := hotp(key, uint64(counter))
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return counter, true
		}
	}

	return 0, false
}

// GenerateCode computes the code for the time step containing at. This is the
// client side of Verify; the server never calls it during login.
func GenerateCode(secret string, at time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", fmt.Errorf("decoding totp secret: %w", err)
	}
	return hotp(key, uint64(at.Unix()/int64(Period.Seconds()))), nil
}

// hotp computes an RFC 4226 HMAC-SHA1 one-time code for a counter value.
func hotp(key []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, value%1000000)
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(normalized, "="))
}
