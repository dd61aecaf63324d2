package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// ReplayWindow is the maximum tolerated age (or future skew) of a signed
// request's timestamp.
const ReplayWindow = 5 * time.Minute

// Verifier checks that inbound webhooks were signed by the platform's
// signing secret.
type Verifier struct {
	secret string
	now    func() time.Time
}

// NewVerifier creates a Verifier for the given signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// NewVerifierAt creates a Verifier with an injected clock.
func NewVerifierAt(secret string, now func() time.Time) *Verifier {
	return &Verifier{secret: secret, now: now}
}

// Verify reports whether signature authenticates body at timestamp.
// Requests older than the replay window, or too far in the future, are
// rejected even with a valid signature. A missing or malformed header value
// is a verification failure, never a panic.
func (v *Verifier) Verify(body []byte, timestamp, signature string) bool {
	if timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > ReplayWindow || age < -ReplayWindow {
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
