// Package webhook implements the push-based completion path: signature
// verification for provider webhooks and the state transitions they trigger.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Standard Webhooks: the signed content is "{id}.{timestamp}.{payload}",
// the signature header carries space-separated "v1,<base64 hmac>" entries.
const (
	secretPrefix       = "whsec_"
	timestampTolerance = 5 * time.Minute
)

var (
	ErrMissingHeaders   = errors.New("missing webhook headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside tolerance")
)

// Verifier checks webhook payload authenticity against a shared secret.
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier creates a Verifier from a Standard-Webhooks secret
// ("whsec_..." base64, or a raw string used as-is).
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("webhook secret is required")
	}
	key := []byte(secret)
	if strings.HasPrefix(secret, secretPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
		if err != nil {
			return nil, fmt.Errorf("decode webhook secret: %w", err)
		}
		key = decoded
	}
	return &Verifier{key: key, now: time.Now}, nil
}

// Verify checks the signature headers against the raw payload.
func (v *Verifier) Verify(msgID, timestamp, signature string, payload []byte) error {
	if msgID == "" || timestamp == "" || signature == "" {
		return ErrMissingHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, timestamp)
	}
	age := v.now().UTC().Sub(time.Unix(ts, 0))
	if age > timestampTolerance || age < -timestampTolerance {
		return ErrStaleTimestamp
	}

	expected := v.sign(msgID, timestamp, payload)

	// The header may list several versioned signatures; any v1 match passes.
	for _, part := range strings.Fields(signature) {
		version, sig, found := strings.Cut(part, ",")
		if !found || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v *Verifier) sign(msgID, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
