// Package signature signs and verifies payloads exchanged with the automation system.
//
// Tags are HMAC-SHA256 digests rendered as "sha256=<lowercase hex>". Both
// directions operate on the exact bytes that travel on the wire: callers must
// never re-serialize a parsed body before verifying it.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HeaderName is the HTTP header carrying the tag in both directions.
const HeaderName = "x-signature"

// Prefix precedes the hex digest in every tag.
const Prefix = "sha256="

// ErrEmptySecret is returned when a Signer is built without a secret.
var ErrEmptySecret = errors.New("signing secret is empty")

// Sign computes the tag for payload under secret.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether tag is the valid tag for payload under secret.
// The comparison runs in constant time over the rendered tag, so malformed
// tags (missing prefix, uppercase or bad hex, wrong length) yield false.
func Verify(payload []byte, tag string, secret []byte) bool {
	if !strings.HasPrefix(tag, Prefix) {
		return false
	}
	return hmac.Equal([]byte(tag), []byte(Sign(payload, secret)))
}

// Signer binds a shared secret supplied at construction.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer for the given secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the tag for payload.
func (s *Signer) Sign(payload []byte) string {
	return Sign(payload, s.secret)
}

// Verify checks tag against payload.
func (s *Signer) Verify(payload []byte, tag string) bool {
	return Verify(payload, tag, s.secret)
}
