package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// SignaturePrefix is the algorithm tag carried by every signature
const SignaturePrefix = "sha256="

// ErrEmptySecret is returned when a signature would be computed without a key
var ErrEmptySecret = errors.New("signing secret is empty")

// Sign returns "sha256=" followed by the hex HMAC-SHA256 of body keyed by secret
func Sign(body []byte, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature reports whether signature matches the signature of body under secret.
// The comparison runs in constant time for equal-length inputs; a length mismatch fails
// without inspecting content.
func VerifySignature(body []byte, signature, secret string) bool {
	expected, err := Sign(body, secret)
	if err != nil {
		return false
	}

	return ConstantTimeEqual([]byte(signature), []byte(expected))
}

// ConstantTimeEqual compares two byte sequences without short-circuiting on the
// first differing byte
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ReadBody reads the full request body verbatim and restores it so later
// readers see the same bytes
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
