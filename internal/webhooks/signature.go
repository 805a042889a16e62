// Package webhooks verifies the authenticity of inbound marketplace
// webhooks.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

// SignatureHeaders are checked in this order for the webhook signature.
var SignatureHeaders = []string{"X-Signature", "X-Hub-Signature", "X-Yandex-Signature"}

// Result of a signature check.
type Result int

const (
	// Skipped means no secret is configured; the request is accepted.
	Skipped Result = iota
	// OK means the signature matched.
	OK
	// MissingHeader means a secret is configured but no signature header
	// was present.
	MissingHeader
	// Mismatch means the signature did not match (or was not decodable).
	Mismatch
)

func (r Result) Accepted() bool { return r == Skipped || r == OK }

func (r Result) String() string {
	switch r {
	case Skipped:
		return "skipped"
	case OK:
		return "ok"
	case MissingHeader:
		return "missing_header"
	default:
		return "mismatch"
	}
}

// Verify checks the request signature against the shared secret. The HMAC
// is computed over the canonical re-serialization of the parsed JSON body
// (sorted object keys, compact), so it is stable across whitespace and key
// order; the sender must sign the same canonical form.
func Verify(secret string, header http.Header, body []byte) Result {
	if secret == "" {
		return Skipped
	}
	provided := ""
	for _, h := range SignatureHeaders {
		if v := header.Get(h); v != "" {
			provided = v
			break
		}
	}
	if provided == "" {
		return MissingHeader
	}
	canonical, err := Canonicalize(body)
	if err != nil {
		return Mismatch
	}
	if VerifyHMAC(secret, canonical, provided) {
		return OK
	}
	return Mismatch
}

// Canonicalize re-serializes a JSON document in canonical form.
// encoding/json sorts map keys, which is the property relied on here.
func Canonicalize(body []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// VerifyHMAC checks an HMAC-SHA256 signature over body using the shared
// secret. Comparison is constant-time; an undecodable signature is a
// verification failure, never a panic.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, b)
}

// SignHMAC returns lowercase hex of HMAC-SHA256; the counterpart of
// VerifyHMAC for tests and tooling that produce signed payloads.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("%x", mac.Sum(nil))
}
