// Package signature authenticates mutating requests with per-user ECDSA keys.
//
// A client signs the canonical payload (see CanonicalPayload) with its P-384
// private key over a SHA-384 digest and sends the base64 DER signature in
// X-Signature together with the X-Timestamp it signed. The server rebuilds the
// payload and checks it against the public key stored on the account.
package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	xerrors "github.com/King-Austin/securecipher-bankingapi/shared/utils/errors"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// DefaultSensitivePrefixes are the path prefixes whose mutations must be signed.
var DefaultSensitivePrefixes = []string{
	"/api/transactions/verify-account",
	"/api/transactions/transfer",
	"/api/auth/update-public-key",
	"/api/profiles",
	"/api/cards",
}

var signedMethods = map[string]bool{
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// Envelope is one signed request. It only lives for a single verification.
type Envelope struct {
	Method    string
	Path      string
	Body      []byte
	Timestamp string
	UserID    string
	Signature string
}

// Payload is the canonical byte sequence covered by the signature.
func (e Envelope) Payload() []byte {
	return CanonicalPayload(e.Method, e.Path, e.Body, e.Timestamp, e.UserID)
}

type Verifier struct {
	prefixes []string
	maxSkew  time.Duration
	now      func() time.Time
}

type Option func(*Verifier)

// WithMaxSkew rejects timestamps further than d from the server clock. Zero
// disables the check.
func WithMaxSkew(d time.Duration) Option {
	return func(v *Verifier) { v.maxSkew = d }
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(prefixes []string, opts ...Option) *Verifier {
	if len(prefixes) == 0 {
		prefixes = DefaultSensitivePrefixes
	}
	v := &Verifier{now: time.Now}
	for _, p := range prefixes {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p != "" {
			v.prefixes = append(v.prefixes, p)
		}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) MaxSkew() time.Duration { return v.maxSkew }

// RequiresSignature reports whether a request must carry a valid signature.
// Prefixes match on path-segment boundaries, so /api/cards covers /api/cards
// and /api/cards/7 but not /api/cardsx.
func (v *Verifier) RequiresSignature(method, path string) bool {
	if !signedMethods[strings.ToUpper(method)] {
		return false
	}
	for _, p := range v.prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Verify checks env against the requester's base64 DER public key. It never
// fails open: any panic in the crypto path is reported as ErrVerificationFailed.
func (v *Verifier) Verify(env Envelope, publicKeyB64 string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", xerrors.ErrVerificationFailed, r)
		}
	}()

	if env.Signature == "" || env.Timestamp == "" {
		return xerrors.ErrMissingSignature
	}

	pub, err := ParsePublicKey(publicKeyB64)
	if err != nil {
		return err
	}

	if err := v.checkTimestamp(env.Timestamp); err != nil {
		return err
	}

	sig, err := decodeBase64(env.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", xerrors.ErrInvalidSignature)
	}

	digest := sha512.Sum384(env.Payload())
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return xerrors.ErrInvalidSignature
	}
	return nil
}

// Valid is Verify reduced to a yes/no answer.
func (v *Verifier) Valid(env Envelope, publicKeyB64 string) bool {
	return v.Verify(env, publicKeyB64) == nil
}

// ParsePublicKey decodes a base64 DER SubjectPublicKeyInfo holding a P-384 key.
func ParsePublicKey(publicKeyB64 string) (*ecdsa.PublicKey, error) {
	publicKeyB64 = strings.TrimSpace(publicKeyB64)
	if publicKeyB64 == "" {
		return nil, xerrors.ErrNoPublicKey
	}
	der, err := decodeBase64(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not base64", xerrors.ErrNoPublicKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrNoPublicKey, err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is not ECDSA", xerrors.ErrNoPublicKey)
	}
	if pub.Curve != elliptic.P384() {
		return nil, fmt.Errorf("%w: curve %s is not P-384", xerrors.ErrNoPublicKey, pub.Curve.Params().Name)
	}
	return pub, nil
}

func (v *Verifier) checkTimestamp(ts string) error {
	if v.maxSkew <= 0 {
		return nil
	}
	at, ok := parseTimestamp(ts)
	if !ok {
		return fmt.Errorf("%w: unreadable timestamp %q", xerrors.ErrStaleTimestamp, ts)
	}
	diff := v.now().Sub(at)
	if diff < 0 {
		diff = -diff
	}
	if diff > v.maxSkew {
		return xerrors.ErrStaleTimestamp
	}
	return nil
}

// parseTimestamp accepts unix seconds, unix milliseconds or RFC3339.
func parseTimestamp(ts string) (time.Time, bool) {
	if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n), true
		}
		return time.Unix(n, 0), true
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// decodeBase64 accepts only padded standard base64 with zero trailing bits,
// so each byte string has exactly one accepted text form.
func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.Strict().DecodeString(s)
}
