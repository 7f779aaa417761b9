package utils

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ReferenceKind is the prefix that tells the two sides of a transfer apart.
type ReferenceKind string

const (
	// ReferenceSender marks the debit-side record: TRF-{ULID}
	ReferenceSender ReferenceKind = "TRF"
	// ReferenceCredit marks the credit-side record: CR-{ULID}
	ReferenceCredit ReferenceKind = "CR"
)

// ReferenceGenerator produces transaction references of the form
// PREFIX-{ULID}. The ULID is a 48-bit millisecond timestamp followed by 80 bits
// drawn from crypto/rand, so references are neither sequential nor guessable and
// the timestamp keeps bursts from sharing an entropy space.
//
// Example: TRF-01HF3Z8Q9W4R6XK2M7N5B1C0DE / CR-01HF3Z8Q9W4R6XK2M7N5B1C0DE
type ReferenceGenerator struct {
	entropy io.Reader
	now     func() time.Time
}

// NewReferenceGenerator creates a generator backed by crypto/rand
func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{
		entropy: rand.Reader,
		now:     time.Now,
	}
}

// NewReferenceGeneratorWith lets callers pin the entropy source and clock.
func NewReferenceGeneratorWith(entropy io.Reader, now func() time.Time) *ReferenceGenerator {
	if entropy == nil {
		entropy = rand.Reader
	}
	if now == nil {
		now = time.Now
	}
	return &ReferenceGenerator{entropy: entropy, now: now}
}

// NewReference returns a fresh reference of the given kind. When a suffix is
// supplied it is reused instead of drawing a new one, which is how a credit
// reference is correlated with its sender reference.
func (g *ReferenceGenerator) NewReference(kind ReferenceKind, suffix ...string) string {
	if len(suffix) > 0 && suffix[0] != "" {
		return string(kind) + "-" + suffix[0]
	}
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	return string(kind) + "-" + id.String()
}

// SplitReference separates a reference into kind and suffix.
func SplitReference(ref string) (ReferenceKind, string, error) {
	prefix, suffix, ok := strings.Cut(ref, "-")
	if !ok || suffix == "" {
		return "", "", fmt.Errorf("malformed reference %q", ref)
	}
	switch kind := ReferenceKind(prefix); kind {
	case ReferenceSender, ReferenceCredit:
		return kind, suffix, nil
	default:
		return "", "", fmt.Errorf("unknown reference prefix %q", prefix)
	}
}

// CreditReference derives the credit-side reference from a sender reference by
// swapping the prefix and keeping the suffix.
func CreditReference(senderRef string) (string, error) {
	kind, suffix, err := SplitReference(senderRef)
	if err != nil {
		return "", err
	}
	if kind != ReferenceSender {
		return "", fmt.Errorf("reference %q is not a sender reference", senderRef)
	}
	return string(ReferenceCredit) + "-" + suffix, nil
}

// ReferenceTime recovers the coarse creation time encoded in a ULID suffix.
func ReferenceTime(ref string) (time.Time, error) {
	_, suffix, err := SplitReference(ref)
	if err != nil {
		return time.Time{}, err
	}
	id, err := ulid.ParseStrict(suffix)
	if err != nil {
		return time.Time{}, fmt.Errorf("reference %q: %w", ref, err)
	}
	return ulid.Time(id.Time()), nil
}
