package provision

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	maxExternalIDLen = 255
	maxEmailLen      = 254

	// keyScope namespaces the idempotency key so the same identity pair
	// can safely feed other derived keys later without colliding.
	keyScope = "user_creation"

	// DefaultUsernameBase is the bare username handed to the very first
	// provisioned account; later accounts get DefaultUsernameBase + sequence.
	DefaultUsernameBase = "tempuser"
)

// Basic shape check only. Real deliverability is the IdP's problem; this
// guards against garbage claims reaching the unique email index.
var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NormalizeEmail lower-cases and trims an email address. All storage and
// lookups go through this so case variants of the same address converge
// on one account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateIdentity checks the IdP subject identifier and email claim
// shapes. Failures are fatal and never retried.
func ValidateIdentity(externalID, email string) error {
	if externalID == "" || len(externalID) > maxExternalIDLen {
		return validationError(CodeInvalidIdentity, "external id must be a non-empty string of at most 255 characters")
	}
	normalized := NormalizeEmail(email)
	if normalized == "" || len(normalized) > maxEmailLen || !emailShape.MatchString(normalized) {
		return validationError(CodeInvalidEmail, "email does not look like an email address")
	}
	return nil
}

// DeriveIdempotencyKey produces the deterministic key that lets two
// concurrent requests for the same login recognize each other. Identical
// inputs, including case variants of the email, always yield the same key.
func DeriveIdempotencyKey(externalID, email string) (string, error) {
	if err := ValidateIdentity(externalID, email); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(externalID + ":" + NormalizeEmail(email) + ":" + keyScope))
	return hex.EncodeToString(sum[:]), nil
}

// DefaultUsername maps a counter sequence value onto a default username.
// The first value ever issued maps to the bare base name.
func DefaultUsername(sequence int64) string {
	if sequence <= 1 {
		return DefaultUsernameBase
	}
	return fmt.Sprintf("%s%d", DefaultUsernameBase, sequence-1)
}

// FallbackUsername generates a timestamp+random username for use when the
// counter increment itself fails. Uniqueness is probabilistic here, an
// accepted degradation under infrastructure failure.
func FallbackUsername() string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s%d%s", DefaultUsernameBase, time.Now().UnixMilli(), hex.EncodeToString(suffix))
}
