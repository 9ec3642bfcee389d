package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// LearnerID identifies a learner. It is supplied by the authentication
// collaborator and is opaque to the core.
type LearnerID string

// learnerIDRegex accepts UUIDs as well as provider subject strings.
var learnerIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.:@|-]{1,128}$`)

// IsValid checks if the learner ID is well formed.
func (l LearnerID) IsValid() bool {
	return learnerIDRegex.MatchString(string(l))
}

// String returns the string representation.
func (l LearnerID) String() string {
	return string(l)
}

// IsEmpty checks if the ID is empty.
func (l LearnerID) IsEmpty() bool {
	return l == ""
}

// NewLearnerID creates a new LearnerID with validation.
func NewLearnerID(id string) (LearnerID, error) {
	lid := LearnerID(strings.TrimSpace(id))
	if !lid.IsValid() {
		return "", ErrInvalidLearnerID
	}
	return lid, nil
}

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID reports whether s looks like a canonical UUID.
func IsUUID(s string) bool {
	return uuidRegex.MatchString(s)
}

// ParseEntityID normalizes a path or payload identifier and validates its format.
func ParseEntityID(domain, op, raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return "", NewDomainError(domain, op, ErrEmptyValue, "identifier is required")
	}
	if !IsUUID(id) {
		return "", NewDomainError(domain, op, ErrInvalidID, "identifier must be a UUID")
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Percent Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Percent is an integer progress percentage in [0, 100].
type Percent int

const (
	MinPercent Percent = 0
	MaxPercent Percent = 100
)

// IsValid checks if the percent is within range.
func (p Percent) IsValid() bool {
	return p >= MinPercent && p <= MaxPercent
}

// Int returns the underlying int value.
func (p Percent) Int() int {
	return int(p)
}

// IsComplete reports whether the percent is 100.
func (p Percent) IsComplete() bool {
	return p == MaxPercent
}

// PercentOf returns round(100 * part / total) with halves rounded away from
// zero, using integer arithmetic only. A zero total yields 0. Only the full set
// reaches 100: an incomplete set that would round up to 100 reports 99.
func PercentOf(part, total int) Percent {
	if total <= 0 || part <= 0 {
		return MinPercent
	}
	if part >= total {
		return MaxPercent
	}
	p := Percent((200*part + total) / (2 * total))
	if p >= MaxPercent {
		return MaxPercent - 1
	}
	return p
}
