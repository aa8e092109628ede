// Package search compiles a small typed query language into parameterized SQL
// predicates plus deterministic sort and paging. Callers declare the supported
// parameters per endpoint; identity-typed values are pseudonymized before the
// compiler ever renders them, so plaintext identifiers never reach the store.
package search

import (
	"context"
	"errors"

	"github.com/erx/erx/internal/platform/crypto"
)

// ErrInvalidArgument means a malformed search predicate, negative paging
// value or unknown prefix for a type.
var ErrInvalidArgument = errors.New("invalid search argument")

// Type is the declared value type of a search parameter.
type Type int

const (
	Date Type = iota
	String
	HashedIdentity
	TaskStatus
	PrescriptionID
)

// Prefix is a comparison prefix for ordered values.
type Prefix string

const (
	PrefixEQ Prefix = "eq"
	PrefixNE Prefix = "ne"
	PrefixGT Prefix = "gt"
	PrefixLT Prefix = "lt"
	PrefixGE Prefix = "ge"
	PrefixLE Prefix = "le"
	PrefixSA Prefix = "sa" // starts after
	PrefixEB Prefix = "eb" // ends before
)

// parsePrefix recognizes the two-character prefix vocabulary.
func parsePrefix(s string) (Prefix, bool) {
	switch Prefix(s) {
	case PrefixEQ, PrefixNE, PrefixGT, PrefixLT, PrefixGE, PrefixLE, PrefixSA, PrefixEB:
		return Prefix(s), true
	}
	return "", false
}

// splitPrefixFromValue extracts the optional embedded prefix from a raw value.
// Only Date-typed values carry one; everything else is implicitly eq.
func splitPrefixFromValue(raw string, t Type) (Prefix, string) {
	if t == Date && len(raw) >= 2 {
		if p, ok := parsePrefix(raw[:2]); ok {
			return p, raw[2:]
		}
	}
	return PrefixEQ, raw
}

// Parameter declares one supported search parameter for an endpoint.
type Parameter struct {
	Name   string // URL-facing name
	Column string // database column the predicate targets
	Type   Type

	// Statuses maps status names to their stored numeric form. Required for
	// TaskStatus parameters, ignored otherwise.
	Statuses map[string]int16
}

// IdentityHasher pseudonymizes identity-typed search values. Injected so the
// compiler stays independent of the key-derivation machinery.
type IdentityHasher interface {
	HashIdentity(ctx context.Context, identity string) (crypto.HashedID, error)
}
