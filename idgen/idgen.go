// Package idgen provides string ID generation for shotkeeper.
//
// Screenshot rows use the database's integer surrogate key; idgen covers
// the text-keyed tables (search log) and timestamp-prefixed storage
// filenames. The strategy is a startup-time decision: constructors accept
// a Generator rather than hard-coding one.
package idgen

import (
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable and globally unique.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
// Useful for type-scoped identifiers (e.g. "srch_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// TimestampPrefix returns the UTC instant formatted for filename prefixes,
// "20060102T150405Z". Storage filenames are this prefix plus the original
// base name, which keeps copies collision-free and time-sortable.
func TimestampPrefix(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// Default is the shotkeeper default generator: UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}
