// Package view implements the three-level BGP routing snapshot described
// in the routing-state specification: prefix -> peer -> (AS-path-id,
// state). It owns per-prefix, per-peer, and per-(prefix,peer) records with
// lifecycle state and exposes iteration filtered by that state.
package view

import "fmt"

// FieldState is a lifecycle state. The three values compose as a bitmask
// so iterators can accept e.g. Active|Inactive to mean "all valid".
type FieldState uint8

const (
	Invalid FieldState = 0b000
	Active  FieldState = 0b001
	Inactive FieldState = 0b010
)

// AllValid is the mask meaning "any state except Invalid".
const AllValid = Active | Inactive

func (s FieldState) String() string {
	switch s {
	case Invalid:
		return "INVALID"
	case Active:
		return "ACTIVE"
	case Inactive:
		return "INACTIVE"
	case AllValid:
		return "ALL_VALID"
	default:
		return fmt.Sprintf("STATE(%03b)", uint8(s))
	}
}

// Matches reports whether s passes the given mask; a zero mask matches
// nothing (consistent with Invalid never being iterable).
func (s FieldState) Matches(mask FieldState) bool {
	return s&mask != 0
}

// Family selects an IP address family, or both.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
	FamilyBoth
)
