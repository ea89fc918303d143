package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// Scope restricts which events are eligible for alert matching and scoped
// queries, e.g. a single country.
type Scope interface {
	Contains(e Event) bool
}

// ScopeFunc adapts a plain function to Scope.
type ScopeFunc func(Event) bool

func (f ScopeFunc) Contains(e Event) bool { return f(e) }

// Everywhere admits every event.
var Everywhere Scope = ScopeFunc(func(Event) bool { return true })

// BoxScope admits events located inside the bounding box.
type BoxScope BoundingBox

func (b BoxScope) Contains(e Event) bool {
	return BoundingBox(b).Contains(e.Location)
}

// AddressScope admits events whose address contains Substring, compared with
// Unicode case folding.
type AddressScope struct {
	Substring string
}

func (a AddressScope) Contains(e Event) bool {
	return ContainsFold(e.Location.Address, a.Substring)
}

// AnyScope admits an event when any member scope does.
type AnyScope []Scope

func (s AnyScope) Contains(e Event) bool {
	for _, scope := range s {
		if scope.Contains(e) {
			return true
		}
	}
	return false
}

// IndiaBounds is the default country bounding box.
var IndiaBounds = BoundingBox{MinLon: 68, MinLat: 6, MaxLon: 97, MaxLat: 37}

// DefaultScope admits events addressed in India or located inside its
// bounding box.
func DefaultScope() Scope {
	return AnyScope{AddressScope{Substring: "India"}, BoxScope(IndiaBounds)}
}

// ContainsFold reports whether needle occurs in haystack under Unicode case
// folding. An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" || haystack == "" {
		return false
	}
	// Casers are stateful, so each call gets its own.
	return strings.Contains(cases.Fold().String(haystack), cases.Fold().String(needle))
}
