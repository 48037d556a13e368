// Package system provides the real UTC clock. Checkpoint freshness and
// product staleness checks take a catalog.Clock so tests can pin time.
package system

import "time"

// Clock implements catalog.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
