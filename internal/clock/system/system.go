// Package system provides the wall clock used outside tests.
package system

import (
	"time"

	"github.com/JakeFAU/gridrank/internal/gridrank"
)

var _ gridrank.Clock = Clock{}

// Clock is a gridrank.Clock that reports UTC wall time, so persisted
// timestamps and cache ages never depend on the host time zone.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
