package domain

import "github.com/jonboulle/clockwork"

// clock is the fallback time source for components built without one.
// Tests freeze it with SetClock; long-lived components take their own clock.
var clock = clockwork.NewRealClock()

// SetClock swaps the package time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
