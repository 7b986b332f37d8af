package engine

import "time"

// Clock is an injectable time source, so cooldown and retention behavior
// can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }
