package service

import "time"

// Clock is injected wherever the engine stamps timestamps or checks time
// limits, so tests can pin time.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
