package playback

import "time"

// MonotonicClock measures time since it was created.
type MonotonicClock struct {
	origin time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{origin: time.Now()}
}

func (c *MonotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}
