// Package device arbitrates the single microphone between the live
// session and dictation.
package device

import (
	"sync"

	"go.uber.org/zap"
)

// Owner identifies a microphone consumer.
type Owner string

const (
	OwnerNone      Owner = ""
	OwnerLive      Owner = "live"
	OwnerDictation Owner = "dictation"
)

// Arbiter grants the microphone to one owner at a time. Acquiring it
// tears the previous holder down first through its release callback.
type Arbiter struct {
	// acquireMu serializes handovers so a release callback finishes
	// before the next owner is recorded.
	acquireMu sync.Mutex

	mu      sync.Mutex
	owner   Owner
	release func()
	logger  *zap.Logger
}

func NewArbiter(logger *zap.Logger) *Arbiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arbiter{logger: logger}
}

// Acquire makes owner the holder. If another owner holds the device its
// release callback runs synchronously, without the arbiter lock held, so
// it may call Release itself.
func (a *Arbiter) Acquire(owner Owner, release func()) {
	if owner == OwnerNone {
		return
	}
	a.acquireMu.Lock()
	defer a.acquireMu.Unlock()

	a.mu.Lock()
	prev, prevRelease := a.owner, a.release
	if prev == owner {
		a.release = release
		a.mu.Unlock()
		return
	}
	a.owner, a.release = OwnerNone, nil
	a.mu.Unlock()

	if prev != OwnerNone && prevRelease != nil {
		a.logger.Info("microphone handover", zap.String("from", string(prev)), zap.String("to", string(owner)))
		prevRelease()
	}

	a.mu.Lock()
	a.owner, a.release = owner, release
	a.mu.Unlock()
}

// Release clears ownership if owner still holds the device.
func (a *Arbiter) Release(owner Owner) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owner == owner {
		a.owner, a.release = OwnerNone, nil
	}
}

// Owner reports the current holder.
func (a *Arbiter) Owner() Owner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}
