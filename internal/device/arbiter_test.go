package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestAcquireStopsPreviousOwner(t *testing.T) {
	a := NewArbiter(nil)
	liveStopped := 0
	a.Acquire(OwnerLive, func() {
		liveStopped++
		a.Release(OwnerLive)
	})
	assert.Equal(t, OwnerLive, a.Owner())

	a.Acquire(OwnerDictation, func() {})
	assert.Equal(t, 1, liveStopped)
	assert.Equal(t, OwnerDictation, a.Owner())
}

func TestReacquireBySameOwnerDoesNotRelease(t *testing.T) {
	a := NewArbiter(nil)
	calls := 0
	a.Acquire(OwnerLive, func() { calls++ })
	a.Acquire(OwnerLive, func() { calls++ })
	assert.Zero(t, calls)
}

func TestReleaseByNonOwnerIsIgnored(t *testing.T) {
	a := NewArbiter(nil)
	a.Acquire(OwnerDictation, func() {})
	a.Release(OwnerLive)
	assert.Equal(t, OwnerDictation, a.Owner())
	a.Release(OwnerDictation)
	assert.Equal(t, OwnerNone, a.Owner())
}

// Models the two consumers as flags that are only true between their own
// acquire and release; they must never both be true.
func TestExclusiveOwnershipProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewArbiter(nil)
		active := map[Owner]bool{}
		owners := []Owner{OwnerLive, OwnerDictation}

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			o := owners[rapid.IntRange(0, 1).Draw(t, "owner")]
			if rapid.Bool().Draw(t, "acquire") {
				a.Acquire(o, func() {
					active[o] = false
					a.Release(o)
				})
				active[o] = true
			} else if active[o] {
				active[o] = false
				a.Release(o)
			}
			if active[OwnerLive] && active[OwnerDictation] {
				t.Fatalf("both owners active after step %d", i)
			}
			if cur := a.Owner(); cur != OwnerNone && !active[cur] {
				t.Fatalf("arbiter owner %q is not active", cur)
			}
		}
	})
}
