package uploader

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()
	id := uuid.New()

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := k.lock(id)
			defer unlock()

			if inside.Add(1) > 1 {
				overlap.Store(true)
			}

			inside.Add(-1)
		}()
	}

	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Zero(t, k.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()

	unlockA := k.lock(uuid.New())
	unlockB := k.lock(uuid.New())

	assert.Equal(t, 2, k.size())

	unlockA()
	unlockB()

	assert.Zero(t, k.size())
}
