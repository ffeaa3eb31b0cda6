package session

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
)

// lockTable provides per-identifier exclusive sections via lock striping: a
// fixed array of single-slot semaphores, identifier hashed to a stripe. Two
// identifiers only ever contend on a hash collision, so unrelated sessions
// proceed independently without a global lock.
type lockTable struct {
	stripes []chan struct{}
	mask    uint64
}

func newLockTable(stripes int) *lockTable {
	n := nextPowerOfTwo(stripes)
	t := &lockTable{
		stripes: make([]chan struct{}, n),
		mask:    uint64(n - 1),
	}
	for i := range t.stripes {
		t.stripes[i] = make(chan struct{}, 1)
	}
	return t
}

// acquire takes the exclusive section for id, waiting at most wait. It
// returns a release func, or ErrBusy when the bounded wait elapses, or the
// context error when ctx is cancelled first.
func (t *lockTable) acquire(ctx context.Context, id string, wait time.Duration) (func(), error) {
	sem := t.stripes[xxhash.Sum64String(id)&t.mask]
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	default:
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
