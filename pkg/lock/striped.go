package lock

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
)

// Striped is a fixed pool of locks selected by hashing the key. Memory is
// bounded by the pool size; unrelated keys that land on the same stripe
// serialize with each other.
type Striped struct {
	name    string
	stripes []*semaphore.Weighted
}

// NewStriped creates a pool of n locks. n < 1 is treated as 1.
func NewStriped(name string, n int) *Striped {
	if n < 1 {
		n = 1
	}
	stripes := make([]*semaphore.Weighted, n)
	for i := range stripes {
		stripes[i] = semaphore.NewWeighted(1)
	}
	lockKeys.WithLabelValues(name).Set(float64(n))
	return &Striped{
		name:    name,
		stripes: stripes,
	}
}

// Acquire implements Locker.
func (s *Striped) Acquire(ctx context.Context, key string) (*Handle, error) {
	return acquire(ctx, s.stripes[s.index(key)], s.name)
}

func (s *Striped) index(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.stripes)))
}

// Size returns the number of stripes.
func (s *Striped) Size() int {
	return len(s.stripes)
}
