package port

import "context"

// Locker hands out advisory locks keyed by resource. Acquire blocks until the
// lock is held or ctx ends; the returned func releases it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
