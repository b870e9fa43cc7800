package kvstore

import "context"

// Store is a small durable key-value surface used to serialize the
// pending-write queue. The queue is the only on-disk format this core owns;
// everything else goes through the repositories.
type Store interface {
	// Get returns the stored value for key. The bool reports whether the key
	// exists; a missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte) error
}
