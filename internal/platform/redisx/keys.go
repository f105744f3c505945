package redisx

import "time"

const (
	// KeyLock namespaces distributed locks: lock:{name}.
	KeyLock = "lock:%s"
	// KeyIdempotency namespaces stored idempotent responses: idem:{prefix}:{hash}.
	KeyIdempotency = "idem:%s:%s"
)

var (
	// TTLLock bounds how long a crashed holder can block a lock.
	TTLLock = 30 * time.Second
	// TTLIdempotency is the default retention of replayable responses.
	TTLIdempotency = 24 * time.Hour
)
