package attendance

import "context"

// Locker provides mutual exclusion keyed by an arbitrary string. The returned unlock
// function must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// PersonLockKey is the lock key serializing attendance writes for one person.
func PersonLockKey(personID string) string {
	return "attendance:person:" + personID
}
