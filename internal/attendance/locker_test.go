package attendance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/facegate/internal/lock"
)

var (
	_ Locker = (*lock.Local)(nil)
	_ Locker = (*lock.Redis)(nil)
)

func TestLocker_LocalThroughInterface(t *testing.T) {
	var l Locker = lock.NewLocal()

	unlock, err := l.Lock(context.Background(), PersonLockKey("p1"))
	require.NoError(t, err)
	require.NotNil(t, unlock)
	unlock()

	// Released keys can be taken again.
	unlock, err = l.Lock(context.Background(), PersonLockKey("p1"))
	require.NoError(t, err)
	unlock()
}

func TestPersonLockKey(t *testing.T) {
	assert.Equal(t, "attendance:person:p1", PersonLockKey("p1"))
	assert.NotEqual(t, PersonLockKey("p1"), PersonLockKey("p2"))
}
