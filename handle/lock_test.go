package handle_test

import (
	"testing"

	"github.com/dargueta/fatcore/handle"
	"github.com/stretchr/testify/assert"
)

func TestReentrantLock_SameOwnerDoesNotDeadlock(t *testing.T) {
	l := handle.NewReentrantLock()

	l.Lock(1)
	l.Lock(1) // would deadlock if not reentrant
	assert.True(t, l.HeldBy(1))

	l.Unlock(1)
	assert.True(t, l.HeldBy(1))

	l.Unlock(1)
	assert.False(t, l.HeldBy(1))
}

func TestReentrantLock_DifferentOwnerBlocksUntilReleased(t *testing.T) {
	l := handle.NewReentrantLock()
	l.Lock(1)

	acquired := make(chan struct{})
	go func() {
		l.Lock(2)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second owner acquired lock while first still held it")
	default:
	}

	l.Unlock(1)
	<-acquired
	assert.True(t, l.HeldBy(2))
}
