package buffer_test

import (
	"testing"

	"github.com/dargueta/fatcore"
	"github.com/dargueta/fatcore/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, count int) (*buffer.Pool, map[uint64][]byte) {
	backing := map[uint64][]byte{}
	fetch := func(vol buffer.VolumeID, sector uint64, buf []byte) fatcore.DriverError {
		data, ok := backing[sector]
		if !ok {
			data = make([]byte, len(buf))
		}
		copy(buf, data)
		return nil
	}
	flush := func(vol buffer.VolumeID, sector uint64, buf []byte) fatcore.DriverError {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		backing[sector] = cp
		return nil
	}
	return buffer.NewPool(512, count, fetch, flush), backing
}

func TestPool_AcquireExhaustion(t *testing.T) {
	pool, _ := newTestPool(t, 2)

	b1, err := pool.Acquire()
	require.NoError(t, err)
	b2, err := pool.Acquire()
	require.NoError(t, err)

	_, err = pool.Acquire()
	assert.Error(t, err, "pool should report exhaustion instead of blocking")

	require.NoError(t, pool.Release(b1))
	require.NoError(t, pool.Release(b2))
}

func TestPool_LoadDirtyFlushRelease(t *testing.T) {
	pool, backing := newTestPool(t, 4)

	buf, err := pool.Acquire()
	require.NoError(t, err)
	require.NoError(t, pool.Load(buf, 1, 7, buffer.SectorTypeFile, true))

	copy(buf.Data(), []byte("hello world"))
	pool.MarkDirty(buf)
	assert.True(t, buf.IsDirty())

	require.NoError(t, pool.Release(buf))
	assert.Equal(t, "hello world", string(backing[7][:11]))
}

func TestPool_PinPreventsRelease(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	buf, err := pool.Acquire()
	require.NoError(t, err)
	require.NoError(t, pool.Load(buf, 0, 0, buffer.SectorTypeMgmt, true))

	pool.Pin(buf)
	err = pool.Release(buf)
	assert.Error(t, err)

	pool.Unpin(buf)
	assert.NoError(t, pool.Release(buf))
}
