package handle_test

import (
	"testing"

	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/handle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_OpenGetCloseFile(t *testing.T) {
	r := handle.NewRegistry(2, 2)

	id, err := r.OpenFile(&handle.File{VolumeID: 1, Size: 5})
	require.NoError(t, err)

	got, err := r.GetFile(id)
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.Size)
	assert.Equal(t, 1, r.CountOpenFiles())

	require.NoError(t, r.CloseFile(id))
	assert.Equal(t, 0, r.CountOpenFiles())

	_, err = r.GetFile(id)
	assert.ErrorIs(t, err, fatcoreerrors.ErrInvalidFileDescriptor)
}

func TestRegistry_StaleHandleAfterSlotReuse(t *testing.T) {
	r := handle.NewRegistry(1, 1)

	first, err := r.OpenFile(&handle.File{})
	require.NoError(t, err)
	require.NoError(t, r.CloseFile(first))

	second, err := r.OpenFile(&handle.File{})
	require.NoError(t, err)

	// first's generation no longer matches the slot's current one, even
	// though it points at the same slot index that `second` now occupies.
	_, err = r.GetFile(first)
	assert.ErrorIs(t, err, fatcoreerrors.ErrInvalidFileDescriptor)

	_, err = r.GetFile(second)
	assert.NoError(t, err)
}

func TestRegistry_ExhaustionFailsOpen(t *testing.T) {
	r := handle.NewRegistry(1, 0)

	_, err := r.OpenFile(&handle.File{})
	require.NoError(t, err)

	_, err = r.OpenFile(&handle.File{})
	assert.ErrorIs(t, err, fatcoreerrors.ErrTooManyOpenFiles)
}

func TestRegistry_OpenGetCloseDir(t *testing.T) {
	r := handle.NewRegistry(0, 1)

	id, err := r.OpenDir(&handle.Dir{FirstCluster: 2})
	require.NoError(t, err)

	got, err := r.GetDir(id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.FirstCluster)

	require.NoError(t, r.CloseDir(id))
	assert.Equal(t, 0, r.CountOpenDirs())
}

func TestFile_SeekCacheInvalidatesOnBackwardSeek(t *testing.T) {
	f := &handle.File{FirstCluster: 2}
	f.CacheSeek(4096, 5)

	offset, cluster := f.ResolveSeekStart(8192)
	assert.EqualValues(t, 4096, offset)
	assert.EqualValues(t, 5, cluster)

	offset, cluster = f.ResolveSeekStart(100)
	assert.EqualValues(t, 0, offset)
	assert.EqualValues(t, 2, cluster)
}
