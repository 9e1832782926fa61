package fat_test

import (
	"testing"

	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_FAT16_GetSet(t *testing.T) {
	data := make([]byte, 32)
	table := fat.NewTable(data, 16)

	require.NoError(t, table.Set(2, 5))
	require.NoError(t, table.Set(5, 0xFFF8))

	v, err := table.Get(2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)

	assert.True(t, table.IsEndOfChain(0xFFF8))
}

func TestTable_FAT12_PackedNibbles(t *testing.T) {
	data := make([]byte, 12)
	table := fat.NewTable(data, 12)

	require.NoError(t, table.Set(2, 0x123))
	require.NoError(t, table.Set(3, 0x456))

	v2, err := table.Get(2)
	require.NoError(t, err)
	assert.EqualValues(t, 0x123, v2)

	v3, err := table.Get(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0x456, v3)
}

func TestTable_FAT32_TopNibblePreserved(t *testing.T) {
	data := make([]byte, 16)
	data[7] = 0xA0 // reserved top nibble on entry 1
	table := fat.NewTable(data, 32)

	require.NoError(t, table.Set(1, 0x00112233))
	v, err := table.Get(1)
	require.NoError(t, err)
	assert.EqualValues(t, 0x00112233, v)
	assert.Equal(t, byte(0xA0), data[7]&0xF0)
}

func TestTable_AllocChainAndFree(t *testing.T) {
	data := make([]byte, 16*2)
	table := fat.NewTable(data, 16)

	first, err := table.AllocChain(3, 0)
	require.NoError(t, err)

	chain, err := table.ListChain(first)
	require.NoError(t, err)
	assert.Len(t, chain, 3)

	require.NoError(t, table.Free(first))
	for _, c := range chain {
		v, gerr := table.Get(c)
		require.NoError(t, gerr)
		assert.EqualValues(t, 0, v)
	}
}

func TestTable_AllocOne_ExhaustsAndFails(t *testing.T) {
	data := make([]byte, 8) // 4 entries, 2 reserved, 2 allocatable
	table := fat.NewTable(data, 16)

	_, err := table.AllocOne()
	require.NoError(t, err)
	_, err = table.AllocOne()
	require.NoError(t, err)

	_, err = table.AllocOne()
	assert.Error(t, err)
}

func TestTable_FreeClusterCount_TracksAllocAndFree(t *testing.T) {
	data := make([]byte, 8) // 2 allocatable clusters
	table := fat.NewTable(data, 16)
	require.EqualValues(t, 2, table.FreeClusterCount())

	c, err := table.AllocOne()
	require.NoError(t, err)
	assert.EqualValues(t, 1, table.FreeClusterCount())

	require.NoError(t, table.Free(c))
	assert.EqualValues(t, 2, table.FreeClusterCount())
}

// TestTable_AllocOne_WrapsAroundAfterFreeingEarlyCluster exercises FAT12-style
// wraparound allocation (spec §8 scenario 6): once the hint runs off the end
// of the table, AllocOne must wrap back to FirstDataCluster instead of
// reporting the volume full while an earlier cluster, freed behind the hint,
// is still available.
func TestTable_AllocOne_WrapsAroundAfterFreeingEarlyCluster(t *testing.T) {
	data := make([]byte, 14) // FAT16: 7 entries, clusters 2-6 allocatable
	table := fat.NewTable(data, 16)

	var allocated []fat.ClusterID
	for i := 0; i < 5; i++ {
		c, err := table.AllocOne()
		require.NoError(t, err)
		allocated = append(allocated, c)
	}
	assert.ElementsMatch(t, []fat.ClusterID{2, 3, 4, 5, 6}, allocated)

	_, err := table.AllocOne()
	assert.ErrorIs(t, err, fatcoreerrors.ErrVolumeFull)

	require.NoError(t, table.Free(2))
	assert.EqualValues(t, 1, table.FreeClusterCount())

	next, err := table.AllocOne()
	require.NoError(t, err)
	assert.EqualValues(t, 2, next, "AllocOne should wrap back to the cluster freed behind the hint")
}
