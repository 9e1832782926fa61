package clusterchain_test

import (
	"testing"

	"github.com/dargueta/fatcore/clusterchain"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSectorSize = 512

type memDisk struct {
	sectors map[fat.SectorID][]byte
}

func newMemDisk() *memDisk { return &memDisk{sectors: map[fat.SectorID][]byte{}} }

func (m *memDisk) ReadSectors(sector fat.SectorID, count uint, dst []byte) fatcoreerrors.DriverError {
	for i := uint(0); i < count; i++ {
		data, ok := m.sectors[sector+fat.SectorID(i)]
		if !ok {
			data = make([]byte, testSectorSize)
		}
		copy(dst[i*testSectorSize:], data)
	}
	return nil
}

func (m *memDisk) WriteSectors(sector fat.SectorID, count uint, src []byte) fatcoreerrors.DriverError {
	for i := uint(0); i < count; i++ {
		cp := make([]byte, testSectorSize)
		copy(cp, src[i*testSectorSize:(i+1)*testSectorSize])
		m.sectors[sector+fat.SectorID(i)] = cp
	}
	return nil
}

func TestChainWriterReader_RoundTrip(t *testing.T) {
	disk := newMemDisk()
	const sectorsPerCluster = 2
	const bytesPerCluster = sectorsPerCluster * testSectorSize

	table := fat.NewTable(make([]byte, 32), 16)
	stream := clusterchain.NewStream(disk, sectorsPerCluster, bytesPerCluster, 0, 10)

	writer, err := clusterchain.NewChainWriter(stream, table, 0)
	require.NoError(t, err)

	payload := make([]byte, bytesPerCluster*2+100)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, werr := writer.WriteAt(payload, 0)
	require.NoError(t, werr)
	assert.Equal(t, len(payload), n)
	assert.Len(t, writer.Chain(), 3)

	reader, err := clusterchain.NewChainReader(stream, table, writer.FirstCluster())
	require.NoError(t, err)

	readBack := make([]byte, len(payload))
	n, rerr := reader.ReadAt(readBack, 0)
	require.NoError(t, rerr)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, readBack)
}

func TestChainWriter_Truncate(t *testing.T) {
	disk := newMemDisk()
	const sectorsPerCluster = 1
	const bytesPerCluster = sectorsPerCluster * testSectorSize

	table := fat.NewTable(make([]byte, 32), 16)
	stream := clusterchain.NewStream(disk, sectorsPerCluster, bytesPerCluster, 0, 10)

	writer, err := clusterchain.NewChainWriter(stream, table, 0)
	require.NoError(t, err)

	_, werr := writer.WriteAt(make([]byte, bytesPerCluster*3), 0)
	require.NoError(t, werr)
	require.Len(t, writer.Chain(), 3)

	require.NoError(t, writer.Truncate(1))
	assert.Len(t, writer.Chain(), 1)

	v, gerr := table.Get(writer.Chain()[0])
	require.NoError(t, gerr)
	assert.True(t, table.IsEndOfChain(v))
}
