package dirent_test

import (
	"testing"

	"github.com/dargueta/fatcore/clusterchain"
	"github.com/dargueta/fatcore/dirent"
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

func newTestDirectory(t *testing.T) *dirent.Directory {
	t.Helper()
	disk := newMemDisk()
	const sectorsPerCluster = 1
	const bytesPerCluster = sectorsPerCluster * testSectorSize

	table := fat.NewTable(make([]byte, 64), 16)
	stream := clusterchain.NewStream(disk, sectorsPerCluster, bytesPerCluster, 0, 20)

	writer, err := clusterchain.NewChainWriter(stream, table, 0)
	require.NoError(t, err)
	reader, err := clusterchain.NewChainReader(stream, table, 0)
	if err != nil {
		// Empty chain (firstCluster 0 isn't a valid cluster yet); the
		// directory starts with nothing placed, so use the writer's own
		// (still-empty) reader view instead.
		reader = &writer.ChainReader
	}
	return dirent.NewDirectory(reader, writer)
}

func TestDirectory_PlaceAndLookup_ShortName(t *testing.T) {
	dir := newTestDirectory(t)

	entry := &dirent.Entry{}
	_, err := dir.Place("README.TXT", entry)
	require.NoError(t, err)

	found, _, err := dir.Lookup("README.TXT")
	require.NoError(t, err)
	assert.Equal(t, "README.TXT", found.Name())
}

func TestDirectory_PlaceAndLookup_LongName(t *testing.T) {
	dir := newTestDirectory(t)

	entry := &dirent.Entry{}
	_, err := dir.Place("a really long file name.docx", entry)
	require.NoError(t, err)

	found, _, err := dir.Lookup("a really long file name.docx")
	require.NoError(t, err)
	assert.Equal(t, "a really long file name.docx", found.Name())
}

func TestDirectory_PlaceDuplicateFails(t *testing.T) {
	dir := newTestDirectory(t)
	require.NoError(t, mustPlace(t, dir, "a.txt"))

	_, err := dir.Place("a.txt", &dirent.Entry{})
	assert.ErrorIs(t, err, fatcoreerrors.ErrExists)
}

func TestDirectory_Delete(t *testing.T) {
	dir := newTestDirectory(t)
	require.NoError(t, mustPlace(t, dir, "a.txt"))

	require.NoError(t, dir.Delete("a.txt"))
	_, _, err := dir.Lookup("a.txt")
	assert.ErrorIs(t, err, fatcoreerrors.ErrNotFound)
}

func TestDirectory_Rename(t *testing.T) {
	dir := newTestDirectory(t)
	require.NoError(t, mustPlace(t, dir, "a.txt"))

	require.NoError(t, dir.Rename("a.txt", "b.txt"))
	_, _, err := dir.Lookup("a.txt")
	assert.Error(t, err)

	found, _, err := dir.Lookup("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", found.Name())
}

func TestDirectory_List(t *testing.T) {
	dir := newTestDirectory(t)
	require.NoError(t, mustPlace(t, dir, "a.txt"))
	require.NoError(t, mustPlace(t, dir, "a long name.txt"))

	entries, err := dir.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func mustPlace(t *testing.T, dir *dirent.Directory, name string) fatcoreerrors.DriverError {
	t.Helper()
	_, err := dir.Place(name, &dirent.Entry{})
	return err
}
