package fs_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/dargueta/fatcore"
	"github.com/dargueta/fatcore/device"
	"github.com/dargueta/fatcore/fs"
	"github.com/dargueta/fatcore/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const floppySectors = 2880 // a standard 1.44MB floppy geometry, 512-byte sectors

func newFormattedFileSystem(t *testing.T) *fs.FileSystem {
	t.Helper()
	driver := device.NewRAMDiskDriver(512, floppySectors, nil)
	dev := device.New("ramdisk", 0, driver)

	v, err := volume.Format(dev, floppySectors, volume.FormatParams{Label: "TESTDISK"}, fatcore.MountFlagsAllowAll)
	require.NoError(t, err)

	return fs.NewFileSystem(v, 16, 16)
}

func TestMkdir_CreatesEmptyDirectory(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	require.NoError(t, fsys.Mkdir("/sub", 0o755))

	info, err := fsys.Query("/sub")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	entries, err := fsys.ReadDir("/sub")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].Name())
	assert.Equal(t, "..", entries[1].Name())
}

func TestMkdir_RejectsDuplicateName(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	require.NoError(t, fsys.Mkdir("/sub", 0o755))
	err := fsys.Mkdir("/sub", 0o755)
	assert.ErrorIs(t, err, fatcore.ErrExists)
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/hello.txt")
	require.NoError(t, err)

	n, werr := f.Write([]byte("hello, disko"))
	require.NoError(t, werr)
	assert.Equal(t, 12, n)
	require.NoError(t, f.Close())

	f2, err := fsys.Open("/hello.txt")
	require.NoError(t, err)
	defer f2.Close()

	buf := make([]byte, 12)
	n, rerr := f2.Read(buf)
	require.NoError(t, rerr)
	assert.Equal(t, "hello, disko", string(buf[:n]))

	info, err := fsys.Query("/hello.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 12, info.Size)
}

func TestCreate_RejectsExistingFile(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/dup.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fsys.Create("/dup.txt")
	assert.ErrorIs(t, err, fatcore.ErrExists)
}

func TestOpenFile_CreateIfMissing(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.OpenFile("/new.txt", fatcore.O_RDWR|fatcore.O_CREATE, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fsys.Query("/new.txt")
	assert.NoError(t, err)
}

func TestOpenFile_WithoutCreateRejectsMissingFile(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	_, err := fsys.OpenFile("/missing.txt", fatcore.O_RDONLY, 0)
	assert.ErrorIs(t, err, fatcore.ErrNotFound)
}

func TestOpenFile_TruncateResetsSize(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/trunc.txt")
	require.NoError(t, err)
	_, werr := f.Write([]byte("some content here"))
	require.NoError(t, werr)
	require.NoError(t, f.Close())

	f2, err := fsys.OpenFile("/trunc.txt", fatcore.O_RDWR|fatcore.O_TRUNC, 0)
	require.NoError(t, err)
	require.NoError(t, f2.Close())

	info, err := fsys.Query("/trunc.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 0, info.Size)
}

func TestAppend_WritesAtEndOfFile(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/append.txt")
	require.NoError(t, err)
	_, werr := f.Write([]byte("first"))
	require.NoError(t, werr)
	require.NoError(t, f.Close())

	f2, err := fsys.OpenFile("/append.txt", fatcore.O_WRONLY|fatcore.O_APPEND, 0)
	require.NoError(t, err)
	_, werr = f2.Write([]byte("second"))
	require.NoError(t, werr)
	require.NoError(t, f2.Close())

	info, err := fsys.Query("/append.txt")
	require.NoError(t, err)
	assert.EqualValues(t, len("firstsecond"), info.Size)
}

func TestTruncate_GrowsFile(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/grow.txt")
	require.NoError(t, err)
	_, werr := f.Write([]byte("abc"))
	require.NoError(t, werr)

	require.NoError(t, f.Truncate(10))
	require.NoError(t, f.Close())

	info, err := fsys.Query("/grow.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 10, info.Size)
}

func TestRename_WithinSameDirectory(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/old.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fsys.Rename("/old.txt", "/new.txt"))

	_, err = fsys.Query("/old.txt")
	assert.ErrorIs(t, err, fatcore.ErrNotFound)

	_, err = fsys.Query("/new.txt")
	assert.NoError(t, err)
}

func TestRename_AcrossDirectories(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	require.NoError(t, fsys.Mkdir("/dest", 0o755))
	f, err := fsys.Create("/moveme.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fsys.Rename("/moveme.txt", "/dest/moveme.txt"))

	_, err = fsys.Query("/moveme.txt")
	assert.ErrorIs(t, err, fatcore.ErrNotFound)

	_, err = fsys.Query("/dest/moveme.txt")
	assert.NoError(t, err)
}

func TestRemove_DeletesFile(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/gone.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fsys.Remove("/gone.txt"))

	_, err = fsys.Query("/gone.txt")
	assert.ErrorIs(t, err, fatcore.ErrNotFound)
}

// TestRemove_FreesClusterChain writes enough data to a file that it spans
// several clusters, removes it, then creates and fully writes several more
// files of the same size. If Remove had left the original chain allocated
// (rather than freeing it back to the FAT), the volume would run out of
// clusters partway through this loop.
func TestRemove_FreesClusterChain(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	payload := make([]byte, 16*1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	f, err := fsys.Create("/big.bin")
	require.NoError(t, err)
	_, werr := f.Write(payload)
	require.NoError(t, werr)
	require.NoError(t, f.Close())

	require.NoError(t, fsys.Remove("/big.bin"))
	_, err = fsys.Query("/big.bin")
	assert.ErrorIs(t, err, fatcore.ErrNotFound)

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("/big%d.bin", i)
		f, cerr := fsys.Create(name)
		require.NoError(t, cerr)
		_, werr := f.Write(payload)
		require.NoError(t, werr, "write %d ran out of clusters -- Remove leaked the freed chain", i)
		require.NoError(t, f.Close())
	}
}

// TestRemove_RejectsOpenFile exercises spec's reject-mutation-of-an-open-
// file guard: Remove must refuse to delete an entry that still has a live
// handle open on it.
func TestRemove_RejectsOpenFile(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/held.txt")
	require.NoError(t, err)
	defer f.Close()

	err = fsys.Remove("/held.txt")
	assert.ErrorIs(t, err, fatcore.ErrEntryOpen)
}

// TestRename_RejectsOpenFile mirrors TestRemove_RejectsOpenFile for Rename.
func TestRename_RejectsOpenFile(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/held2.txt")
	require.NoError(t, err)
	defer f.Close()

	err = fsys.Rename("/held2.txt", "/renamed.txt")
	assert.ErrorIs(t, err, fatcore.ErrEntryOpen)
}

// TestCreate_RootDirectoryFull exercises the FAT12/16 fixed-size root
// directory's distinct full condition: once every one of its entry slots is
// occupied, Create must fail with ErrDirectoryFull rather than the generic
// ErrVolumeFull a cluster-chain directory would return.
func TestCreate_RootDirectoryFull(t *testing.T) {
	driver := device.NewRAMDiskDriver(512, floppySectors, nil)
	dev := device.New("ramdisk", 0, driver)

	v, err := volume.Format(dev, floppySectors, volume.FormatParams{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    224,
		Version:           12,
	}, fatcore.MountFlagsAllowAll)
	require.NoError(t, err)

	fsys := fs.NewFileSystem(v, 16, 16)

	for i := 0; i < 224; i++ {
		// Uppercase, 8.3-compliant names so each entry takes exactly one
		// directory slot -- a lowercase or long name would need an
		// additional LFN slot and fill the fixed-size root directory
		// sooner than its 224-entry capacity.
		name := fmt.Sprintf("/F%03d.TXT", i)
		f, cerr := fsys.Create(name)
		require.NoError(t, cerr, "creating entry %d", i)
		require.NoError(t, f.Close())
	}

	_, err = fsys.Create("/OVERFLOW.TXT")
	assert.ErrorIs(t, err, fatcore.ErrDirectoryFull)
}

func TestRemove_RejectsNonEmptyDirectory(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	require.NoError(t, fsys.Mkdir("/full", 0o755))
	f, err := fsys.Create("/full/child.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = fsys.Remove("/full")
	assert.ErrorIs(t, err, fatcore.ErrDirectoryNotEmpty)
}

func TestChdirAndGetwd(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	require.NoError(t, fsys.Mkdir("/work", 0o755))
	require.NoError(t, fsys.Chdir("/work"))
	assert.Equal(t, "/work", fsys.Getwd())

	f, err := fsys.Create("relative.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fsys.Query("/work/relative.txt")
	assert.NoError(t, err)
}

func TestChdir_RejectsNonDirectory(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/plainfile.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = fsys.Chdir("/plainfile.txt")
	assert.ErrorIs(t, err, fatcore.ErrNotADirectory)
}

func TestChmod_SetsReadOnlyBit(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/ro.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, fsys.Chmod("/ro.txt", 0o444))

	info, err := fsys.Query("/ro.txt")
	require.NoError(t, err)
	assert.Zero(t, info.Mode.Perm()&0o222)
}

func TestUnmount_RefusesWhileFilesOpen(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/open.txt")
	require.NoError(t, err)

	err = fsys.Unmount()
	assert.ErrorIs(t, err, fatcore.ErrFilesOpen)

	require.NoError(t, f.Close())
	assert.NoError(t, fsys.Unmount())
}

func TestReadDir_ListsCreatedEntries(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	for _, name := range []string{"/a.txt", "/b.txt"} {
		f, err := fsys.Create(name)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	require.NoError(t, fsys.Mkdir("/sub", 0o755))

	entries, err := fsys.ReadDir("/")
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = e.IsDir()
	}
	assert.False(t, names["a.txt"])
	assert.False(t, names["b.txt"])
	assert.True(t, names["sub"])
}

func TestOpenDir_ReadNextExhaustsEntries(t *testing.T) {
	fsys := newFormattedFileSystem(t)
	require.NoError(t, fsys.Mkdir("/listed", 0o755))

	d, err := fsys.OpenDir("/listed")
	require.NoError(t, err)
	defer d.Close()

	var names []string
	for {
		entry, ok, rerr := d.ReadNext()
		require.NoError(t, rerr)
		if !ok {
			break
		}
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{".", ".."}, names)
}

func TestStat_MatchesQuery(t *testing.T) {
	fsys := newFormattedFileSystem(t)

	f, err := fsys.Create("/statme.txt")
	require.NoError(t, err)
	_, werr := f.Write([]byte("xyz"))
	require.NoError(t, werr)
	require.NoError(t, f.Close())

	stat, err := fsys.Stat("/statme.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stat.Size)
	assert.False(t, stat.ModeFlags.IsDir())
	assert.NotEqual(t, os.FileMode(0), stat.ModeFlags)
}
