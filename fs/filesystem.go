// Package fs provides the concrete FileSystem a caller actually operates
// through: a mounted volume plus the open-file/open-directory registry and
// the per-task working directory. It lives outside the root fatcore
// package because volume (which it must import to reach a mounted FAT
// volume) already imports fatcore itself for fatcore.MountFlags -- putting
// this type in the root package would close an import cycle.
package fs

import (
	stderrors "errors"
	"os"
	posixpath "path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dargueta/fatcore"
	"github.com/dargueta/fatcore/clusterchain"
	"github.com/dargueta/fatcore/dirent"
	"github.com/dargueta/fatcore/fat"
	"github.com/dargueta/fatcore/handle"
	"github.com/dargueta/fatcore/journal"
	"github.com/dargueta/fatcore/volume"
)

// FileSystem is the context object a caller actually operates through: a
// mounted volume plus the open-file/open-directory registry and the
// per-task working directory, tying every lower layer together the way
// driver.BaseDriver ties a DriverImplementation to a path-resolution
// pipeline. Unlike BaseDriver, FileSystem talks to the concrete FAT stack
// directly (volume.Volume, dirent.Directory) instead of going through an
// ObjectHandle/DriverImplementation indirection -- this module only ever
// has one on-disk format to drive, so the extra layer the teacher uses to
// support several drivers from one BaseDriver has nothing left to abstract
// over.
type FileSystem struct {
	vol            *volume.Volume
	registry       *handle.Registry
	mu             sync.Mutex
	workingDirPath string
}

// toHandleFlags translates the root package's fatcore.IOFlags (the caller-facing
// open-mode flags) into handle.IOFlags (the registry's internal
// representation). The two types don't share bit positions -- they were
// defined independently in packages that can't import each other -- so
// this goes bit-by-bit through each side's named accessors instead of a
// raw numeric conversion.
func toHandleFlags(flags fatcore.IOFlags) handle.IOFlags {
	var out handle.IOFlags
	switch {
	case flags&fatcore.O_RDWR != 0:
		out |= handle.O_RDWR
	case flags.IsWritable():
		out |= handle.O_WRONLY
	}
	if flags.WantsCreate() {
		out |= handle.O_CREATE
	}
	if flags.WantsExclusive() {
		out |= handle.O_EXCL
	}
	if flags.WantsTruncate() {
		out |= handle.O_TRUNC
	}
	if flags.WantsAppend() {
		out |= handle.O_APPEND
	}
	if flags.WantsCachedMetadata() {
		out |= handle.O_CACHED_METADATA
	}
	return out
}

// withJournal runs mutate -- the on-disk write rec describes -- as a
// journaled transaction when the volume has an attached write-ahead
// journal (see volume.Volume.Journal): append rec, commit it durably, only
// then perform mutate, and clear the transaction once it lands, per spec
// §4.6. A volume mounted without a journal file runs mutate directly with
// no logging.
func (fs *FileSystem) withJournal(rec journal.Record, mutate func() fatcore.DriverError) fatcore.DriverError {
	j := fs.vol.Journal
	if j == nil {
		return mutate()
	}
	if err := j.Start(); err != nil {
		return err
	}
	if err := j.Append(rec); err != nil {
		return err
	}
	if err := j.Commit(); err != nil {
		return err
	}
	if err := mutate(); err != nil {
		return err
	}
	j.ClearReset()
	return nil
}

// isOpenElsewhere reports whether the directory entry at (parentCluster,
// dirEntryPos) currently has a live open file handle, per spec §4.7's
// reject-mutation-of-an-open-file guard.
func (fs *FileSystem) isOpenElsewhere(parentCluster fat.ClusterID, dirEntryPos int64) bool {
	return fs.registry.IsFileOpen(parentCluster, dirEntryPos)
}

// NewFileSystem wraps a mounted volume with a fresh handle registry sized
// for maxOpenFiles concurrent file handles and maxOpenDirs concurrent
// directory handles.
func NewFileSystem(vol *volume.Volume, maxOpenFiles, maxOpenDirs int) *FileSystem {
	return &FileSystem{
		vol:            vol,
		registry:       handle.NewRegistry(maxOpenFiles, maxOpenDirs),
		workingDirPath: "/",
	}
}

// EntryInfo is the query(path) -> EntryInfo return type: a directory
// entry's full metadata, independent of any particular open handle.
type EntryInfo struct {
	Name         string
	IsDir        bool
	Mode         os.FileMode
	Size         int64
	FirstCluster fat.ClusterID
	Created      time.Time
	LastModified time.Time
	LastAccessed time.Time
}

// NormalizePath cleans path and, if relative, joins it to the current
// working directory. Grounded on driver.BaseDriver.NormalizePath.
func (fs *FileSystem) NormalizePath(path string) string {
	path = posixpath.Clean(filepath.ToSlash(path))
	if path == "." {
		path = "/"
	}
	if posixpath.IsAbs(path) {
		return path
	}
	fs.mu.Lock()
	wd := fs.workingDirPath
	fs.mu.Unlock()
	return posixpath.Join(wd, path)
}

// Getwd returns the working directory as an absolute path.
func (fs *FileSystem) Getwd() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.workingDirPath
}

// Chdir changes the working directory, failing if path doesn't name a
// directory.
func (fs *FileSystem) Chdir(path string) error {
	absPath := fs.NormalizePath(path)
	if absPath == "/" {
		fs.mu.Lock()
		fs.workingDirPath = "/"
		fs.mu.Unlock()
		return nil
	}

	_, entry, _, err := fs.resolve(absPath)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return fatcore.ErrNotADirectory.WithMessage(absPath)
	}

	fs.mu.Lock()
	fs.workingDirPath = absPath
	fs.mu.Unlock()
	return nil
}

func splitPath(absPath string) []string {
	trimmed := strings.Trim(absPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// childDirectory opens entry (which must be a directory) as a
// dirent.Directory, walking its cluster chain through the volume's shared
// stream and FAT table.
func (fs *FileSystem) childDirectory(entry *dirent.Entry) (*dirent.Directory, fatcore.DriverError) {
	writer, err := clusterchain.NewChainWriter(fs.vol.Stream, fs.vol.Table, entry.FirstCluster)
	if err != nil {
		return nil, err
	}
	return dirent.NewDirectory(&writer.ChainReader, writer), nil
}

// walkToParent resolves every component but the last of parts, returning
// the directory the final component should be looked up or placed in,
// along with that directory's own first cluster (0 for the root directory,
// matching the on-disk convention a non-root directory's ".." entry uses).
func (fs *FileSystem) walkToParent(parts []string) (*dirent.Directory, fat.ClusterID, fatcore.DriverError) {
	dir := fs.vol.RootDir
	var cluster fat.ClusterID

	for _, part := range parts[:len(parts)-1] {
		entry, _, err := dir.Lookup(part)
		if err != nil {
			return nil, 0, err
		}
		if !entry.IsDir() {
			return nil, 0, fatcore.ErrNotADirectory.WithMessage(part)
		}
		cluster = entry.FirstCluster
		dir, err = fs.childDirectory(entry)
		if err != nil {
			return nil, 0, err
		}
	}
	return dir, cluster, nil
}

// resolve looks up absPath's final component, returning the directory it
// lives in, the entry itself, and the byte offset of its short-name slot
// (for later in-place rewrites).
func (fs *FileSystem) resolve(absPath string) (*dirent.Directory, *dirent.Entry, int64, fatcore.DriverError) {
	parts := splitPath(absPath)
	if len(parts) == 0 {
		return nil, nil, 0, fatcore.ErrIsRootDirectory
	}
	parent, _, err := fs.walkToParent(parts)
	if err != nil {
		return nil, nil, 0, err
	}
	entry, offset, err := parent.Lookup(parts[len(parts)-1])
	if err != nil {
		return parent, nil, 0, err
	}
	return parent, entry, offset, nil
}

func entryToInfo(e *dirent.Entry) EntryInfo {
	return EntryInfo{
		Name:         e.Name(),
		IsDir:        e.IsDir(),
		Mode:         e.Mode(),
		Size:         e.Size(),
		FirstCluster: e.FirstCluster,
		Created:      e.Created,
		LastModified: e.LastModified,
		LastAccessed: e.LastAccessed,
	}
}

func rootInfo() EntryInfo {
	return EntryInfo{Name: "/", IsDir: true, Mode: os.ModeDir | 0o755}
}

// Query returns path's metadata without opening it.
func (fs *FileSystem) Query(path string) (EntryInfo, error) {
	absPath := fs.NormalizePath(path)
	if absPath == "/" {
		return rootInfo(), nil
	}
	_, entry, _, err := fs.resolve(absPath)
	if err != nil {
		return EntryInfo{}, err
	}
	return entryToInfo(entry), nil
}

// Stat is Query expressed in the platform-independent fatcore.FileStat shape, for
// callers that want syscall.Stat_t-like output instead.
func (fs *FileSystem) Stat(path string) (fatcore.FileStat, error) {
	info, err := fs.Query(path)
	if err != nil {
		return fatcore.FileStat{}, err
	}
	return fatcore.FileStat{
		InodeNumber:  uint64(info.FirstCluster),
		ModeFlags:    info.Mode,
		Size:         info.Size,
		BlockSize:    int64(fs.vol.BootSector.BytesPerCluster),
		CreatedAt:    info.Created,
		LastModified: info.LastModified,
		LastAccessed: info.LastAccessed,
		DeletedAt:    fatcore.UndefinedTimestamp,
	}, nil
}

// DirectoryEntryInfo adapts a dirent.Entry to the root package's
// fatcore.DirectoryEntry contract (os.DirEntry plus Stat() fatcore.FileStat), the way
// driver.NewDirectoryEntryFromHandle adapts an ObjectHandle.
type DirectoryEntryInfo struct {
	entry dirent.Entry
}

func (d *DirectoryEntryInfo) Name() string               { return d.entry.Name() }
func (d *DirectoryEntryInfo) IsDir() bool                 { return d.entry.IsDir() }
func (d *DirectoryEntryInfo) Type() os.FileMode           { return d.entry.Mode().Type() }
func (d *DirectoryEntryInfo) Info() (os.FileInfo, error)  { return &direntFileInfo{d.entry}, nil }
func (d *DirectoryEntryInfo) Stat() fatcore.FileStat {
	info := entryToInfo(&d.entry)
	return fatcore.FileStat{
		InodeNumber:  uint64(info.FirstCluster),
		ModeFlags:    info.Mode,
		Size:         info.Size,
		LastModified: info.LastModified,
		LastAccessed: info.LastAccessed,
		CreatedAt:    info.Created,
		DeletedAt:    fatcore.UndefinedTimestamp,
	}
}

// direntFileInfo adapts a dirent.Entry to os.FileInfo, for DirectoryEntryInfo.Info.
type direntFileInfo struct{ entry dirent.Entry }

func (f *direntFileInfo) Name() string       { return f.entry.Name() }
func (f *direntFileInfo) Size() int64        { return f.entry.Size() }
func (f *direntFileInfo) Mode() os.FileMode  { return f.entry.Mode() }
func (f *direntFileInfo) ModTime() time.Time { return f.entry.LastModified }
func (f *direntFileInfo) IsDir() bool        { return f.entry.IsDir() }
func (f *direntFileInfo) Sys() interface{}   { return nil }

// ReadDir lists path's directory entries. "." and ".." are never
// synthesized into the result since the on-disk entries (for non-root
// directories) already carry them.
func (fs *FileSystem) ReadDir(path string) ([]fatcore.DirectoryEntry, error) {
	dir, err := fs.directoryAt(path)
	if err != nil {
		return nil, err
	}

	entries, lerr := dir.List()
	if lerr != nil {
		return nil, lerr
	}
	out := make([]fatcore.DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, &DirectoryEntryInfo{entry: e})
	}
	return out, nil
}

// directoryAt resolves path to a dirent.Directory, following the FAT32
// root's or a subdirectory's cluster chain as needed.
func (fs *FileSystem) directoryAt(path string) (*dirent.Directory, fatcore.DriverError) {
	absPath := fs.NormalizePath(path)
	if absPath == "/" {
		return fs.vol.RootDir, nil
	}
	_, entry, _, err := fs.resolve(absPath)
	if err != nil {
		return nil, err
	}
	if !entry.IsDir() {
		return nil, fatcore.ErrNotADirectory.WithMessage(absPath)
	}
	return fs.childDirectory(entry)
}

// makeDotRaw builds a "." or ".." directory entry pointing at cluster,
// bypassing the ordinary 8.3 name-encoding path since these two names are a
// fixed on-disk convention, not user-chosen names.
func makeDotRaw(name string, cluster fat.ClusterID, t time.Time) dirent.Raw {
	r := dirent.Raw{AttributeFlags: uint8(fat.AttrDirectory)}
	for i := range r.Name {
		r.Name[i] = ' '
	}
	for i := range r.Extension {
		r.Extension[i] = ' '
	}
	copy(r.Name[:], name)

	date, tm, hundredths := dirent.TimeToParts(t)
	r.CreatedDate, r.CreatedTime, r.CreatedTimeMillis = date, tm, hundredths
	r.LastModifiedDate, r.LastModifiedTime = date, tm
	r.LastAccessedDate = date
	r.FirstClusterHigh = uint16(uint32(cluster) >> 16)
	r.FirstClusterLow = uint16(uint32(cluster))
	return r
}

// Mkdir creates an empty directory at path, seeding it with "." and ".."
// entries per spec's every-non-root-directory invariant.
func (fs *FileSystem) Mkdir(path string, perm os.FileMode) error {
	if !fs.vol.AccessMode.CanWrite() {
		return fatcore.ErrReadOnlyFileSystem
	}

	absPath := fs.NormalizePath(path)
	parts := splitPath(absPath)
	if len(parts) == 0 {
		return fatcore.ErrExists.WithMessage("the root directory always exists")
	}

	parentDir, parentCluster, err := fs.walkToParent(parts)
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	if _, _, lerr := parentDir.Lookup(name); lerr == nil {
		return fatcore.ErrExists
	}

	now := time.Now()
	childWriter, werr := clusterchain.NewChainWriter(fs.vol.Stream, fs.vol.Table, 0)
	if werr != nil {
		return werr
	}

	selfRaw := makeDotRaw(".", 0, now)
	parentRaw := makeDotRaw("..", parentCluster, now)
	if _, werr := childWriter.WriteAt(append(selfRaw.Bytes(), parentRaw.Bytes()...), 0); werr != nil {
		return werr
	}

	childFirst := childWriter.FirstCluster()
	selfRaw.FirstClusterHigh = uint16(uint32(childFirst) >> 16)
	selfRaw.FirstClusterLow = uint16(uint32(childFirst))
	if _, werr := childWriter.WriteAt(selfRaw.Bytes(), 0); werr != nil {
		return werr
	}

	entry := &dirent.Entry{
		AttributeFlags: int(dirent.FileModeToAttrFlags(perm|os.ModeDir, 0)),
		Created:        now,
		LastModified:   now,
		LastAccessed:   now,
		FirstCluster:   childFirst,
	}
	planOffset, slots, perr := parentDir.PlanPlace(name, entry)
	if perr != nil {
		return perr
	}
	rec := journal.Record{
		Kind:         journal.RecordEnterEntryCreate,
		ParentDirPos: int64(parentCluster),
		EntryRangeLo: planOffset,
		EntryRangeHi: planOffset + int64(len(slots)-1)*dirent.Size,
	}
	return fs.withJournal(rec, func() fatcore.DriverError {
		_, werr := parentDir.WriteSlots(planOffset, slots)
		return werr
	})
}

// Remove deletes the file (freeing its cluster chain) or the empty directory
// at path.
func (fs *FileSystem) Remove(path string) error {
	if !fs.vol.AccessMode.CanDelete() {
		return fatcore.ErrReadOnlyFileSystem
	}

	absPath := fs.NormalizePath(path)
	parts := splitPath(absPath)
	if len(parts) == 0 {
		return fatcore.ErrIsRootDirectory
	}

	parentDir, parentCluster, err := fs.walkToParent(parts)
	if err != nil {
		return err
	}
	name := parts[len(parts)-1]
	entry, offset, lerr := parentDir.Lookup(name)
	if lerr != nil {
		return lerr
	}
	if fs.isOpenElsewhere(parentCluster, offset) {
		return fatcore.ErrEntryOpen.WithMessage(absPath)
	}

	if entry.IsDir() {
		childDir, cerr := fs.childDirectory(entry)
		if cerr != nil {
			return cerr
		}
		entries, lerr := childDir.List()
		if lerr != nil {
			return lerr
		}
		for _, e := range entries {
			if e.Name() != "." && e.Name() != ".." {
				return fatcore.ErrDirectoryNotEmpty.WithMessage(absPath)
			}
		}
	}

	lo, hi, firstCluster, derr := parentDir.DeletionRange(name)
	if derr != nil {
		return derr
	}
	rec := journal.Record{
		Kind:                   journal.RecordEnterEntryDelete,
		ParentDirPos:           int64(parentCluster),
		EntryRangeLo:           lo,
		EntryRangeHi:           hi,
		FreedChainFirstCluster: firstCluster,
	}
	return fs.withJournal(rec, func() fatcore.DriverError {
		if merr := parentDir.MarkRangeDeleted(lo, hi); merr != nil {
			return merr
		}
		if firstCluster != 0 {
			return fs.vol.Table.Free(firstCluster)
		}
		return nil
	})
}

// Rename moves or renames oldPath to newPath. Within the same directory
// this is an in-place slot rewrite (dirent.Directory.Rename); across
// directories it's a place-then-delete, since the two directories may live
// in entirely different cluster chains.
func (fs *FileSystem) Rename(oldPath, newPath string) error {
	if !fs.vol.AccessMode.CanWrite() {
		return fatcore.ErrReadOnlyFileSystem
	}

	oldAbs := fs.NormalizePath(oldPath)
	newAbs := fs.NormalizePath(newPath)

	oldParts := splitPath(oldAbs)
	newParts := splitPath(newAbs)
	if len(oldParts) == 0 || len(newParts) == 0 {
		return fatcore.ErrIsRootDirectory
	}

	oldParentDir, oldParentCluster, err := fs.walkToParent(oldParts)
	if err != nil {
		return err
	}
	newParentDir, newParentCluster, err := fs.walkToParent(newParts)
	if err != nil {
		return err
	}
	oldName := oldParts[len(oldParts)-1]
	newName := newParts[len(newParts)-1]

	entry, oldOffset, lerr := oldParentDir.Lookup(oldName)
	if lerr != nil {
		return lerr
	}
	if fs.isOpenElsewhere(oldParentCluster, oldOffset) {
		return fatcore.ErrEntryOpen.WithMessage(oldAbs)
	}

	if oldParentCluster == newParentCluster {
		rec := journal.Record{
			Kind:           journal.RecordEnterEntryUpdate,
			ParentDirPos:   int64(oldParentCluster),
			EntryPosBefore: oldOffset,
		}
		return fs.withJournal(rec, func() fatcore.DriverError {
			return oldParentDir.Rename(oldName, newName)
		})
	}

	if entry.IsDir() {
		return fatcore.ErrVolumesDiffer.WithMessage("cross-directory rename of a directory is not supported")
	}

	planOffset, slots, perr := newParentDir.PlanPlace(newName, entry)
	if perr != nil {
		return perr
	}
	createRec := journal.Record{
		Kind:         journal.RecordEnterEntryCreate,
		ParentDirPos: int64(newParentCluster),
		EntryRangeLo: planOffset,
		EntryRangeHi: planOffset + int64(len(slots)-1)*dirent.Size,
	}
	if err := fs.withJournal(createRec, func() fatcore.DriverError {
		_, werr := newParentDir.WriteSlots(planOffset, slots)
		return werr
	}); err != nil {
		return err
	}

	lo, hi, _, derr := oldParentDir.DeletionRange(oldName)
	if derr != nil {
		return derr
	}
	// The moved entry's data chain now belongs to the new directory slot, so
	// this delete record carries no FreedChainFirstCluster -- replaying it
	// must erase the old slot without freeing the chain it pointed to.
	deleteRec := journal.Record{
		Kind:         journal.RecordEnterEntryDelete,
		ParentDirPos: int64(oldParentCluster),
		EntryRangeLo: lo,
		EntryRangeHi: hi,
	}
	return fs.withJournal(deleteRec, func() fatcore.DriverError {
		return oldParentDir.MarkRangeDeleted(lo, hi)
	})
}

// Chtimes updates path's timestamps in place.
func (fs *FileSystem) Chtimes(path string, created, lastAccessed, lastModified time.Time) error {
	absPath := fs.NormalizePath(path)
	parentDir, entry, offset, err := fs.resolve(absPath)
	if err != nil {
		return err
	}
	if !created.IsZero() {
		entry.Created = created
	}
	if !lastAccessed.IsZero() {
		entry.LastAccessed = lastAccessed
	}
	if !lastModified.IsZero() {
		entry.LastModified = lastModified
	}
	return parentDir.UpdateEntry(offset, entry)
}

// Chmod updates path's read-only bit (the only permission FAT's attribute
// byte can express).
func (fs *FileSystem) Chmod(path string, mode os.FileMode) error {
	absPath := fs.NormalizePath(path)
	parentDir, entry, offset, err := fs.resolve(absPath)
	if err != nil {
		return err
	}
	entry.AttributeFlags = int(dirent.FileModeToAttrFlags(mode, uint8(entry.AttributeFlags)))
	return parentDir.UpdateEntry(offset, entry)
}

////////////////////////////////////////////////////////////////////////////////
// File handles

// FileHandle is an open file, wrapping a handle.ID with the chain writer and
// parent-directory linkage the registry itself doesn't carry.
type FileHandle struct {
	fs     *FileSystem
	id     handle.ID
	dir    *dirent.Directory
	writer *clusterchain.ChainWriter
}

// Create creates path (failing if it already exists) and opens it for
// reading and writing.
func (fs *FileSystem) Create(path string) (*FileHandle, error) {
	return fs.OpenFile(path, fatcore.O_RDWR|fatcore.O_CREATE|fatcore.O_EXCL, 0o644)
}

// Open opens path for reading.
func (fs *FileSystem) Open(path string) (*FileHandle, error) {
	return fs.OpenFile(path, fatcore.O_RDONLY, 0)
}

// OpenFile opens path per flags, creating it in its parent directory if
// fatcore.O_CREATE is set and it doesn't already exist.
func (fs *FileSystem) OpenFile(path string, flags fatcore.IOFlags, perm os.FileMode) (*FileHandle, error) {
	if flags.IsWritable() && !fs.vol.AccessMode.CanWrite() {
		return nil, fatcore.ErrReadOnlyFileSystem.WithMessage(path)
	}

	absPath := fs.NormalizePath(path)
	parts := splitPath(absPath)
	if len(parts) == 0 {
		return nil, fatcore.ErrIsADirectory.WithMessage(absPath)
	}

	parentDir, parentCluster, err := fs.walkToParent(parts)
	if err != nil {
		return nil, err
	}
	name := parts[len(parts)-1]

	entry, offset, lerr := parentDir.Lookup(name)
	if lerr != nil {
		if !stderrors.Is(lerr, fatcore.ErrNotFound) {
			return nil, lerr
		}
		if !flags.WantsCreate() {
			return nil, fatcore.ErrNotFound.WithMessage(absPath)
		}
		now := time.Now()
		newEntry := &dirent.Entry{
			AttributeFlags: int(dirent.FileModeToAttrFlags(perm, 0)),
			Created:        now,
			LastModified:   now,
			LastAccessed:   now,
		}
		planOffset, slots, perr := parentDir.PlanPlace(name, newEntry)
		if perr != nil {
			return nil, perr
		}
		rec := journal.Record{
			Kind:         journal.RecordEnterEntryCreate,
			ParentDirPos: int64(parentCluster),
			EntryRangeLo: planOffset,
			EntryRangeHi: planOffset + int64(len(slots)-1)*dirent.Size,
		}
		var newOffset int64
		if werr := fs.withJournal(rec, func() fatcore.DriverError {
			off, werr := parentDir.WriteSlots(planOffset, slots)
			newOffset = off
			return werr
		}); werr != nil {
			return nil, werr
		}
		entry, offset = newEntry, newOffset
	} else if flags.WantsExclusive() && flags.WantsCreate() {
		return nil, fatcore.ErrExists.WithMessage(absPath)
	}

	if entry.IsDir() {
		return nil, fatcore.ErrIsADirectory.WithMessage(absPath)
	}

	writer, cerr := clusterchain.NewChainWriter(fs.vol.Stream, fs.vol.Table, entry.FirstCluster)
	if cerr != nil {
		return nil, cerr
	}

	if flags.WantsTruncate() && entry.Size() != 0 {
		if terr := writer.Truncate(0); terr != nil {
			return nil, terr
		}
		entry.SetSize(0)
		entry.SetFirstCluster(0)
		if perr := parentDir.UpdateEntry(offset, entry); perr != nil {
			return nil, perr
		}
	}

	hFile := &handle.File{
		ParentCluster: parentCluster,
		DirEntryPos:   offset,
		FirstCluster:  entry.FirstCluster,
		Size:          entry.Size(),
		AccessMode:    toHandleFlags(flags),
	}
	if flags.WantsAppend() {
		hFile.Pos = hFile.Size
	}

	id, oerr := fs.registry.OpenFile(hFile)
	if oerr != nil {
		return nil, oerr
	}

	return &FileHandle{fs: fs, id: id, dir: parentDir, writer: writer}, nil
}

// handle returns the live handle.File backing f, failing if it was already
// closed.
func (f *FileHandle) handle() (*handle.File, error) {
	return f.fs.registry.GetFile(f.id)
}

// Read fills p from the file's current position, advancing it, and stops at
// the file's logical Size rather than reading raw bytes out of the tail of
// its last allocated cluster. Reaching end of file is recorded on the
// handle's EOF flag, not returned as an error -- an over-sized read against
// a short file simply returns fewer bytes than requested, per spec §7.
func (f *FileHandle) Read(p []byte) (int, error) {
	h, err := f.handle()
	if err != nil {
		return 0, err
	}
	if !h.AccessMode.Readable() {
		return 0, fatcore.ErrInvalidOperation.WithMessage("file not opened for reading")
	}

	h.EOF = false
	remaining := h.Size - h.Pos
	if remaining <= 0 {
		h.EOF = true
		return 0, nil
	}

	toRead := p
	if int64(len(toRead)) > remaining {
		toRead = p[:remaining]
	}

	n, rerr := f.writer.ReadAt(toRead, h.Pos)
	h.Pos += int64(n)
	if rerr != nil {
		h.Err = true
		return n, rerr
	}
	if h.Pos >= h.Size {
		h.EOF = true
	}
	return n, nil
}

// Write writes p at the file's current position (or the end of file if
// opened with fatcore.O_APPEND), advancing the position and growing the file as
// needed.
func (f *FileHandle) Write(p []byte) (int, error) {
	h, err := f.handle()
	if err != nil {
		return 0, err
	}
	if !h.AccessMode.Writable() {
		return 0, fatcore.ErrInvalidOperation.WithMessage("file not opened for writing")
	}

	pos := h.Pos
	if h.AccessMode.Append() {
		pos = h.Size
	}

	n, werr := f.writer.WriteAt(p, pos)
	h.Pos = pos + int64(n)
	if h.Pos > h.Size {
		h.Size = h.Pos
	}
	h.MetadataDirty = true
	if werr != nil {
		return n, werr
	}
	if !h.AccessMode.CachedMetadata() {
		if ferr := f.flushMetadata(h); ferr != nil {
			return n, ferr
		}
	}
	return n, nil
}

// Seek-origin constants, matching io.Seeker / spec's origin enum.
const (
	SeekStart   = 0
	SeekCurrent = 1
	SeekEnd     = 2
)

// Seek repositions the file, returning the new absolute offset.
func (f *FileHandle) Seek(offset int64, whence int) (int64, error) {
	h, err := f.handle()
	if err != nil {
		return 0, err
	}

	var newPos int64
	switch whence {
	case SeekStart:
		newPos = offset
	case SeekCurrent:
		newPos = h.Pos + offset
	case SeekEnd:
		newPos = h.Size + offset
	default:
		return 0, fatcore.ErrInvalidArgument.WithMessage("invalid seek origin")
	}
	if newPos < 0 {
		return 0, fatcore.ErrInvalidArgument.WithMessage("negative seek position")
	}
	h.Pos = newPos
	return newPos, nil
}

// Tell returns the file's current position.
func (f *FileHandle) Tell() (int64, error) {
	h, err := f.handle()
	if err != nil {
		return 0, err
	}
	return h.Pos, nil
}

// Truncate sets the file's size to newSize, freeing or allocating clusters
// as needed and writing the new size back to its directory entry.
func (f *FileHandle) Truncate(newSize int64) error {
	h, err := f.handle()
	if err != nil {
		return err
	}
	if !h.AccessMode.Writable() {
		return fatcore.ErrInvalidOperation.WithMessage("file not opened for writing")
	}

	bytesPerCluster := int64(f.fs.vol.BootSector.BytesPerCluster)
	newClusterCount := int((newSize + bytesPerCluster - 1) / bytesPerCluster)
	if terr := f.writer.Truncate(newClusterCount); terr != nil {
		return terr
	}

	h.Size = newSize
	if h.Pos > newSize {
		h.Pos = newSize
	}
	h.MetadataDirty = true
	return f.flushMetadata(h)
}

// flushMetadata writes h's size and first cluster back to its directory
// entry, per spec's cached-metadata mode flag deferring this to Close or an
// explicit Flush instead of every mutating call.
func (f *FileHandle) flushMetadata(h *handle.File) error {
	if !h.MetadataDirty {
		return nil
	}

	entry := &dirent.Entry{
		LastModified: time.Now(),
	}
	entry.SetSize(h.Size)
	entry.SetFirstCluster(f.writer.FirstCluster())

	// UpdateEntry needs the entry's existing attribute flags and short
	// name preserved, so re-read the live slot rather than constructing
	// one from scratch.
	existing, lerr := f.dir.EntryAt(h.DirEntryPos)
	if lerr == nil {
		entry.AttributeFlags = existing.AttributeFlags
		entry.Created = existing.Created
		entry.LastAccessed = existing.LastAccessed
		entry.ShortName11 = existing.ShortName11
	}

	if err := f.dir.UpdateEntry(h.DirEntryPos, entry); err != nil {
		return err
	}
	h.MetadataDirty = false
	return nil
}

// Flush writes back any dirty metadata (size, first cluster) without
// closing the handle.
func (f *FileHandle) Flush() error {
	h, err := f.handle()
	if err != nil {
		return err
	}
	return f.flushMetadata(h)
}

// Close flushes dirty metadata and releases the handle. Further use of f is
// invalid.
func (f *FileHandle) Close() error {
	h, err := f.handle()
	if err != nil {
		return err
	}
	if ferr := f.flushMetadata(h); ferr != nil {
		return ferr
	}
	return f.fs.registry.CloseFile(f.id)
}

////////////////////////////////////////////////////////////////////////////////
// Directory handles

// DirHandle is an open directory, supporting the spec's read_next-one-at-a-time
// scan contract instead of materializing the whole listing up front.
type DirHandle struct {
	fs      *FileSystem
	id      handle.ID
	entries []dirent.Entry
}

// OpenDir opens path for a sequential directory scan.
func (fs *FileSystem) OpenDir(path string) (*DirHandle, error) {
	dir, err := fs.directoryAt(path)
	if err != nil {
		return nil, err
	}
	entries, lerr := dir.List()
	if lerr != nil {
		return nil, lerr
	}

	id, oerr := fs.registry.OpenDir(&handle.Dir{})
	if oerr != nil {
		return nil, oerr
	}
	return &DirHandle{fs: fs, id: id, entries: entries}, nil
}

// ReadNext returns the next entry in the scan, or ok=false once the
// directory is exhausted.
func (d *DirHandle) ReadNext() (entry fatcore.DirectoryEntry, ok bool, err error) {
	h, herr := d.fs.registry.GetDir(d.id)
	if herr != nil {
		return nil, false, herr
	}
	if int(h.CurrentOffset) >= len(d.entries) {
		return nil, false, nil
	}
	e := d.entries[h.CurrentOffset]
	h.CurrentOffset++
	return &DirectoryEntryInfo{entry: e}, true, nil
}

// Close releases the directory handle.
func (d *DirHandle) Close() error {
	return d.fs.registry.CloseDir(d.id)
}

// CountOpenFiles reports the number of file handles still open on this
// file system's volume, used by an unmount guard (spec's FilesOpen check).
func (fs *FileSystem) CountOpenFiles() int { return fs.registry.CountOpenFiles() }

// CountOpenDirs reports the number of directory handles still open.
func (fs *FileSystem) CountOpenDirs() int { return fs.registry.CountOpenDirs() }

// Unmount refuses to proceed while any file or directory handle is open
// (spec's FilesOpen/DirsOpen guard), otherwise delegates to the volume.
func (fs *FileSystem) Unmount() error {
	if fs.CountOpenFiles() > 0 {
		return fatcore.ErrFilesOpen
	}
	if fs.CountOpenDirs() > 0 {
		return fatcore.ErrDirsOpen
	}
	return fs.vol.Unmount()
}
