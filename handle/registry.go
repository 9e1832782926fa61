// Package handle implements the process-wide open-file and open-directory
// tables: fixed-size slot arrays with a free list of indices, generalized
// from the teacher's single-object driver.File (one handle embedding a
// basicstream.BasicStream per open call) into a registry that can detect a
// stale handle by comparing the caller's generation against the slot's
// current one, per the design notes' "intrusive linked list -> indexed slot
// table" guidance.
package handle

import (
	"sync"

	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
)

// IOState is a handle's current transfer state, per spec §4 handle fields.
type IOState int

const (
	Idle IOState = iota
	Reading
	Writing
)

// ID identifies one slot in a Registry's file or directory table: the low
// 32 bits are the slot index, the high 32 bits are the generation the slot
// held when this ID was issued. A lookup whose generation doesn't match the
// slot's current one means the original handle was closed and the slot
// reused, and is rejected as a stale reference.
type ID uint64

func makeID(index int, generation uint32) ID {
	return ID(uint64(generation)<<32 | uint64(uint32(index)))
}

func (id ID) index() int         { return int(uint32(id)) }
func (id ID) generation() uint32 { return uint32(id >> 32) }

// File is the open-file handle described by spec §4: position within the
// file, the directory entry it was opened from, and the cluster-chain state
// needed to resolve further I/O without re-walking the chain from scratch.
type File struct {
	VolumeID      int
	ParentCluster fat.ClusterID // the directory DirEntryPos lives in; 0 means the root directory
	DirEntryPos   int64         // byte offset of the short-name slot in its parent directory
	FirstCluster  fat.ClusterID
	Size          int64
	Pos           int64
	AccessMode    IOFlags
	State         IOState
	EOF           bool
	Err           bool
	MetadataDirty bool

	// lastOffset/lastCluster cache the last cluster visited, so sequential
	// I/O doesn't re-walk the chain from its head every call (spec §4's
	// "Seek" guidance); a backward seek before lastOffset invalidates the
	// cache and restarts from the first cluster.
	lastOffset  int64
	lastCluster fat.ClusterID

	lock *ReentrantLock
}

// CacheSeek records the (offset, cluster) pair the caller last resolved to,
// for reuse by the next forward seek.
func (f *File) CacheSeek(offset int64, cluster fat.ClusterID) {
	f.lastOffset, f.lastCluster = offset, cluster
}

// ResolveSeekStart returns the best starting point for resolving a seek to
// targetOffset: the cached point if targetOffset is at or after it,
// otherwise the chain's first cluster.
func (f *File) ResolveSeekStart(targetOffset int64) (startOffset int64, startCluster fat.ClusterID) {
	if targetOffset >= f.lastOffset && f.lastCluster != 0 {
		return f.lastOffset, f.lastCluster
	}
	return 0, f.FirstCluster
}

// Dir is the open-directory handle described by spec §4: the directory's
// first cluster and a resumable scan offset. It is not invalidated by
// unrelated mutation of the directory it reads, only by deletion or
// truncation of the directory itself.
type Dir struct {
	VolumeID        int
	FirstCluster    fat.ClusterID
	CurrentOffset   int64
	lock            *ReentrantLock
}

type fileSlot struct {
	handle     *File
	generation uint32
	inUse      bool
}

type dirSlot struct {
	handle     *Dir
	generation uint32
	inUse      bool
}

// Registry is the process-wide table of open file and directory handles,
// sized once at construction. All lookup/insert/remove operations hold the
// registry's mutex only for the duration of the slot-table access itself,
// per spec §5's lock-hierarchy rule that the handle-registry lock is held
// briefly and never across a device or volume operation.
type Registry struct {
	mu sync.Mutex

	files     []fileSlot
	freeFiles []int

	dirs     []dirSlot
	freeDirs []int
}

// NewRegistry builds a registry with capacity maxFiles open file handles and
// maxDirs open directory handles.
func NewRegistry(maxFiles, maxDirs int) *Registry {
	r := &Registry{
		files: make([]fileSlot, maxFiles),
		dirs:  make([]dirSlot, maxDirs),
	}
	for i := maxFiles - 1; i >= 0; i-- {
		r.freeFiles = append(r.freeFiles, i)
	}
	for i := maxDirs - 1; i >= 0; i-- {
		r.freeDirs = append(r.freeDirs, i)
	}
	return r
}

// OpenFile allocates a slot for h and returns its identity.
func (r *Registry) OpenFile(h *File) (ID, fatcoreerrors.DriverError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.freeFiles) == 0 {
		return 0, fatcoreerrors.ErrTooManyOpenFiles
	}
	index := r.freeFiles[len(r.freeFiles)-1]
	r.freeFiles = r.freeFiles[:len(r.freeFiles)-1]

	slot := &r.files[index]
	slot.generation++
	slot.inUse = true
	h.lock = NewReentrantLock()
	slot.handle = h
	return makeID(index, slot.generation), nil
}

// GetFile resolves id to its live File handle, failing if the slot is free
// or the generation doesn't match (a stale handle from a prior Close).
func (r *Registry) GetFile(id ID) (*File, fatcoreerrors.DriverError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := id.index()
	if index < 0 || index >= len(r.files) {
		return nil, fatcoreerrors.ErrInvalidFileDescriptor
	}
	slot := &r.files[index]
	if !slot.inUse || slot.generation != id.generation() {
		return nil, fatcoreerrors.ErrInvalidFileDescriptor
	}
	return slot.handle, nil
}

// CloseFile frees id's slot, making it available for reuse under a new
// generation. The caller is responsible for flushing buffered data and
// writing back dirty metadata before calling this.
func (r *Registry) CloseFile(id ID) fatcoreerrors.DriverError {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := id.index()
	if index < 0 || index >= len(r.files) {
		return fatcoreerrors.ErrInvalidFileDescriptor
	}
	slot := &r.files[index]
	if !slot.inUse || slot.generation != id.generation() {
		return fatcoreerrors.ErrInvalidFileDescriptor
	}
	slot.inUse = false
	slot.handle = nil
	r.freeFiles = append(r.freeFiles, index)
	return nil
}

// CountOpenFiles returns the number of currently-open file handles, used by
// the volume layer's unmount check (spec's FilesOpen guard).
func (r *Registry) CountOpenFiles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files) - len(r.freeFiles)
}

// IsFileOpen reports whether any currently-open file handle was opened from
// the directory entry at (parentCluster, dirEntryPos), used to reject
// Remove/Rename of a file that's still open elsewhere (spec §4.7).
func (r *Registry) IsFileOpen(parentCluster fat.ClusterID, dirEntryPos int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.files {
		slot := &r.files[i]
		if slot.inUse && slot.handle.ParentCluster == parentCluster && slot.handle.DirEntryPos == dirEntryPos {
			return true
		}
	}
	return false
}

// OpenDir allocates a slot for h and returns its identity.
func (r *Registry) OpenDir(h *Dir) (ID, fatcoreerrors.DriverError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.freeDirs) == 0 {
		return 0, fatcoreerrors.ErrTooManyOpenFiles
	}
	index := r.freeDirs[len(r.freeDirs)-1]
	r.freeDirs = r.freeDirs[:len(r.freeDirs)-1]

	slot := &r.dirs[index]
	slot.generation++
	slot.inUse = true
	h.lock = NewReentrantLock()
	slot.handle = h
	return makeID(index, slot.generation), nil
}

// GetDir resolves id to its live Dir handle.
func (r *Registry) GetDir(id ID) (*Dir, fatcoreerrors.DriverError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := id.index()
	if index < 0 || index >= len(r.dirs) {
		return nil, fatcoreerrors.ErrInvalidFileDescriptor
	}
	slot := &r.dirs[index]
	if !slot.inUse || slot.generation != id.generation() {
		return nil, fatcoreerrors.ErrInvalidFileDescriptor
	}
	return slot.handle, nil
}

// CloseDir frees id's slot.
func (r *Registry) CloseDir(id ID) fatcoreerrors.DriverError {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := id.index()
	if index < 0 || index >= len(r.dirs) {
		return fatcoreerrors.ErrInvalidFileDescriptor
	}
	slot := &r.dirs[index]
	if !slot.inUse || slot.generation != id.generation() {
		return fatcoreerrors.ErrInvalidFileDescriptor
	}
	slot.inUse = false
	slot.handle = nil
	r.freeDirs = append(r.freeDirs, index)
	return nil
}

// CountOpenDirs returns the number of currently-open directory handles.
func (r *Registry) CountOpenDirs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dirs) - len(r.freeDirs)
}

// FileLock returns h's per-handle recursive lock (spec §4.7's optional
// per-handle lock feature, item 4 in the §5 lock hierarchy).
func (h *File) FileLock() *ReentrantLock { return h.lock }

// DirLock returns h's per-handle recursive lock.
func (h *Dir) DirLock() *ReentrantLock { return h.lock }
