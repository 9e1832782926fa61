package fat

import (
	"github.com/dargueta/fatcore"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
)

// End-of-chain and bad-cluster sentinels per variant, per spec §6.2. Values
// are the canonical ones FAT implementations write (0xFF8+ / 0xFFF8+ /
// 0x0FFFFFF8+), matching what the teacher's IsEndOfChain would have
// checked had it been implemented.
const (
	eocFAT12 ClusterID = 0x0FF8
	badFAT12 ClusterID = 0x0FF7

	eocFAT16 ClusterID = 0xFFF8
	badFAT16 ClusterID = 0xFFF7

	eocFAT32 ClusterID = 0x0FFFFFF8
	badFAT32 ClusterID = 0x0FFFFFF7
	fat32Mask ClusterID = 0x0FFFFFFF
)

// Table is an in-memory view of one FAT, width-polymorphic over
// FAT12/16/32 entry packing. It operates on a caller-owned byte buffer
// (the volume package maps that buffer onto sector-buffer-pool slots); the
// table itself does no I/O.
//
// freeCount and allocHint are the persistent allocator state spec §3/§4.3
// call for: freeCount lets FSStat-style queries answer in O(1) instead of
// a full table scan, and allocHint is where the next AllocOne search
// resumes from, wrapping around the table instead of always restarting at
// FirstDataCluster (which would otherwise favor the low end of the table
// and never revisit clusters freed behind the hint until it wraps).
type Table struct {
	data      []byte
	version   int // 12, 16, or 32
	freeCount uint
	allocHint ClusterID
	stats     fatcore.Stats
}

// NewTable wraps raw FAT bytes (the full table, all SectorsPerFAT sectors
// of it) for entry-level access, scanning it once to seed the free-cluster
// count the allocator maintains incrementally from then on.
func NewTable(data []byte, version int) *Table {
	t := &Table{data: data, version: version, allocHint: FirstDataCluster, stats: fatcore.NoopStats{}}
	count := t.EntryCount()
	free := uint(0)
	for c := FirstDataCluster; c < ClusterID(count); c++ {
		v, err := t.Get(c)
		if err == nil && v == 0 {
			free++
		}
	}
	t.freeCount = free
	return t
}

// SetStats attaches an observer to be notified of cluster-allocation
// events. Passing nil restores the default no-op observer.
func (t *Table) SetStats(stats fatcore.Stats) {
	if stats == nil {
		stats = fatcore.NoopStats{}
	}
	t.stats = stats
}

// FreeClusterCount returns the number of clusters currently marked free,
// maintained incrementally by AllocOne/Free rather than rescanned each
// call.
func (t *Table) FreeClusterCount() uint { return t.freeCount }

// AllocationHint returns the cluster AllocOne will start searching from on
// its next call.
func (t *Table) AllocationHint() ClusterID { return t.allocHint }

// IsEndOfChain reports whether cluster marks the end of an allocation
// chain.
func (t *Table) IsEndOfChain(cluster ClusterID) bool {
	switch t.version {
	case 12:
		return cluster >= eocFAT12
	case 16:
		return cluster >= eocFAT16
	default:
		return (cluster & fat32Mask) >= eocFAT32
	}
}

// IsBadCluster reports whether cluster is marked as a bad block.
func (t *Table) IsBadCluster(cluster ClusterID) bool {
	switch t.version {
	case 12:
		return cluster == badFAT12
	case 16:
		return cluster == badFAT16
	default:
		return (cluster & fat32Mask) == badFAT32
	}
}

// IsValidCluster reports whether cluster is a legitimate allocatable data
// cluster (not free, not EOC, not a bad-block marker, not reserved).
func (t *Table) IsValidCluster(cluster ClusterID) bool {
	if cluster < FirstDataCluster {
		return false
	}
	if t.IsEndOfChain(cluster) || t.IsBadCluster(cluster) {
		return false
	}
	return true
}

// Bytes returns the table's raw backing buffer, ready to be written to
// every on-disk FAT copy.
func (t *Table) Bytes() []byte { return t.data }

// EntryCount returns how many FAT entries the buffer holds.
func (t *Table) EntryCount() uint {
	switch t.version {
	case 12:
		return uint(len(t.data)) * 2 / 3
	case 16:
		return uint(len(t.data)) / 2
	default:
		return uint(len(t.data)) / 4
	}
}

// Get returns the raw value stored at FAT entry index.
func (t *Table) Get(index ClusterID) (ClusterID, fatcoreerrors.DriverError) {
	switch t.version {
	case 12:
		return t.get12(index)
	case 16:
		return t.get16(index)
	default:
		return t.get32(index)
	}
}

// Set writes value into FAT entry index.
func (t *Table) Set(index ClusterID, value ClusterID) fatcoreerrors.DriverError {
	switch t.version {
	case 12:
		return t.set12(index, value)
	case 16:
		return t.set16(index, value)
	default:
		return t.set32(index, value)
	}
}

func (t *Table) checkIndex(index ClusterID) fatcoreerrors.DriverError {
	if index >= ClusterID(t.EntryCount()) {
		return fatcoreerrors.ErrFATEntryOutOfRange.WithMessage("FAT entry index out of range")
	}
	return nil
}

func (t *Table) get12(index ClusterID) (ClusterID, fatcoreerrors.DriverError) {
	if err := t.checkIndex(index); err != nil {
		return 0, err
	}
	offset := index + index/2
	packed := uint16(t.data[offset]) | uint16(t.data[offset+1])<<8
	if index%2 == 0 {
		return ClusterID(packed & 0x0FFF), nil
	}
	return ClusterID(packed >> 4), nil
}

func (t *Table) set12(index ClusterID, value ClusterID) fatcoreerrors.DriverError {
	if err := t.checkIndex(index); err != nil {
		return err
	}
	offset := index + index/2
	existing := uint16(t.data[offset]) | uint16(t.data[offset+1])<<8
	v := uint16(value) & 0x0FFF

	var packed uint16
	if index%2 == 0 {
		packed = (existing & 0xF000) | v
	} else {
		packed = (existing & 0x000F) | (v << 4)
	}
	t.data[offset] = byte(packed)
	t.data[offset+1] = byte(packed >> 8)
	return nil
}

func (t *Table) get16(index ClusterID) (ClusterID, fatcoreerrors.DriverError) {
	if err := t.checkIndex(index); err != nil {
		return 0, err
	}
	offset := index * 2
	return ClusterID(uint16(t.data[offset]) | uint16(t.data[offset+1])<<8), nil
}

func (t *Table) set16(index ClusterID, value ClusterID) fatcoreerrors.DriverError {
	if err := t.checkIndex(index); err != nil {
		return err
	}
	offset := index * 2
	t.data[offset] = byte(value)
	t.data[offset+1] = byte(value >> 8)
	return nil
}

func (t *Table) get32(index ClusterID) (ClusterID, fatcoreerrors.DriverError) {
	if err := t.checkIndex(index); err != nil {
		return 0, err
	}
	offset := index * 4
	v := uint32(t.data[offset]) | uint32(t.data[offset+1])<<8 |
		uint32(t.data[offset+2])<<16 | uint32(t.data[offset+3])<<24
	return ClusterID(v & uint32(fat32Mask)), nil
}

func (t *Table) set32(index ClusterID, value ClusterID) fatcoreerrors.DriverError {
	if err := t.checkIndex(index); err != nil {
		return err
	}
	offset := index * 4
	existingTop := uint32(t.data[offset+3]) & 0xF0 // preserve reserved top nibble
	v := uint32(value) & uint32(fat32Mask)
	t.data[offset] = byte(v)
	t.data[offset+1] = byte(v >> 8)
	t.data[offset+2] = byte(v >> 16)
	t.data[offset+3] = byte(v>>24) | byte(existingTop)
	return nil
}

// ListChain returns every cluster in the allocation chain starting at
// chainStart, in order, grounded on the teacher's listClusters. An invalid
// starting cluster is an error; a chain that reaches an invalid (not EOC)
// cluster returns the partial chain plus an error, since that's usually
// corruption worth surfacing to the caller rather than silently truncating.
func (t *Table) ListChain(chainStart ClusterID) ([]ClusterID, fatcoreerrors.DriverError) {
	if !t.IsValidCluster(chainStart) {
		return nil, fatcoreerrors.ErrInvalidCluster.WithMessage("invalid cluster cannot start a chain")
	}

	var chain []ClusterID
	current := chainStart
	for !t.IsEndOfChain(current) {
		chain = append(chain, current)

		next, err := t.Get(current)
		if err != nil {
			return chain, err
		}
		if !t.IsValidCluster(next) && !t.IsEndOfChain(next) {
			return chain, fatcoreerrors.ErrVolumeCorrupt.WithMessage(
				"cluster chain references invalid cluster")
		}
		current = next
	}
	return chain, nil
}

// ClusterAtIndex returns the `index`th cluster (0-based) in the chain
// starting at firstCluster, grounded on the teacher's getClusterInChain.
func (t *Table) ClusterAtIndex(firstCluster ClusterID, index uint) (ClusterID, fatcoreerrors.DriverError) {
	current := firstCluster
	for i := uint(0); i < index; i++ {
		next, err := t.Get(current)
		if err != nil {
			return 0, err
		}
		if t.IsEndOfChain(next) {
			return 0, fatcoreerrors.ErrInvalidCluster.WithMessage("cluster index out of bounds for chain")
		}
		if !t.IsValidCluster(next) {
			return 0, fatcoreerrors.ErrVolumeCorrupt.WithMessage("chain references invalid cluster")
		}
		current = next
	}
	return current, nil
}

// AllocOne finds and claims a single free cluster, marking it end-of-chain.
// The search starts at allocHint (initially FirstDataCluster, thereafter
// wherever the previous AllocOne left off) and wraps around to
// FirstDataCluster if it reaches the end of the table without finding one,
// so that clusters freed behind the hint are eventually revisited instead
// of requiring a full unwrap on every call; first-fit from there, since
// spec §4.3 doesn't mandate a particular allocation strategy.
func (t *Table) AllocOne() (ClusterID, fatcoreerrors.DriverError) {
	if t.freeCount == 0 {
		return 0, fatcoreerrors.ErrVolumeFull
	}

	count := ClusterID(t.EntryCount())
	start := t.allocHint
	if start < FirstDataCluster || start >= count {
		start = FirstDataCluster
	}

	for _, rng := range [2][2]ClusterID{{start, count}, {FirstDataCluster, start}} {
		for c := rng[0]; c < rng[1]; c++ {
			v, err := t.Get(c)
			if err != nil {
				return 0, err
			}
			if v == 0 {
				if err := t.markEOC(c); err != nil {
					return 0, err
				}
				t.freeCount--
				t.allocHint = c + 1
				t.stats.ClusterAllocated(uint64(c))
				return c, nil
			}
		}
	}
	return 0, fatcoreerrors.ErrVolumeFull
}

// MarkEndOfChain sets cluster c's entry to this table's end-of-chain
// sentinel, without otherwise touching the chain it belongs to. Used when
// truncating a chain to a new, shorter tail.
func (t *Table) MarkEndOfChain(c ClusterID) fatcoreerrors.DriverError {
	return t.markEOC(c)
}

func (t *Table) markEOC(c ClusterID) fatcoreerrors.DriverError {
	switch t.version {
	case 12:
		return t.Set(c, eocFAT12)
	case 16:
		return t.Set(c, eocFAT16)
	default:
		return t.Set(c, eocFAT32)
	}
}

// AllocChain allocates count new clusters and links them as a chain,
// returning the first cluster. If tailCluster is nonzero, the new chain is
// appended after it (Extend's implementation); otherwise a fresh chain is
// started.
func (t *Table) AllocChain(count uint, tailCluster ClusterID) (ClusterID, fatcoreerrors.DriverError) {
	if count == 0 {
		return 0, fatcoreerrors.ErrInvalidArgument.WithMessage("cannot allocate a zero-length chain")
	}

	first := ClusterID(0)
	prev := tailCluster
	for i := uint(0); i < count; i++ {
		next, err := t.AllocOne()
		if err != nil {
			return first, err
		}
		if first == 0 {
			first = next
		}
		if prev != 0 {
			if err := t.Set(prev, next); err != nil {
				return first, err
			}
		}
		prev = next
	}
	return first, nil
}

// Extend appends count new clusters to the chain ending at tailCluster,
// returning the first newly allocated cluster.
func (t *Table) Extend(tailCluster ClusterID, count uint) (ClusterID, fatcoreerrors.DriverError) {
	tailValue, err := t.Get(tailCluster)
	if err != nil {
		return 0, err
	}
	if !t.IsEndOfChain(tailValue) {
		return 0, fatcoreerrors.ErrInvalidCluster.WithMessage("tailCluster is not the end of its chain")
	}
	return t.AllocChain(count, tailCluster)
}

// Free releases every cluster in the chain starting at chainStart, setting
// each entry to 0.
func (t *Table) Free(chainStart ClusterID) fatcoreerrors.DriverError {
	chain, err := t.ListChain(chainStart)
	if err != nil && len(chain) == 0 {
		return err
	}
	for _, c := range chain {
		if serr := t.Set(c, 0); serr != nil {
			return serr
		}
		t.freeCount++
	}
	return nil
}
