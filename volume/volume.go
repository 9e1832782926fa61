// Package volume ties the device, buffer pool, FAT table, and directory
// layers together into one mounted FAT12/16/32 volume: MBR partition
// lookup, BPB validation, the mount/format/check lifecycle, and volume
// label access. Grounded on the teacher's driver.BaseDriver for the
// lifecycle shape (construct once, operate through it) and
// drivers/fat/common.go for the BPB-derived layout math this package
// drives the buffer pool and cluster-chain layers with.
package volume

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dargueta/fatcore"
	"github.com/dargueta/fatcore/buffer"
	"github.com/dargueta/fatcore/clusterchain"
	"github.com/dargueta/fatcore/device"
	"github.com/dargueta/fatcore/dirent"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
	"github.com/dargueta/fatcore/journal"
	"github.com/hashicorp/go-multierror"
)

// journalEntryName is the fixed root-directory name the journal's cluster
// chain is filed under, per spec §4.6.
const journalEntryName = "JOURNAL.SYS"

// defaultPoolSize is how many sector buffers a mounted volume's private
// pool carries -- sized generously above spec §4.2's "at least a couple of
// buffers" floor so a directory scan and a concurrent FAT walk don't starve
// each other under ErrNoBufferAvailable.
const defaultPoolSize = 16

// poolSectorIO adapts a buffer.Pool plus the device it's backed by into the
// clusterchain.SectorReadWriter contract, translating volume-relative
// sector numbers into absolute device sectors via partitionStart.
type poolSectorIO struct {
	pool           *buffer.Pool
	volID          buffer.VolumeID
	sectorSize     uint
	partitionStart fat.SectorID
	dev            *device.Device
}

func (s *poolSectorIO) fetch(volID buffer.VolumeID, sectorNbr uint64, buf []byte) fatcore.DriverError {
	return s.dev.ReadSectors(device.PhysicalBlock(uint64(s.partitionStart)+sectorNbr), 1, buf)
}

func (s *poolSectorIO) flush(volID buffer.VolumeID, sectorNbr uint64, buf []byte) fatcore.DriverError {
	return s.dev.WriteSectors(device.PhysicalBlock(uint64(s.partitionStart)+sectorNbr), 1, buf)
}

func (s *poolSectorIO) ReadSectors(sector fat.SectorID, count uint, dst []byte) fatcoreerrors.DriverError {
	for i := uint(0); i < count; i++ {
		buf, err := s.pool.Acquire()
		if err != nil {
			return err
		}
		if err := s.pool.Load(buf, s.volID, uint64(sector)+uint64(i), buffer.SectorTypeFile, true); err != nil {
			_ = s.pool.Release(buf)
			return err
		}
		copy(dst[i*s.sectorSize:(i+1)*s.sectorSize], buf.Data())
		if err := s.pool.Release(buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *poolSectorIO) WriteSectors(sector fat.SectorID, count uint, src []byte) fatcoreerrors.DriverError {
	for i := uint(0); i < count; i++ {
		buf, err := s.pool.Acquire()
		if err != nil {
			return err
		}
		if err := s.pool.Load(buf, s.volID, uint64(sector)+uint64(i), buffer.SectorTypeFile, false); err != nil {
			_ = s.pool.Release(buf)
			return err
		}
		copy(buf.Data(), src[i*s.sectorSize:(i+1)*s.sectorSize])
		s.pool.MarkDirty(buf)
		if err := s.pool.Release(buf); err != nil {
			return err
		}
	}
	return nil
}

// Volume is one mounted FAT12/16/32 file system: the decoded boot sector,
// the in-memory FAT table, the root directory, and (if enabled) the
// write-ahead journal, all addressed relative to the partition it lives in.
type Volume struct {
	Device         *device.Device
	PartitionStart fat.SectorID
	BootSector     *fat.BootSector
	Table          *fat.Table
	Stream         *clusterchain.Stream
	RootDir        *dirent.Directory
	Journal        *journal.Journal
	AccessMode     fatcore.MountFlags

	sio       *poolSectorIO
	pool      *buffer.Pool
	stats     fatcore.Stats
	rootEntry int64 // byte offset of the journal's short-name slot, -1 if absent
}

// SetStats attaches an observer to be notified of buffer, allocation, and
// journal-replay events across every subsystem this volume owns. Passing
// nil restores the default no-op observer. Journal replay runs inside
// Mount, before the caller holds the Volume, so an observer attached here
// never receives JournalReplayed.
func (v *Volume) SetStats(stats fatcore.Stats) {
	if stats == nil {
		stats = fatcore.NoopStats{}
	}
	v.stats = stats
	v.pool.SetStats(stats)
	v.Table.SetStats(stats)
}

// Mount validates dev's boot sector (at the given partition, or the whole
// device if partitionNbr is negative -- a "superfloppy" with no MBR) and
// brings up the in-memory state needed to operate on it.
func Mount(dev *device.Device, partitionNbr int, mountFlags fatcore.MountFlags) (*Volume, fatcoreerrors.DriverError) {
	if dev.State() == device.StateClosed {
		if err := dev.Open(); err != nil {
			return nil, err
		}
	}

	partitionStart := fat.SectorID(0)
	if partitionNbr >= 0 {
		sectorSize := dev.Geometry().SectorSize
		mbrBuf := make([]byte, sectorSize)
		if err := dev.ReadSectors(0, 1, mbrBuf); err != nil {
			return nil, err
		}
		rawPartitions, err := ParseMBR(mbrBuf)
		if err != nil {
			return nil, err
		}
		partitions := FATPartitions(rawPartitions)
		if partitionNbr >= len(partitions) {
			return nil, fatcoreerrors.ErrInvalidArgument.WithMessage("partition number out of range")
		}
		partitionStart = partitions[partitionNbr].StartSector
	}

	sectorSize := dev.Geometry().SectorSize
	bootBuf := make([]byte, sectorSize)
	if err := dev.ReadSectors(device.PhysicalBlock(partitionStart), 1, bootBuf); err != nil {
		return nil, err
	}

	bs, err := fat.NewBootSectorFromStream(bytes.NewReader(bootBuf))
	if err != nil {
		return nil, err
	}

	sio := &poolSectorIO{sectorSize: uint(bs.BytesPerSector), partitionStart: partitionStart, dev: dev}
	sio.pool = buffer.NewPool(uint(bs.BytesPerSector), defaultPoolSize, sio.fetch, sio.flush)

	fatBytes := make([]byte, bs.SectorsPerFAT*uint(bs.BytesPerSector))
	if err := sio.ReadSectors(fat.SectorID(bs.ReservedSectors), bs.SectorsPerFAT, fatBytes); err != nil {
		return nil, err
	}
	table := fat.NewTable(fatBytes, bs.FATVersion)

	stream := clusterchain.NewStream(sio, uint(bs.SectorsPerCluster), bs.BytesPerCluster, bs.FirstDataSector, bs.TotalClusters)

	var rootReader *clusterchain.ChainReader
	var rootWriter *clusterchain.ChainWriter
	if bs.FATVersion == 32 {
		rootWriter, err = clusterchain.NewChainWriter(stream, table, bs.FAT32RootCluster)
		if err != nil {
			return nil, err
		}
		rootReader = &rootWriter.ChainReader
	} else {
		rootStart := fat.SectorID(uint(bs.ReservedSectors) + bs.TotalFATSectors)
		rootStream := clusterchain.NewFixedRegionStream(sio, rootStart, bs.RootDirSectors, uint(bs.BytesPerSector))
		rootReader = clusterchain.NewFixedChainReader(rootStream)
		rootWriter = clusterchain.NewFixedChainWriter(rootStream)
	}
	rootDir := dirent.NewDirectory(rootReader, rootWriter)

	v := &Volume{
		Device:         dev,
		PartitionStart: partitionStart,
		BootSector:     bs,
		Table:          table,
		Stream:         stream,
		RootDir:        rootDir,
		AccessMode:     mountFlags,
		sio:            sio,
		pool:           sio.pool,
		stats:          fatcore.NoopStats{},
		rootEntry:      -1,
	}

	if err := v.attachJournal(); err != nil {
		return nil, err
	}

	dev.MarkMounted()
	return v, nil
}

// attachJournal looks for the fixed journal entry in the root directory. If
// present, its chain is opened and any records left from a prior session
// are replayed before normal operation proceeds, per spec §4.6's mount-time
// replay guarantee.
func (v *Volume) attachJournal() fatcoreerrors.DriverError {
	entry, offset, err := v.RootDir.Lookup(journalEntryName)
	if err != nil {
		if fatcoreerrors.ErrNotFound.IsSameError(err) {
			return nil
		}
		return err
	}
	v.rootEntry = offset

	chainWriter, err := clusterchain.NewChainWriter(v.Stream, v.Table, entry.FirstCluster)
	if err != nil {
		return err
	}

	j := journal.New(chainWriter, entry.Size() > 0)
	v.Journal = j
	if entry.Size() == 0 {
		return nil
	}

	applier := &volumeApplier{volume: v}
	replayed, rerr := journal.Replay(&chainReaderAt{chainWriter}, entry.Size(), applier)
	if rerr != nil {
		return rerr
	}
	v.stats.JournalReplayed(replayed)
	j.ClearReset()
	return nil
}

// chainReaderAt adapts a *clusterchain.ChainWriter's ReadAt (inherited from
// its embedded ChainReader) to the io.ReaderAt shape journal.Replay wants.
type chainReaderAt struct {
	*clusterchain.ChainWriter
}

func (c *chainReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.ChainWriter.ReadAt(p, off)
	if err != nil {
		return n, err
	}
	return n, nil
}

// volumeApplier applies replayed journal records to this volume's on-disk
// state. Each Apply call must be idempotent, per spec §4.6.
type volumeApplier struct {
	volume *Volume
}

func (a *volumeApplier) Apply(r journal.Record) fatcoreerrors.DriverError {
	switch r.Kind {
	case journal.RecordEnterEntryCreate, journal.RecordEnterEntryUpdate:
		// The journal is physiological, not physical: it records where a
		// write lands, not the bytes it wrote. There's no content to redo
		// here, only the location -- and if the directory write itself
		// didn't land, the crashed create/update simply never happened,
		// which is an acceptable outcome (the caller never saw success).
		// Treated as already-applied, same rationale as cluster-chain
		// allocation below.
		return nil
	case journal.RecordEnterEntryDelete:
		dir, derr := a.volume.dirForCluster(fat.ClusterID(r.ParentDirPos))
		if derr != nil {
			return derr
		}
		if err := dir.MarkRangeDeleted(r.EntryRangeLo, r.EntryRangeHi); err != nil {
			return err
		}
		if r.FreedChainFirstCluster != 0 {
			return a.volume.Table.Free(r.FreedChainFirstCluster)
		}
		return nil
	case journal.RecordEnterClusChainAlloc:
		// The allocation itself already landed in the FAT (that's what's
		// being journaled); replay here is a no-op unless the FAT write
		// itself didn't complete, which Table.Get will reveal as still-free
		// entries. A from-scratch redo isn't safe without the original
		// chain linkage, so this is treated as already-applied.
		return nil
	case journal.RecordEnterClusChainDel:
		return a.volume.Table.Free(r.FreedChainFirstCluster)
	default:
		return nil
	}
}

// dirForCluster opens the directory rooted at cluster for journal-replay
// purposes: cluster 0 means this volume's root directory (which, on
// FAT12/16, lives in the fixed region rather than a cluster chain), any
// other value is a subdirectory's first cluster.
func (v *Volume) dirForCluster(cluster fat.ClusterID) (*dirent.Directory, fatcoreerrors.DriverError) {
	if cluster == 0 {
		return v.RootDir, nil
	}
	w, err := clusterchain.NewChainWriter(v.Stream, v.Table, cluster)
	if err != nil {
		return nil, err
	}
	return dirent.NewDirectory(&w.ChainReader, w), nil
}

// Unmount flushes every dirty sector buffer and the mirrored FAT copies
// back to the device.
func (v *Volume) Unmount() fatcoreerrors.DriverError {
	if err := v.flushFATCopies(); err != nil {
		return err
	}
	return v.pool.FlushAll()
}

// flushFATCopies writes the in-memory FAT table back to every one of the
// volume's NumFATs on-disk copies, keeping them mirrored as most FAT
// drivers do.
func (v *Volume) flushFATCopies() fatcoreerrors.DriverError {
	raw := v.Table.Bytes()
	for i := uint8(0); i < v.BootSector.NumFATs; i++ {
		start := fat.SectorID(uint(v.BootSector.ReservedSectors) + uint(i)*v.BootSector.SectorsPerFAT)
		if err := v.sio.WriteSectors(start, v.BootSector.SectorsPerFAT, raw); err != nil {
			return err
		}
	}
	return nil
}

// Label returns the volume label, read from the volume-label entry in the
// root directory on FAT12, FAT16 and FAT32 alike.
func (v *Volume) Label() (string, fatcoreerrors.DriverError) {
	entry, _, err := v.RootDir.FindVolumeLabel()
	if err != nil {
		if fatcoreerrors.ErrNotFound.IsSameError(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimRight(entry.Name(), " "), nil
}

// SetLabel validates and writes a new volume label. Per the 8.3 charset
// (no lowercase, no punctuation outside the allowed set), label is
// uppercased and length-checked before being written as an 11-byte
// volume-label directory entry.
func (v *Volume) SetLabel(label string) fatcoreerrors.DriverError {
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) > 11 {
		return fatcoreerrors.ErrLabelInvalid.WithMessage("label longer than 11 characters")
	}
	for _, r := range label {
		if !isValidShortNameRune(r) {
			return fatcoreerrors.ErrLabelInvalid.WithMessage("label contains a character outside the 8.3 charset")
		}
	}

	existing, _ := v.Label()
	if existing != "" {
		if err := v.RootDir.Delete(existing); err != nil && !fatcoreerrors.ErrNotFound.IsSameError(err) {
			return err
		}
	}

	entry := &dirent.Entry{AttributeFlags: int(fat.AttrVolumeLabel), LastModified: time.Now()}
	_, werr := v.RootDir.Place(label, entry)
	return werr
}

func isValidShortNameRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == ' ':
		return true
	case strings.ContainsRune("!#$%&'()-@^_`{}~", r):
		return true
	default:
		return false
	}
}

// FSStat reports aggregate space usage, grounded on the teacher's
// DriverImplementation.FSStat contract (fatcore.FSStat is the same type the
// root package's public API returns).
func (v *Volume) FSStat() (fatcore.FSStat, fatcoreerrors.DriverError) {
	total := v.BootSector.TotalClusters
	free := uint64(0)
	for c := fat.FirstDataCluster; c < fat.ClusterID(total)+fat.FirstDataCluster; c++ {
		value, err := v.Table.Get(c)
		if err != nil {
			return fatcore.FSStat{}, err
		}
		if value == 0 {
			free++
		}
	}

	label, _ := v.Label()
	return fatcore.FSStat{
		BlockSize:       int64(v.BootSector.BytesPerCluster),
		TotalBlocks:     uint64(total),
		BlocksFree:      free,
		BlocksAvailable: free,
		MaxNameLength:   255,
		Label:           label,
	}, nil
}

// Check walks the FAT and root directory looking for structural
// inconsistencies, collecting every violation found instead of stopping at
// the first one, per spec §8's invariant-checking guidance.
func (v *Volume) Check() error {
	var result *multierror.Error

	count := fat.ClusterID(v.Table.EntryCount())
	for c := fat.FirstDataCluster; c < fat.ClusterID(count); c++ {
		value, err := v.Table.Get(c)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if value != 0 && !v.Table.IsEndOfChain(value) && !v.Table.IsBadCluster(value) && !v.Table.IsValidCluster(value) {
			result = multierror.Append(result, fatcoreerrors.ErrVolumeCorrupt.WithMessage(
				"FAT entry references an out-of-range cluster"))
		}
	}

	entries, err := v.RootDir.List()
	if err != nil {
		result = multierror.Append(result, err)
	} else {
		for _, e := range entries {
			if e.FirstCluster != 0 && !v.Table.IsValidCluster(e.FirstCluster) {
				result = multierror.Append(result, fatcoreerrors.ErrVolumeCorrupt.WithMessage(
					"directory entry "+e.Name()+" has an invalid first cluster"))
			}
		}
	}

	return result.ErrorOrNil()
}

// FormatParams configures a brand-new volume's on-disk layout, mirroring
// the knobs soypat-fat's FormatConfig exposes (label, cluster size, FAT
// variant) plus the BPB fields a from-scratch FAT12/16/32 volume needs.
// Zero values for NumFATs, ReservedSectors, and RootEntryCount pick the
// same conventional defaults mkfs.fat does.
type FormatParams struct {
	Label             string
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16 // FAT12/16 only; ignored (forced 0) when Version is 32
	Version           int    // 12, 16, or 32; 0 picks whatever the geometry yields
	Media             uint8
}

// Format writes a brand-new FAT12/16/32 volume -- boot sector, every FAT
// copy, and an empty root directory -- starting at the first sector of dev,
// then mounts the result. Only whole-device ("superfloppy") volumes are
// supported; a partitioned layout must be created by writing an MBR and
// calling Mount directly once each partition's region has been formatted.
func Format(dev *device.Device, totalSectors uint, params FormatParams, mountFlags fatcore.MountFlags) (*Volume, fatcoreerrors.DriverError) {
	if dev.State() == device.StateClosed {
		if err := dev.Open(); err != nil {
			return nil, err
		}
	}

	if params.BytesPerSector == 0 {
		params.BytesPerSector = 512
	}
	if params.SectorsPerCluster == 0 {
		params.SectorsPerCluster = 1
	}
	switch params.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, fatcoreerrors.ErrInvalidArgument.WithMessage(
			"BytesPerSector must be 512, 1024, 2048, or 4096")
	}
	switch params.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return nil, fatcoreerrors.ErrInvalidArgument.WithMessage(
			"SectorsPerCluster must be a power of 2 in 1-128")
	}
	if params.NumFATs == 0 {
		params.NumFATs = 2
	}
	if params.ReservedSectors == 0 {
		params.ReservedSectors = 1
	}

	// A requested Version of 0 means "pick whatever the geometry actually
	// yields" (mkfs.fat's own default behavior): start from a FAT32 guess
	// and re-derive the layout against whatever width DetermineFATVersion
	// reports back, since root-dir sizing and FAT entry width both depend
	// on the version being settled first. An explicitly requested version
	// that doesn't match the geometry is still a hard error.
	requestedVersion := params.Version
	version := requestedVersion
	if version == 0 {
		version = 32
	}

	var rootEntryCount uint16
	var sectorsPerFAT, totalFATSectors, rootDirSectors, dataSectors, totalClusters uint
	var actualVersion int

	for i := 0; i < 4; i++ {
		rootEntryCount = params.RootEntryCount
		if version == 32 {
			rootEntryCount = 0
		} else if rootEntryCount == 0 {
			rootEntryCount = 224
		}
		rootDirSectors = uint(uint32(rootEntryCount)*fat.DirentSize+uint32(params.BytesPerSector)-1) /
			uint(params.BytesPerSector)

		var cerr fatcoreerrors.DriverError
		sectorsPerFAT, cerr = computeSectorsPerFAT(
			totalSectors, uint(params.ReservedSectors), uint(params.NumFATs), rootDirSectors,
			uint(params.SectorsPerCluster), uint(params.BytesPerSector), version)
		if cerr != nil {
			return nil, cerr
		}

		totalFATSectors = uint(params.NumFATs) * sectorsPerFAT
		dataSectors = totalSectors - uint(params.ReservedSectors) - totalFATSectors - rootDirSectors
		totalClusters = dataSectors / uint(params.SectorsPerCluster)
		actualVersion = fat.DetermineFATVersion(totalClusters)

		if actualVersion == version {
			break
		}
		if requestedVersion != 0 {
			return nil, fatcoreerrors.ErrInvalidArgument.WithMessage(fmt.Sprintf(
				"requested a FAT%d layout but %d total sectors yields %d clusters, which is a FAT%d volume",
				requestedVersion, totalSectors, totalClusters, actualVersion))
		}
		version = actualVersion
	}

	media := params.Media
	if media == 0 {
		media = 0xF8
	}

	var oemName [8]byte
	oemSrc := params.OEMName
	if oemSrc == "" {
		oemSrc = "FATCORE "
	}
	copy(oemName[:], oemSrc)

	bs := &fat.BootSector{
		RawBootSectorWithBPB: fat.RawBootSectorWithBPB{
			OEMName:           oemName,
			BytesPerSector:    params.BytesPerSector,
			SectorsPerCluster: params.SectorsPerCluster,
			ReservedSectors:   params.ReservedSectors,
			NumFATs:           params.NumFATs,
			RootEntryCount:    rootEntryCount,
			Media:             media,
			SectorsPerTrack:   63,
			NumHeads:          255,
		},
		SectorsPerFAT:     sectorsPerFAT,
		TotalFATSectors:   totalFATSectors,
		RootDirSectors:    rootDirSectors,
		BytesPerCluster:   uint(params.SectorsPerCluster) * uint(params.BytesPerSector),
		TotalClusters:     totalClusters,
		TotalDataSectors:  dataSectors,
		TotalSectors:      totalSectors,
		FirstDataSector:   fat.SectorID(uint(params.ReservedSectors) + totalFATSectors + rootDirSectors),
		FATVersion:        actualVersion,
		DirentsPerCluster: int(uint(params.SectorsPerCluster)*uint(params.BytesPerSector)) / fat.DirentSize,
	}
	if actualVersion == 32 {
		bs.FAT32RootCluster = fat.FirstDataCluster
	}

	bootBytes, encErr := bs.Encode()
	if encErr != nil {
		return nil, encErr
	}
	if err := dev.WriteSectors(0, 1, bootBytes); err != nil {
		return nil, err
	}

	fatBytes := make([]byte, sectorsPerFAT*uint(params.BytesPerSector))
	table := fat.NewTable(fatBytes, actualVersion)
	if err := table.Set(0, fat.ClusterID(media)|0xFFFFFF00); err != nil {
		return nil, err
	}
	if err := table.MarkEndOfChain(1); err != nil {
		return nil, err
	}
	if actualVersion == 32 {
		if err := table.MarkEndOfChain(bs.FAT32RootCluster); err != nil {
			return nil, err
		}
	}
	for i := uint8(0); i < params.NumFATs; i++ {
		start := device.PhysicalBlock(uint(params.ReservedSectors) + uint(i)*sectorsPerFAT)
		if err := dev.WriteSectors(start, sectorsPerFAT, fatBytes); err != nil {
			return nil, err
		}
	}

	if actualVersion != 32 {
		zeroed := make([]byte, rootDirSectors*uint(params.BytesPerSector))
		rootStart := device.PhysicalBlock(uint(params.ReservedSectors) + totalFATSectors)
		if err := dev.WriteSectors(rootStart, rootDirSectors, zeroed); err != nil {
			return nil, err
		}
	} else {
		zeroed := make([]byte, bs.BytesPerCluster)
		rootStart := device.PhysicalBlock(bs.ClusterToFirstSector(bs.FAT32RootCluster))
		if err := dev.WriteSectors(rootStart, uint(params.SectorsPerCluster), zeroed); err != nil {
			return nil, err
		}
	}

	v, mountErr := Mount(dev, -1, mountFlags)
	if mountErr != nil {
		return nil, mountErr
	}
	if params.Label != "" {
		if err := v.SetLabel(params.Label); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// computeSectorsPerFAT sizes the FAT the way mkfs.fat does: starting from a
// one-sector guess, repeatedly recompute the cluster count implied by that
// FAT size (which itself eats into the data region) until the guess stops
// changing.
func computeSectorsPerFAT(totalSectors, reservedSectors, numFATs, rootDirSectors, sectorsPerCluster, bytesPerSector uint, version int) (uint, fatcoreerrors.DriverError) {
	entryBits := uint(16)
	switch version {
	case 12:
		entryBits = 12
	case 32:
		entryBits = 32
	}

	fatSize := uint(1)
	for i := 0; i < 32; i++ {
		used := int64(reservedSectors) + int64(rootDirSectors) + int64(numFATs)*int64(fatSize)
		remaining := int64(totalSectors) - used
		if remaining <= 0 {
			return 0, fatcoreerrors.ErrInvalidArgument.WithMessage(
				"totalSectors is too small for the requested layout")
		}

		totalClusters := uint(remaining) / sectorsPerCluster
		entriesNeeded := totalClusters + uint(fat.FirstDataCluster)
		bytesNeeded := (entriesNeeded*entryBits + 7) / 8
		next := (bytesNeeded + bytesPerSector - 1) / bytesPerSector
		if next == 0 {
			next = 1
		}
		if next == fatSize {
			return fatSize, nil
		}
		fatSize = next
	}
	return fatSize, nil
}
