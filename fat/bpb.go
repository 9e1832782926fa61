// Package fat implements the FAT12/16/32 on-disk structures: the boot
// sector / BIOS Parameter Block, and the file allocation table itself.
// Grounded on the teacher's drivers/fat/common.go and fat32.go.
package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	fatcoreerrors "github.com/dargueta/fatcore/errors"
)

// Attribute flags for a directory entry, per spec §6.2.
const (
	AttrReadOnly = 1 << iota
	AttrHidden
	AttrSystem
	AttrVolumeLabel
	AttrDirectory
	AttrArchived
	AttrDevice
	AttrReserved

	// AttrLongName is the combination of flags (read-only | hidden | system
	// | volume-label) used to mark a directory entry as an LFN fragment
	// rather than an ordinary 8.3 entry.
	AttrLongName = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel
)

// DirentSize is the fixed size in bytes of one 32-byte directory entry
// slot, whether it holds a short-name entry or an LFN fragment.
const DirentSize = 32

// SectorID identifies a sector by its offset from the start of the volume
// (not the whole device -- a volume may be one of several partitions).
type SectorID uint64

// ClusterID identifies a cluster within a volume's data region. Clusters 0
// and 1 are reserved; the data region begins at cluster 2, per spec §6.1.
type ClusterID uint32

const (
	// FirstDataCluster is the lowest valid cluster number.
	FirstDataCluster ClusterID = 2
)

// RawBootSectorWithBPB is the byte-exact on-disk layout of the BIOS
// Parameter Block common to FAT12, FAT16, and FAT32, decoded with
// binary.Read the same way the teacher does it. FAT32-only fields (the
// 32-bit sectors-per-FAT and beyond) are read separately, since they
// don't exist at all on FAT12/16 media.
type RawBootSectorWithBPB struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	totalSectors16    uint16
	Media             uint8
	sectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	totalSectors32    uint32
}

// BootSector is the decoded, derived-field-enriched form of the BPB used
// throughout the rest of the module, equivalent to the teacher's
// FATBootSector.
type BootSector struct {
	RawBootSectorWithBPB
	SectorsPerFAT     uint
	TotalFATSectors   uint
	RootDirSectors    uint
	BytesPerCluster   uint
	TotalClusters     uint
	TotalDataSectors  uint
	TotalSectors      uint
	FirstDataSector   SectorID
	FATVersion        int
	DirentsPerCluster int

	// FAT32-only fields; zero on FAT12/16.
	FAT32RootCluster   ClusterID
	FAT32FSInfoSector  uint16
	FAT32BackupBootSec uint16
}

// DetermineFATVersion classifies a volume as FAT12, FAT16, or FAT32 purely
// from its cluster count, per Microsoft's FAT spec: this is the only
// correct way to tell the variants apart, since nothing else on disk
// reliably distinguishes them.
func DetermineFATVersion(totalClusters uint) int {
	if totalClusters < 4085 {
		return 12
	}
	if totalClusters < 65525 {
		return 16
	}
	return 32
}

// NewBootSectorFromStream reads and validates a boot sector from the start
// of a volume, deriving every field needed to locate the FAT, the root
// directory, and the data region.
func NewBootSectorFromStream(reader io.Reader) (*BootSector, fatcoreerrors.DriverError) {
	rawHeader := RawBootSectorWithBPB{}
	if err := binary.Read(reader, binary.LittleEndian, &rawHeader); err != nil {
		return nil, fatcoreerrors.ErrDeviceIO.WrapError(err)
	}

	var sectorsPerFAT32 uint32
	if err := binary.Read(reader, binary.LittleEndian, &sectorsPerFAT32); err != nil {
		return nil, fatcoreerrors.ErrDeviceIO.WrapError(err)
	}

	var sectorsPerFAT uint
	if rawHeader.sectorsPerFAT16 != 0 {
		sectorsPerFAT = uint(rawHeader.sectorsPerFAT16)
	} else {
		sectorsPerFAT = uint(sectorsPerFAT32)
	}

	var totalSectors uint
	if rawHeader.totalSectors16 != 0 {
		totalSectors = uint(rawHeader.totalSectors16)
	} else {
		totalSectors = uint(rawHeader.totalSectors32)
	}

	rootDirSectors := uint(
		(uint32(rawHeader.RootEntryCount)*DirentSize + uint32(rawHeader.BytesPerSector) - 1) /
			uint32(rawHeader.BytesPerSector))

	totalFATSectors := uint(rawHeader.NumFATs) * sectorsPerFAT
	dataSectors := totalSectors - uint(rawHeader.ReservedSectors) - totalFATSectors - rootDirSectors
	if rawHeader.SectorsPerCluster == 0 {
		return nil, fatcoreerrors.ErrVolumeCorrupt.WithMessage("SectorsPerCluster is zero")
	}
	totalClusters := dataSectors / uint(rawHeader.SectorsPerCluster)

	switch rawHeader.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return nil, fatcoreerrors.ErrVolumeCorrupt.WithMessage(fmt.Sprintf(
			"bad value for BytesPerSector: need 512, 1024, 2048, or 4096, got %d",
			rawHeader.BytesPerSector))
	}

	switch rawHeader.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return nil, fatcoreerrors.ErrVolumeCorrupt.WithMessage(fmt.Sprintf(
			"SectorsPerCluster must be a power of 2 in 1-128, got %d",
			rawHeader.SectorsPerCluster))
	}

	fatVersion := DetermineFATVersion(totalClusters)
	if fatVersion == 32 && rootDirSectors != 0 {
		return nil, fatcoreerrors.ErrVolumeCorrupt.WithMessage(fmt.Sprintf(
			"RootDirectorySectors is nonzero for a FAT32 volume: %d", rootDirSectors))
	}

	bytesPerCluster := uint(rawHeader.BytesPerSector) * uint(rawHeader.SectorsPerCluster)
	if bytesPerCluster > 32768 {
		return nil, fatcoreerrors.ErrVolumeCorrupt.WithMessage(fmt.Sprintf(
			"BytesPerCluster cannot exceed 32768 but got %d", bytesPerCluster))
	}

	bs := &BootSector{
		RawBootSectorWithBPB: rawHeader,
		SectorsPerFAT:        sectorsPerFAT,
		TotalFATSectors:      totalFATSectors,
		RootDirSectors:       rootDirSectors,
		BytesPerCluster:      bytesPerCluster,
		TotalClusters:        totalClusters,
		TotalDataSectors:     dataSectors,
		TotalSectors:         totalSectors,
		FirstDataSector:      SectorID(uint(rawHeader.ReservedSectors) + totalFATSectors + rootDirSectors),
		FATVersion:           fatVersion,
		DirentsPerCluster:    int(bytesPerCluster) / DirentSize,
	}

	if fatVersion == 32 {
		var fat32Fields RawFAT32Extension
		if err := binary.Read(reader, binary.LittleEndian, &fat32Fields); err != nil {
			return nil, fatcoreerrors.ErrDeviceIO.WrapError(err)
		}
		bs.FAT32RootCluster = ClusterID(fat32Fields.RootCluster)
		bs.FAT32FSInfoSector = fat32Fields.FSInfoSector
		bs.FAT32BackupBootSec = fat32Fields.BackupBootSector
	}

	return bs, nil
}

// RawFAT32Extension is the portion of the BPB that exists only on FAT32
// media, immediately following the 32-bit sectors-per-FAT field read
// separately in NewBootSectorFromStream.
type RawFAT32Extension struct {
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	_                [12]byte // reserved
	DriveNumber      uint8
	_                uint8 // reserved1
	BootSignature    uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	FSType           [8]byte
}

// SectorToCluster returns the cluster containing sector, given the boot
// sector's layout.
func (bs *BootSector) SectorToCluster(sector SectorID) ClusterID {
	dataSector := uint(sector) - uint(bs.FirstDataSector)
	return ClusterID(dataSector/uint(bs.SectorsPerCluster)) + FirstDataCluster
}

// ClusterToFirstSector returns the first sector belonging to cluster.
func (bs *BootSector) ClusterToFirstSector(cluster ClusterID) SectorID {
	offset := uint(cluster-FirstDataCluster) * uint(bs.SectorsPerCluster)
	return bs.FirstDataSector + SectorID(offset)
}

// Encode serializes bs back into a BytesPerSector-sized boot sector image,
// the write-side counterpart of NewBootSectorFromStream, used when
// formatting a fresh volume.
func (bs *BootSector) Encode() ([]byte, fatcoreerrors.DriverError) {
	buf := new(bytes.Buffer)

	raw := bs.RawBootSectorWithBPB
	if raw.JmpBoot == ([3]byte{}) {
		raw.JmpBoot = [3]byte{0xEB, 0x00, 0x90}
	}

	if bs.TotalSectors < 1<<16 {
		raw.totalSectors16 = uint16(bs.TotalSectors)
		raw.totalSectors32 = 0
	} else {
		raw.totalSectors16 = 0
		raw.totalSectors32 = uint32(bs.TotalSectors)
	}

	if bs.FATVersion != 32 {
		raw.sectorsPerFAT16 = uint16(bs.SectorsPerFAT)
	} else {
		raw.sectorsPerFAT16 = 0
	}

	if err := binary.Write(buf, binary.LittleEndian, &raw); err != nil {
		return nil, fatcoreerrors.ErrDeviceIO.WrapError(err)
	}

	var sectorsPerFAT32 uint32
	if bs.FATVersion == 32 {
		sectorsPerFAT32 = uint32(bs.SectorsPerFAT)
	}
	if err := binary.Write(buf, binary.LittleEndian, sectorsPerFAT32); err != nil {
		return nil, fatcoreerrors.ErrDeviceIO.WrapError(err)
	}

	if bs.FATVersion == 32 {
		ext := RawFAT32Extension{
			RootCluster:      uint32(bs.FAT32RootCluster),
			FSInfoSector:     bs.FAT32FSInfoSector,
			BackupBootSector: bs.FAT32BackupBootSec,
			BootSignature:    0x29,
		}
		if err := binary.Write(buf, binary.LittleEndian, &ext); err != nil {
			return nil, fatcoreerrors.ErrDeviceIO.WrapError(err)
		}
	}

	sectorSize := int(bs.BytesPerSector)
	out := make([]byte, sectorSize)
	copy(out, buf.Bytes())
	out[bootSigOffset] = 0x55
	out[bootSigOffset+1] = 0xAA
	return out, nil
}

// bootSigOffset is the fixed byte offset of the 0x55 0xAA boot signature,
// independent of sector size.
const bootSigOffset = 510
