package volume

import (
	"encoding/binary"

	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
	"golang.org/x/exp/slices"
)

// Master Boot Record layout constants, grounded on soypat-fat's internal/mbr
// package (bootstrapLen/pteOffset/bootSignatureOff arithmetic), adapted into
// a single read-only parse function instead of a byte-slice-backed type,
// since fatcore only needs the partition table, never the bootstrap code.
const (
	mbrSize           = 512
	partitionTableOff = 446
	partitionEntrySize = 16
	bootSignatureOff  = 510
	bootSignature     = 0xAA55
)

// PartitionType mirrors the well-known MBR partition type IDs relevant to
// FAT volumes.
type PartitionType byte

const (
	PartitionTypeEmpty    PartitionType = 0x00
	PartitionTypeFAT12    PartitionType = 0x01
	PartitionTypeFAT16    PartitionType = 0x04
	PartitionTypeExtended PartitionType = 0x05
	PartitionTypeFAT16B   PartitionType = 0x06
	PartitionTypeFAT32CHS PartitionType = 0x0B
	PartitionTypeFAT32LBA PartitionType = 0x0C
	PartitionTypeFAT16LBA PartitionType = 0x0E
)

// Partition is one decoded entry of an MBR's four-entry partition table.
type Partition struct {
	Bootable    bool
	Type        PartitionType
	StartSector fat.SectorID
	SectorCount uint32
}

// ParseMBR reads the four partition table entries out of a 512-byte boot
// sector. Entries with Type == PartitionTypeEmpty are unused slots.
func ParseMBR(sector []byte) ([4]Partition, fatcoreerrors.DriverError) {
	var out [4]Partition
	if len(sector) < mbrSize {
		return out, fatcoreerrors.ErrVolumeCorrupt.WithMessage("MBR sector shorter than 512 bytes")
	}

	signature := binary.LittleEndian.Uint16(sector[bootSignatureOff : bootSignatureOff+2])
	if signature != bootSignature {
		return out, fatcoreerrors.ErrInvalidFileSystemOnVolume.WithMessage("missing 0xAA55 boot signature")
	}

	for i := 0; i < 4; i++ {
		entry := sector[partitionTableOff+i*partitionEntrySize : partitionTableOff+(i+1)*partitionEntrySize]
		out[i] = Partition{
			Bootable:    entry[0] == 0x80,
			Type:        PartitionType(entry[4]),
			StartSector: fat.SectorID(binary.LittleEndian.Uint32(entry[8:12])),
			SectorCount: binary.LittleEndian.Uint32(entry[12:16]),
		}
	}
	return out, nil
}

// FATPartitions filters partitions down to the live, FAT-typed entries,
// drops exact duplicates (some partitioners stamp repeated entries into a
// backup MBR), and orders what's left by starting sector -- so a
// partition number passed to Mount addresses "the Nth FAT partition on the
// disk" rather than a raw, possibly-empty table slot index.
func FATPartitions(partitions [4]Partition) []Partition {
	out := make([]Partition, 0, len(partitions))
	for _, p := range partitions {
		if p.Type != PartitionTypeEmpty && p.Type.IsFATType() {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Partition) bool { return a.StartSector < b.StartSector })
	return slices.CompactFunc(out, func(a, b Partition) bool {
		return a.StartSector == b.StartSector && a.SectorCount == b.SectorCount
	})
}

// IsFATType reports whether t is one of the partition type IDs FAT12/16/32
// is commonly registered under.
func (t PartitionType) IsFATType() bool {
	switch t {
	case PartitionTypeFAT12, PartitionTypeFAT16, PartitionTypeFAT16B,
		PartitionTypeFAT32CHS, PartitionTypeFAT32LBA, PartitionTypeFAT16LBA:
		return true
	default:
		return false
	}
}
