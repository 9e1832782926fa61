// Package dirent implements FAT directory entries: the 32-byte short-name
// (8.3) entry format, its date/time packing, and the long-file-name (LFN)
// slot chains layered on top of it. Grounded on the teacher's
// drivers/fat/dirent.go.
package dirent

import (
	"encoding/binary"
	"os"
	"strings"
	"time"

	"github.com/dargueta/fatcore/fat"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
)

// Size is the size in bytes of one directory entry slot, matching
// fat.DirentSize.
const Size = fat.DirentSize

// deletedMarker is written to byte 0 of a short-name entry when the file it
// describes is deleted; 0x00 there instead means "never used, and every
// entry after this one in the cluster is also unused."
const deletedMarker = 0xE5

// kanjiEscapeByte is the on-disk stand-in when a Japanese filename's first
// byte really is 0xE5 -- kanji 0x5c5c happens to encode to that byte.
const kanjiEscapeByte = 0x05

// Raw is the on-disk 32-byte layout of a short-name directory entry.
type Raw struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeMillis uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// Entry is a directory entry in a friendlier representation: parsed
// timestamps, a decoded name (short name, or long name if an LFN chain
// preceded it), and the fields a caller actually wants.
type Entry struct {
	name           string
	ShortName11    [11]byte
	AttributeFlags int
	NTReserved     int
	Created        time.Time
	Deleted        time.Time
	LastAccessed   time.Time
	LastModified   time.Time
	FirstCluster   fat.ClusterID
	isDeleted      bool
	isFree         bool
	size           int64
	mode           os.FileMode
}

// DateFromInt converts a packed FAT date field into a time.Time.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := int(1980 + (value >> 9))
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateToInt packs a time.Time into a FAT date field.
func DateToInt(t time.Time) uint16 {
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	return uint16(year<<9) | uint16(t.Month())<<5 | uint16(t.Day())
}

// TimestampFromParts converts a FAT date/time/hundredths triple into a
// time.Time. timePart and hundredths may be zero if the field they come
// from doesn't exist on this entry (e.g. LastAccessedDate has no time
// component).
func TimestampFromParts(datePart uint16, timePart uint16, hundredths uint8) time.Time {
	d := DateFromInt(datePart)

	seconds := int(timePart&0x001f) * 2
	if hundredths >= 100 {
		seconds++
		hundredths -= 100
	}
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	nanoseconds := int(hundredths) * 10000000

	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, nanoseconds, time.UTC)
}

// TimeToParts packs t into a FAT (date, time, hundredths) triple.
func TimeToParts(t time.Time) (date uint16, timeField uint16, hundredths uint8) {
	date = DateToInt(t)
	timeField = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	hundredths = uint8((t.Second()%2)*100 + t.Nanosecond()/10000000)
	return
}

// AttrFlagsToFileMode converts on-disk attribute flags to an os.FileMode.
func AttrFlagsToFileMode(flags uint8) os.FileMode {
	var mode os.FileMode
	if flags&fat.AttrReadOnly != 0 {
		mode = 0o444
	} else {
		mode = 0o644
	}
	if flags&fat.AttrDirectory != 0 {
		return os.ModeDir | mode | 0o111
	}
	return mode
}

// FileModeToAttrFlags converts an os.FileMode back to on-disk attribute
// flags, preserving bits the mode can't express (hidden/system/archived)
// from the existing value.
func FileModeToAttrFlags(mode os.FileMode, existing uint8) uint8 {
	flags := existing &^ (fat.AttrReadOnly | fat.AttrDirectory)
	if mode&0o222 == 0 {
		flags |= fat.AttrReadOnly
	}
	if mode.IsDir() {
		flags |= fat.AttrDirectory
	}
	return flags
}

// NewRawFromBytes deserializes a 32-byte slice into a Raw entry.
func NewRawFromBytes(data []byte) Raw {
	r := Raw{
		AttributeFlags:    data[11],
		NTReserved:        data[12],
		CreatedTimeMillis: data[13],
		CreatedTime:       binary.LittleEndian.Uint16(data[14:16]),
		CreatedDate:       binary.LittleEndian.Uint16(data[16:18]),
		LastAccessedDate:  binary.LittleEndian.Uint16(data[18:20]),
		FirstClusterHigh:  binary.LittleEndian.Uint16(data[20:22]),
		LastModifiedTime:  binary.LittleEndian.Uint16(data[22:24]),
		LastModifiedDate:  binary.LittleEndian.Uint16(data[24:26]),
		FirstClusterLow:   binary.LittleEndian.Uint16(data[26:28]),
		FileSize:          binary.LittleEndian.Uint32(data[28:32]),
	}
	copy(r.Name[:], data[:8])
	copy(r.Extension[:], data[8:11])
	return r
}

// Bytes serializes r back into a 32-byte on-disk slot.
func (r *Raw) Bytes() []byte {
	out := make([]byte, Size)
	copy(out[:8], r.Name[:])
	copy(out[8:11], r.Extension[:])
	out[11] = r.AttributeFlags
	out[12] = r.NTReserved
	out[13] = r.CreatedTimeMillis
	binary.LittleEndian.PutUint16(out[14:16], r.CreatedTime)
	binary.LittleEndian.PutUint16(out[16:18], r.CreatedDate)
	binary.LittleEndian.PutUint16(out[18:20], r.LastAccessedDate)
	binary.LittleEndian.PutUint16(out[20:22], r.FirstClusterHigh)
	binary.LittleEndian.PutUint16(out[22:24], r.LastModifiedTime)
	binary.LittleEndian.PutUint16(out[24:26], r.LastModifiedDate)
	binary.LittleEndian.PutUint16(out[26:28], r.FirstClusterLow)
	binary.LittleEndian.PutUint32(out[28:32], r.FileSize)
	return out
}

// IsFree reports whether the on-disk slot at data has never held an entry;
// every slot after it in the directory is guaranteed free too.
func IsFree(data []byte) bool {
	return data[0] == 0x00
}

// IsDeleted reports whether the on-disk slot at data holds a deleted entry.
func IsDeleted(data []byte) bool {
	return data[0] == deletedMarker
}

// IsLFNSlot reports whether the on-disk slot at data is an LFN fragment
// rather than a short-name entry (attribute byte equals AttrLongName).
func IsLFNSlot(data []byte) bool {
	return data[11] == fat.AttrLongName
}

// NewEntryFromRaw builds a friendly Entry from a decoded Raw short-name
// entry. longName, if non-empty, overrides the derived 8.3 name (supplied
// by the caller after joining a preceding LFN chain).
func NewEntryFromRaw(raw *Raw, longName string) (Entry, fatcoreerrors.DriverError) {
	e := Entry{
		AttributeFlags: int(raw.AttributeFlags),
		NTReserved:     int(raw.NTReserved),
		LastAccessed:   DateFromInt(raw.LastAccessedDate),
		isDeleted:      raw.Name[0] == deletedMarker,
		isFree:         raw.Name[0] == 0x00,
		size:           int64(raw.FileSize),
		mode:           AttrFlagsToFileMode(raw.AttributeFlags),
		LastModified: TimestampFromParts(
			raw.LastModifiedDate, raw.LastModifiedTime, 0),
		FirstCluster: fat.ClusterID(
			uint32(raw.FirstClusterHigh)<<16 | uint32(raw.FirstClusterLow)),
	}
	copy(e.ShortName11[:8], raw.Name[:])
	copy(e.ShortName11[8:], raw.Extension[:])

	if e.isFree {
		return e, nil
	}

	trimmedName := strings.TrimRight(string(raw.Name[:]), " ")
	trimmedExt := strings.TrimRight(string(raw.Extension[:]), " ")

	if len(trimmedName) > 0 && trimmedName[0] == deletedMarker {
		trimmedName = string([]byte{raw.CreatedTimeMillis}) + trimmedName[1:]
	} else if len(trimmedName) > 0 && trimmedName[0] == kanjiEscapeByte {
		trimmedName = "\xe5" + trimmedName[1:]
	}

	shortName := trimmedName
	if trimmedExt != "" {
		shortName = trimmedName + "." + trimmedExt
	}

	if longName != "" {
		e.name = longName
	} else {
		e.name = shortName
	}

	if e.isDeleted {
		e.Deleted = TimestampFromParts(raw.CreatedDate, raw.CreatedTime, 0)
	} else {
		e.Created = TimestampFromParts(raw.CreatedDate, raw.CreatedTime, raw.CreatedTimeMillis)
	}

	return e, nil
}

// ToRaw serializes e's non-name fields into a Raw short-name entry; the
// caller supplies the already-formatted 8.3 name bytes separately via
// ShortName11, since name allocation (collision avoidance, tilde numbering)
// lives in the directory package.
func (e *Entry) ToRaw() Raw {
	createdDate, createdTime, createdHundredths := TimeToParts(e.Created)
	modDate, modTime, _ := TimeToParts(e.LastModified)

	r := Raw{
		AttributeFlags:    uint8(e.AttributeFlags),
		NTReserved:        uint8(e.NTReserved),
		CreatedTimeMillis: createdHundredths,
		CreatedTime:       createdTime,
		CreatedDate:       createdDate,
		LastAccessedDate:  DateToInt(e.LastAccessed),
		FirstClusterHigh:  uint16(uint32(e.FirstCluster) >> 16),
		LastModifiedTime:  modTime,
		LastModifiedDate:  modDate,
		FirstClusterLow:   uint16(uint32(e.FirstCluster)),
		FileSize:          uint32(e.size),
	}
	copy(r.Name[:], e.ShortName11[:8])
	copy(r.Extension[:], e.ShortName11[8:])
	return r
}

func (e *Entry) Name() string         { return e.name }
func (e *Entry) Size() int64          { return e.size }
func (e *Entry) Mode() os.FileMode    { return e.mode }
func (e *Entry) ModTime() time.Time   { return e.LastModified }
func (e *Entry) IsDir() bool          { return e.mode.IsDir() }
func (e *Entry) IsDeleted() bool      { return e.isDeleted }
func (e *Entry) IsFree() bool         { return e.isFree }
func (e *Entry) Sys() interface{}     { return nil }

// SetSize updates the entry's recorded file size, used after a write
// extends or truncates a file's cluster chain.
func (e *Entry) SetSize(size int64) { e.size = size }

// SetFirstCluster updates the entry's starting cluster, used when a file
// gets its first cluster allocated or its chain is replaced.
func (e *Entry) SetFirstCluster(c fat.ClusterID) { e.FirstCluster = c }
