package dirent

import (
	"strings"

	"github.com/dargueta/fatcore/clusterchain"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
	"github.com/dargueta/fatcore/internal/ucs2"
)

// slotRun is one physical run of directory-entry slots: zero or more LFN
// fragments immediately followed by the short-name entry they describe.
// byteOffset is the offset of the run's first slot within the directory's
// data, for in-place rewrites (delete, rename-in-place).
type slotRun struct {
	byteOffset int64
	lfnSlots   [][]byte
	shortSlot  []byte
}

// Directory is a read/write view over one directory's contents: the root
// directory or any subdirectory, addressed by its cluster chain (or, for a
// FAT12/16 root directory, a plain contiguous region -- callers pass a
// clusterchain.ChainReader/Writer that already abstracts that difference
// away, per spec §4.4).
type Directory struct {
	reader *clusterchain.ChainReader
	writer *clusterchain.ChainWriter // nil if opened read-only
}

// NewDirectory wraps a chain reader (and, for mutation, a chain writer)
// over a directory's cluster chain.
func NewDirectory(reader *clusterchain.ChainReader, writer *clusterchain.ChainWriter) *Directory {
	return &Directory{reader: reader, writer: writer}
}

// scan walks every slotRun in the directory, invoking visit for each. If
// visit returns true, scanning stops early.
func (d *Directory) scan(visit func(run slotRun) (stop bool)) fatcoreerrors.DriverError {
	chain := d.reader.Chain()
	if len(chain) == 0 {
		return nil
	}

	totalBytes := int64(len(chain)) * int64(d.reader.ChainBytesPerCluster())
	buf := make([]byte, totalBytes)
	if _, err := d.reader.ReadAt(buf, 0); err != nil {
		return err
	}

	var pendingLFN [][]byte
	for offset := int64(0); offset+Size <= totalBytes; offset += Size {
		slot := buf[offset : offset+Size]
		if IsFree(slot) {
			break
		}
		if IsLFNSlot(slot) {
			pendingLFN = append(pendingLFN, append([]byte(nil), slot...))
			continue
		}

		run := slotRun{byteOffset: offset - int64(len(pendingLFN))*Size, lfnSlots: pendingLFN, shortSlot: slot}
		pendingLFN = nil
		if visit(run) {
			return nil
		}
	}
	return nil
}

// Lookup finds the entry named name (case-insensitive on both the short
// name and the long name), returning the entry and the byte offset of its
// short-name slot for later mutation.
func (d *Directory) Lookup(name string) (*Entry, int64, fatcoreerrors.DriverError) {
	var found *Entry
	var foundOffset int64

	err := d.scan(func(run slotRun) bool {
		raw := NewRawFromBytes(run.shortSlot)
		if raw.Name[0] == deletedMarker || raw.Name[0] == 0x00 {
			return false
		}

		longName := ""
		if len(run.lfnSlots) > 0 {
			checksum := ucs2.Checksum(append(append([]byte{}, raw.Name[:]...), raw.Extension[:]...))
			if ln, ok := ParseLFNChain(run.lfnSlots, checksum); ok {
				longName = ln
			}
		}

		entry, everr := NewEntryFromRaw(&raw, longName)
		if everr != nil {
			return false
		}

		if strings.EqualFold(entry.Name(), name) || strings.EqualFold(shortNameString(raw), name) {
			found = &entry
			foundOffset = run.byteOffset + int64(len(run.lfnSlots))*Size
			return true
		}
		return false
	})
	if err != nil {
		return nil, 0, err
	}
	if found == nil {
		return nil, 0, fatcoreerrors.ErrNotFound
	}
	return found, foundOffset, nil
}

func shortNameString(raw Raw) string {
	name := strings.TrimRight(string(raw.Name[:]), " ")
	ext := strings.TrimRight(string(raw.Extension[:]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// List returns every live (non-deleted, non-free) entry in the directory.
func (d *Directory) List() ([]Entry, fatcoreerrors.DriverError) {
	var entries []Entry
	err := d.scan(func(run slotRun) bool {
		raw := NewRawFromBytes(run.shortSlot)
		if raw.Name[0] == deletedMarker || raw.Name[0] == 0x00 {
			return false
		}
		if raw.AttributeFlags&fat.AttrVolumeLabel != 0 {
			return false
		}

		longName := ""
		if len(run.lfnSlots) > 0 {
			checksum := ucs2.Checksum(append(append([]byte{}, raw.Name[:]...), raw.Extension[:]...))
			if ln, ok := ParseLFNChain(run.lfnSlots, checksum); ok {
				longName = ln
			}
		}
		entry, everr := NewEntryFromRaw(&raw, longName)
		if everr == nil {
			entries = append(entries, entry)
		}
		return false
	})
	return entries, err
}

// FindVolumeLabel returns the directory's volume-label entry, if any --
// the one List excludes since it isn't a real file or subdirectory.
// Returns ErrNotFound if the directory has no label entry.
func (d *Directory) FindVolumeLabel() (*Entry, int64, fatcoreerrors.DriverError) {
	var found *Entry
	var foundOffset int64

	err := d.scan(func(run slotRun) bool {
		raw := NewRawFromBytes(run.shortSlot)
		if raw.Name[0] == deletedMarker || raw.Name[0] == 0x00 {
			return false
		}
		if raw.AttributeFlags&fat.AttrVolumeLabel == 0 {
			return false
		}

		entry, everr := NewEntryFromRaw(&raw, "")
		if everr != nil {
			return false
		}
		found = &entry
		foundOffset = run.byteOffset + int64(len(run.lfnSlots))*Size
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	if found == nil {
		return nil, 0, fatcoreerrors.ErrNotFound
	}
	return found, foundOffset, nil
}

// EntryAt reads the short-name slot at offset (as returned by Lookup or
// Place) back into an Entry, without a full directory scan. Used to
// re-read an entry's current on-disk fields (attributes, short name,
// timestamps) before an in-place metadata rewrite that must preserve them.
func (d *Directory) EntryAt(offset int64) (*Entry, fatcoreerrors.DriverError) {
	buf := make([]byte, Size)
	if _, err := d.reader.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	raw := NewRawFromBytes(buf)
	entry, err := NewEntryFromRaw(&raw, "")
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateEntry rewrites the short-name slot at offset (as returned by Lookup
// or Place) with entry's current fields, preserving its existing short name.
// Used for in-place metadata writeback -- size/first-cluster after a write,
// attribute or timestamp changes -- that don't need a new LFN chain or a
// different directory slot.
func (d *Directory) UpdateEntry(offset int64, entry *Entry) fatcoreerrors.DriverError {
	if d.writer == nil {
		return fatcoreerrors.ErrReadOnlyFileSystem
	}
	raw := entry.ToRaw()
	_, err := d.writer.WriteAt(raw.Bytes(), offset)
	return err
}

// collidesWithExisting reports whether candidate11 (8.3, space-padded) is
// already used by a live entry in the directory.
func (d *Directory) collidesWithExisting(candidate11 string) bool {
	collision := false
	_ = d.scan(func(run slotRun) bool {
		raw := NewRawFromBytes(run.shortSlot)
		if raw.Name[0] == deletedMarker || raw.Name[0] == 0x00 {
			return false
		}
		if string(raw.Name[:])+string(raw.Extension[:]) == candidate11 {
			collision = true
			return true
		}
		return false
	})
	return collision
}

// PlanPlace computes where Place would write name's entry -- the target
// byte offset and the exact slot bytes (any LFN fragments plus the
// short-name slot) -- without writing anything. A caller that wants the
// write journaled ahead of time (spec §4.6) logs this offset/range, commits
// the journal record, then calls WriteSlots to actually perform it.
func (d *Directory) PlanPlace(name string, entry *Entry) (offset int64, slots [][]byte, err fatcoreerrors.DriverError) {
	if d.writer == nil {
		return 0, nil, fatcoreerrors.ErrReadOnlyFileSystem
	}
	if _, _, lerr := d.Lookup(name); lerr == nil {
		return 0, nil, fatcoreerrors.ErrExists
	}

	short11 := GenerateShortName(name, d.collidesWithExisting)
	copy(entry.ShortName11[:], short11[:])
	entry.name = name

	var built [][]byte
	if NeedsLongName(name) {
		checksum := ucs2.Checksum(entry.ShortName11[:])
		built = BuildLFNChain(name, checksum)
	}
	raw := entry.ToRaw()
	built = append(built, raw.Bytes())

	freeOffset, ferr := d.findFreeRun(len(built))
	if ferr != nil {
		return 0, nil, ferr
	}
	return freeOffset, built, nil
}

// WriteSlots writes slots (as planned by PlanPlace) at offset, returning the
// byte offset of the short-name slot, same as Place's return value.
func (d *Directory) WriteSlots(offset int64, slots [][]byte) (int64, fatcoreerrors.DriverError) {
	if d.writer == nil {
		return 0, fatcoreerrors.ErrReadOnlyFileSystem
	}
	for i, slot := range slots {
		if _, werr := d.writer.WriteAt(slot, offset+int64(i)*Size); werr != nil {
			return 0, werr
		}
	}
	return offset + int64(len(slots)-1)*Size, nil
}

// Place inserts a new entry named name into the directory, generating an
// LFN chain if needed. It requires the directory to have been opened with
// a writer. Returns the byte offset of the newly written short-name slot.
// Callers that need the write journaled ahead of time should use
// PlanPlace/WriteSlots instead so the target location is known before the
// bytes land.
func (d *Directory) Place(name string, entry *Entry) (int64, fatcoreerrors.DriverError) {
	offset, slots, err := d.PlanPlace(name, entry)
	if err != nil {
		return 0, err
	}
	return d.WriteSlots(offset, slots)
}

// findFreeRun locates (or creates, by growing the chain) a contiguous run
// of `count` free slots, returning its byte offset.
func (d *Directory) findFreeRun(count int) (int64, fatcoreerrors.DriverError) {
	chain := d.writer.Chain()
	bytesPerCluster := int64(d.writer.ChainBytesPerCluster())
	totalBytes := int64(len(chain)) * bytesPerCluster

	if totalBytes > 0 {
		buf := make([]byte, totalBytes)
		if _, err := d.writer.ReadAt(buf, 0); err != nil {
			return 0, err
		}

		run := 0
		for offset := int64(0); offset+Size <= totalBytes; offset += Size {
			if IsFree(buf[offset:offset+Size]) || IsDeleted(buf[offset:offset+Size]) {
				run++
				if run == count {
					return offset - int64(count-1)*Size, nil
				}
			} else {
				run = 0
			}
		}
	}

	// No room: grow the chain by one cluster and use its start.
	growOffset := totalBytes
	zeros := make([]byte, bytesPerCluster)
	if _, err := d.writer.WriteAt(zeros, growOffset); err != nil {
		return 0, err
	}
	return growOffset, nil
}

// findRun locates name's slotRun along with its decoded entry, the shared
// lookup used by both Delete and DeletionRange.
func (d *Directory) findRun(name string) (slotRun, Entry, fatcoreerrors.DriverError) {
	var targetRun *slotRun
	var targetEntry Entry

	err := d.scan(func(run slotRun) bool {
		raw := NewRawFromBytes(run.shortSlot)
		if raw.Name[0] == deletedMarker || raw.Name[0] == 0x00 {
			return false
		}
		longName := ""
		if len(run.lfnSlots) > 0 {
			checksum := ucs2.Checksum(append(append([]byte{}, raw.Name[:]...), raw.Extension[:]...))
			if ln, ok := ParseLFNChain(run.lfnSlots, checksum); ok {
				longName = ln
			}
		}
		entry, _ := NewEntryFromRaw(&raw, longName)
		if strings.EqualFold(entry.Name(), name) || strings.EqualFold(shortNameString(raw), name) {
			r := run
			targetRun = &r
			targetEntry = entry
			return true
		}
		return false
	})
	if err != nil {
		return slotRun{}, Entry{}, err
	}
	if targetRun == nil {
		return slotRun{}, Entry{}, fatcoreerrors.ErrNotFound
	}
	return *targetRun, targetEntry, nil
}

// DeletionRange locates name's short-name slot and any LFN slots
// immediately preceding it, returning the byte range Delete would mark
// deleted and the entry's first data cluster (for the caller to free),
// without writing anything. Used to journal a delete's target range ahead
// of the actual write (spec §4.6).
func (d *Directory) DeletionRange(name string) (lo, hi int64, firstCluster fat.ClusterID, err fatcoreerrors.DriverError) {
	run, entry, ferr := d.findRun(name)
	if ferr != nil {
		return 0, 0, 0, ferr
	}
	lo = run.byteOffset
	hi = run.byteOffset + int64(len(run.lfnSlots))*Size
	return lo, hi, entry.FirstCluster, nil
}

// MarkRangeDeleted marks every directory-entry slot in the inclusive byte
// range [lo, hi] as deleted, without needing the original name. Used by
// journal replay to redo a delete whose slot erase didn't reach disk before
// a crash (the range comes from an already-committed EnterEntryDelete
// record).
func (d *Directory) MarkRangeDeleted(lo, hi int64) fatcoreerrors.DriverError {
	if d.writer == nil {
		return fatcoreerrors.ErrReadOnlyFileSystem
	}
	for offset := lo; offset <= hi; offset += Size {
		buf := make([]byte, Size)
		if _, err := d.reader.ReadAt(buf, offset); err != nil {
			return err
		}
		if buf[0] == deletedMarker {
			continue
		}
		buf[0] = deletedMarker
		if _, err := d.writer.WriteAt(buf, offset); err != nil {
			return err
		}
	}
	return nil
}

// Delete marks the entry named name and any LFN slots immediately
// preceding it as deleted. Callers that need the deletion journaled ahead
// of time should use DeletionRange/MarkRangeDeleted instead so the target
// range is known before the bytes are erased.
func (d *Directory) Delete(name string) fatcoreerrors.DriverError {
	if d.writer == nil {
		return fatcoreerrors.ErrReadOnlyFileSystem
	}

	lo, hi, _, err := d.DeletionRange(name)
	if err != nil {
		return err
	}
	return d.MarkRangeDeleted(lo, hi)
}

// Rename changes the name of an existing entry in place: deletes the old
// short/LFN run and places a new one, preserving the entry's non-name
// fields. This is within-directory rename only; moving an entry to a
// different directory is done as Place-then-Delete by the caller (the fs
// package), since source and destination directories may live in
// different cluster chains entirely.
func (d *Directory) Rename(oldName, newName string) fatcoreerrors.DriverError {
	entry, _, err := d.Lookup(oldName)
	if err != nil {
		return err
	}
	if err := d.Delete(oldName); err != nil {
		return err
	}
	_, err = d.Place(newName, entry)
	return err
}
