package dirent

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/dargueta/fatcore/fat"
	"github.com/dargueta/fatcore/internal/ucs2"
)

// lastLFNFlag marks the slot holding a name's last fragment (the highest
// sequence number), which is stored first on disk -- LFN slots are written
// in reverse order, highest sequence number first -- so a reader scanning
// forward knows where a chain begins.
const lastLFNFlag = 0x40

// lfnSequenceMask isolates the 1-based ordinal of an LFN slot within its
// chain from the lastLFNFlag bit.
const lfnSequenceMask = 0x1F

// rawLFNSlot is the on-disk layout of one 32-byte LFN fragment.
type rawLFNSlot struct {
	SequenceNumber uint8
	Name1          [5]uint16 // UCS-2LE, runes 0-4
	Attributes     uint8     // always fat.AttrLongName
	Type           uint8     // always 0
	Checksum       uint8
	Name2          [6]uint16 // runes 5-10
	FirstClusterLow uint16   // always 0
	Name3          [2]uint16 // runes 11-12
}

func (s *rawLFNSlot) bytes() []byte {
	out := make([]byte, Size)
	out[0] = s.SequenceNumber
	for i, u := range s.Name1 {
		binary.LittleEndian.PutUint16(out[1+i*2:], u)
	}
	out[11] = s.Attributes
	out[12] = s.Type
	out[13] = s.Checksum
	for i, u := range s.Name2 {
		binary.LittleEndian.PutUint16(out[14+i*2:], u)
	}
	binary.LittleEndian.PutUint16(out[26:28], s.FirstClusterLow)
	for i, u := range s.Name3 {
		binary.LittleEndian.PutUint16(out[28+i*2:], u)
	}
	return out
}

func rawLFNSlotFromBytes(data []byte) rawLFNSlot {
	s := rawLFNSlot{
		SequenceNumber: data[0],
		Attributes:     data[11],
		Type:           data[12],
		Checksum:       data[13],
	}
	for i := range s.Name1 {
		s.Name1[i] = binary.LittleEndian.Uint16(data[1+i*2:])
	}
	for i := range s.Name2 {
		s.Name2[i] = binary.LittleEndian.Uint16(data[14+i*2:])
	}
	s.FirstClusterLow = binary.LittleEndian.Uint16(data[26:28])
	for i := range s.Name3 {
		s.Name3[i] = binary.LittleEndian.Uint16(data[28+i*2:])
	}
	return s
}

func (s *rawLFNSlot) fragmentBytes() []byte {
	frag := make([]byte, 0, ucs2.FragmentRunes*2)
	for _, u := range s.Name1 {
		frag = append(frag, byte(u), byte(u>>8))
	}
	for _, u := range s.Name2 {
		frag = append(frag, byte(u), byte(u>>8))
	}
	for _, u := range s.Name3 {
		frag = append(frag, byte(u), byte(u>>8))
	}
	return frag
}

// BuildLFNChain splits name into 32-byte LFN slots, in on-disk write order
// (highest sequence number, with lastLFNFlag set, first). checksum is
// computed from the short-name entry the chain precedes, per spec §6.2's
// checksum-linking requirement.
func BuildLFNChain(name string, checksum byte) [][]byte {
	fragments := ucs2.SplitFragments(name)
	slots := make([][]byte, len(fragments))

	for i, frag := range fragments {
		seq := uint8(i + 1)
		if i == len(fragments)-1 {
			seq |= lastLFNFlag
		}
		slot := rawLFNSlot{
			SequenceNumber: seq,
			Attributes:     fat.AttrLongName,
			Checksum:       checksum,
		}
		for j := 0; j < 5; j++ {
			slot.Name1[j] = binary.LittleEndian.Uint16(frag[j*2:])
		}
		for j := 0; j < 6; j++ {
			slot.Name2[j] = binary.LittleEndian.Uint16(frag[10+j*2:])
		}
		for j := 0; j < 2; j++ {
			slot.Name3[j] = binary.LittleEndian.Uint16(frag[22+j*2:])
		}
		// Slots are stored on disk in descending sequence-number order, so
		// the chain's first physical slot is the last element here.
		slots[len(fragments)-1-i] = slot.bytes()
	}
	return slots
}

// ParseLFNChain reconstructs a name from a run of raw LFN slot bytes
// already collected in on-disk order (descending sequence number first)
// and validates it against the short-name entry's checksum. ok is false if
// the chain is malformed (out-of-order sequence numbers, checksum
// mismatch).
func ParseLFNChain(slotBytes [][]byte, shortNameChecksum byte) (name string, ok bool) {
	if len(slotBytes) == 0 {
		return "", false
	}

	parsed := make([]rawLFNSlot, len(slotBytes))
	for i, b := range slotBytes {
		parsed[i] = rawLFNSlotFromBytes(b)
	}

	first := parsed[0]
	if first.SequenceNumber&lastLFNFlag == 0 {
		return "", false
	}
	expectedCount := int(first.SequenceNumber & lfnSequenceMask)
	if expectedCount != len(parsed) {
		return "", false
	}

	fragments := make([][]byte, len(parsed))
	for i, slot := range parsed {
		wantSeq := uint8(expectedCount - i)
		gotSeq := slot.SequenceNumber & lfnSequenceMask
		if gotSeq != wantSeq || slot.Checksum != shortNameChecksum {
			return "", false
		}
		fragments[expectedCount-1-i] = slot.fragmentBytes()
	}

	return ucs2.JoinFragments(fragments), true
}

// shortNameInvalidChars mirrors the characters FAT forbids in an 8.3 name;
// anything else (including lowercase) is folded or dropped when deriving a
// short name from a long one.
const shortNameInvalidChars = "\"*+,./:;<=>?[\\]|"

// baseAndExt splits a long name into its base and extension components the
// way short-name generation does: everything after the LAST dot is the
// extension, unless the name has no dot or starts with one.
func baseAndExt(name string) (base, ext string) {
	trimmed := strings.TrimLeft(name, ".")
	leadingDots := len(name) - len(trimmed)

	idx := strings.LastIndexByte(trimmed, '.')
	if idx < 0 {
		return name[:leadingDots] + trimmed, ""
	}
	return name[:leadingDots] + trimmed[:idx], trimmed[idx+1:]
}

func sanitizeShortNameComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			continue
		case strings.ContainsRune(shortNameInvalidChars, r):
			b.WriteByte('_')
		case r > unicode.MaxASCII:
			b.WriteByte('_')
		default:
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// NeedsLongName reports whether name cannot be represented as a bare 8.3
// short name and therefore requires an LFN chain, per spec §6.2: more than
// 8 base characters, more than 3 extension characters, an empty base, any
// lowercase letter, or any character outside the short-name charset.
func NeedsLongName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	base, ext := baseAndExt(name)
	if len(base) > 8 || len(ext) > 3 || len(base) == 0 {
		return true
	}
	if sanitizeShortNameComponent(base) != base || sanitizeShortNameComponent(ext) != ext {
		return true
	}
	return false
}

// GenerateShortName derives an 11-byte (8.3, space-padded) short name from
// a long name, given a function that reports whether a candidate 8.3 name
// collides with an existing directory entry. Uses the classic "~N"
// numeric-tail scheme for N in [1, 4]; beyond that it falls back to a
// checksum-derived tail (e.g. "HELL3F~1"), since at that point sequential
// numbering is more likely to collide with other long names truncating to
// the same base.
func GenerateShortName(longName string, collides func(candidate11 string) bool) [11]byte {
	base, ext := baseAndExt(longName)
	base = sanitizeShortNameComponent(base)
	ext = sanitizeShortNameComponent(ext)

	if len(base) > 8 {
		base = base[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	if base == "" {
		base = "_"
	}

	pad := func(name, extension string) string {
		return fmt.Sprintf("%-8s%-3s", name, extension)
	}

	if !NeedsLongName(longName) {
		padded := pad(base, ext)
		var out [11]byte
		copy(out[:], padded)
		return out
	}

	for n := 1; n <= 4; n++ {
		suffix := "~" + strconv.Itoa(n)
		truncatedBase := base
		if len(truncatedBase)+len(suffix) > 8 {
			truncatedBase = truncatedBase[:8-len(suffix)]
		}
		candidate := pad(truncatedBase+suffix, ext)
		if !collides(candidate) {
			var out [11]byte
			copy(out[:], candidate)
			return out
		}
	}

	checksum := ucs2.Checksum([]byte(pad(base, ext)))
	for n := 1; n < 100000; n++ {
		suffix := fmt.Sprintf("%02X~%d", checksum, n)
		truncatedBase := base
		if len(truncatedBase)+len(suffix) > 8 {
			truncatedBase = truncatedBase[:8-len(suffix)]
		}
		candidate := pad(truncatedBase+suffix, ext)
		if !collides(candidate) {
			var out [11]byte
			copy(out[:], candidate)
			return out
		}
	}

	// Practically unreachable: 100000 candidates exhausted means the
	// directory has an absurd number of colliding names.
	var out [11]byte
	copy(out[:], pad(base, ext))
	return out
}
