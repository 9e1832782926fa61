// Package ucs2 implements the UCS-2LE codec and 13-character fragment
// splitting FAT long file names use, grounded on the surrogate-pair
// handling in the retrieval pack's utf16x codec (EncodeRune/DecodeRune over
// a binary.ByteOrder) but narrowed to little-endian only, since every LFN
// directory slot on disk is little-endian by format, and reshaped around
// splitting a name into 13-rune slot fragments instead of streaming to an
// io.Writer.
package ucs2

import (
	"unicode/utf8"
)

const (
	surr1    = 0xd800
	surr2    = 0xdc00
	surr3    = 0xe000
	surrSelf = 0x10000

	// FragmentRunes is the number of UCS-2 code units packed into a single
	// LFN directory slot (5 + 6 + 2, per the 32-byte slot layout).
	FragmentRunes = 13

	// padRune terminates a short final fragment; 0xFFFF pads whatever is
	// left in the slot after that.
	padRune = 0x0000
	fillRune = 0xFFFF
)

// EncodeRune appends the UCS-2LE code unit(s) for r to dst. Runes outside
// the Basic Multilingual Plane are encoded as a surrogate pair, matching
// UTF-16; FAT long names are not formally specified beyond the BMP, but
// real implementations (and Windows itself) accept surrogate pairs, so we
// don't reject them.
func EncodeRune(dst []byte, r rune) []byte {
	switch {
	case r < 0 || r > 0x10FFFF || (r >= surr1 && r < surr3):
		return appendUnit(dst, 0xFFFD)
	case r < surrSelf:
		return appendUnit(dst, uint16(r))
	default:
		r -= surrSelf
		hi := surr1 + (r>>10)&0x3ff
		lo := surr2 + r&0x3ff
		dst = appendUnit(dst, uint16(hi))
		return appendUnit(dst, uint16(lo))
	}
}

func appendUnit(dst []byte, u uint16) []byte {
	return append(dst, byte(u), byte(u>>8))
}

// FromUTF8 converts a UTF-8 string to UCS-2LE bytes.
func FromUTF8(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = EncodeRune(out, r)
	}
	return out
}

// ToUTF8 decodes UCS-2LE bytes (an even-length run of 2-byte code units)
// into a UTF-8 string. Lone or mismatched surrogates decode as
// utf8.RuneError, same as the pack's reference codec.
func ToUTF8(src []byte) string {
	var out []byte
	for i := 0; i+1 < len(src); i += 2 {
		u1 := uint16(src[i]) | uint16(src[i+1])<<8
		if u1 < surr1 || u1 >= surr3 {
			out = appendRune(out, rune(u1))
			continue
		}
		if u1 >= surr2 || i+3 >= len(src) {
			out = appendRune(out, utf8.RuneError)
			continue
		}
		u2 := uint16(src[i+2]) | uint16(src[i+3])<<8
		if u2 < surr2 || u2 >= surr3 {
			out = appendRune(out, utf8.RuneError)
			continue
		}
		r := surrSelf + (rune(u1)-surr1)<<10 + (rune(u2) - surr2)
		out = appendRune(out, r)
		i += 2
	}
	return string(out)
}

func appendRune(dst []byte, r rune) []byte {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	return append(dst, buf[:n]...)
}

// SplitFragments breaks a name's UCS-2LE encoding into FragmentRunes-sized
// (26-byte) chunks suitable for one LFN slot each, terminating the final
// fragment with a NUL code unit and padding the remainder of that slot with
// 0xFFFF, per the on-disk convention every FAT implementation follows for
// names that don't fill their last slot exactly.
func SplitFragments(name string) [][]byte {
	units := FromUTF8(name)
	unitCount := len(units) / 2

	fragCount := unitCount/FragmentRunes + 1
	if unitCount%FragmentRunes == 0 && unitCount > 0 {
		fragCount = unitCount / FragmentRunes
	}
	if fragCount == 0 {
		fragCount = 1
	}

	fragments := make([][]byte, fragCount)
	for i := range fragments {
		frag := make([]byte, FragmentRunes*2)
		start := i * FragmentRunes * 2
		end := start + FragmentRunes*2
		if end > len(units) {
			end = len(units)
		}
		n := copy(frag, units[start:end])
		if n < len(frag) {
			frag[n], frag[n+1] = byte(padRune), byte(padRune>>8)
			for j := n + 2; j < len(frag); j += 2 {
				frag[j], frag[j+1] = byte(fillRune), byte(fillRune>>8)
			}
		}
		fragments[i] = frag
	}
	return fragments
}

// JoinFragments reverses SplitFragments: it concatenates LFN slot fragments
// (already reordered into name order by the caller) and decodes the result
// back to UTF-8, stopping at the first NUL/0xFFFF terminator pair.
func JoinFragments(fragments [][]byte) string {
	var units []byte
	for _, frag := range fragments {
		for i := 0; i+1 < len(frag); i += 2 {
			u := uint16(frag[i]) | uint16(frag[i+1])<<8
			if u == padRune || u == fillRune {
				return ToUTF8(units)
			}
			units = append(units, frag[i], frag[i+1])
		}
	}
	return ToUTF8(units)
}

// Checksum computes the LFN checksum of an 11-byte short name (8.3, space
// padded, as stored in the directory entry), per the FAT spec's
// byte-rotate-and-add algorithm that links LFN slots to their short-name
// entry.
func Checksum(shortName11 []byte) byte {
	var sum byte
	for _, b := range shortName11 {
		sum = (sum>>1 | sum<<7) + b
	}
	return sum
}
