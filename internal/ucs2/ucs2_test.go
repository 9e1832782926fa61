package ucs2_test

import (
	"testing"

	"github.com/dargueta/fatcore/internal/ucs2"
	"github.com/stretchr/testify/assert"
)

func TestToUTF8_RoundTrip(t *testing.T) {
	for _, name := range []string{"", "readme.txt", "a long file name.docx", "日本語.txt"} {
		encoded := ucs2.FromUTF8(name)
		assert.Equal(t, name, ucs2.ToUTF8(encoded))
	}
}

func TestSplitFragments_ExactMultiple(t *testing.T) {
	name := "abcdefghijklm" // exactly 13 runes
	frags := ucs2.SplitFragments(name)
	assert.Len(t, frags, 1)
	assert.Equal(t, name, ucs2.JoinFragments(frags))
}

func TestSplitFragments_Short(t *testing.T) {
	frags := ucs2.SplitFragments("short")
	assert.Len(t, frags, 1)
	assert.Equal(t, "short", ucs2.JoinFragments(frags))

	// Bytes after the NUL terminator are filled with 0xFFFF.
	last := frags[len(frags)-1]
	assert.Equal(t, byte(0xFF), last[len(last)-1])
}

func TestSplitFragments_MultipleSlots(t *testing.T) {
	name := "this name is definitely longer than thirteen characters"
	frags := ucs2.SplitFragments(name)
	assert.Greater(t, len(frags), 1)
	assert.Equal(t, name, ucs2.JoinFragments(frags))
}

func TestChecksum_Deterministic(t *testing.T) {
	short := []byte("README  TXT")
	assert.Equal(t, ucs2.Checksum(short), ucs2.Checksum(short))
	assert.NotEqual(t, ucs2.Checksum(short), ucs2.Checksum([]byte("OTHER   TXT")))
}
