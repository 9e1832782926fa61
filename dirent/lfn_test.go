package dirent_test

import (
	"testing"

	"github.com/dargueta/fatcore/dirent"
	"github.com/dargueta/fatcore/internal/ucs2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseLFNChain_RoundTrip(t *testing.T) {
	name := "a somewhat long file name.docx"
	checksum := ucs2.Checksum([]byte("SOMEWH~1DOC"))

	slots := dirent.BuildLFNChain(name, checksum)
	require.Greater(t, len(slots), 1)

	parsed, ok := dirent.ParseLFNChain(slots, checksum)
	require.True(t, ok)
	assert.Equal(t, name, parsed)
}

func TestParseLFNChain_RejectsChecksumMismatch(t *testing.T) {
	slots := dirent.BuildLFNChain("short.txt", 0x42)
	_, ok := dirent.ParseLFNChain(slots, 0x99)
	assert.False(t, ok)
}

func TestParseLFNChain_RejectsEmpty(t *testing.T) {
	_, ok := dirent.ParseLFNChain(nil, 0)
	assert.False(t, ok)
}

func TestNeedsLongName(t *testing.T) {
	assert.False(t, dirent.NeedsLongName("README.TXT"))
	assert.False(t, dirent.NeedsLongName("."))
	assert.False(t, dirent.NeedsLongName(".."))
	assert.True(t, dirent.NeedsLongName("readme.txt"))
	assert.True(t, dirent.NeedsLongName("a very long name.docx"))
	assert.True(t, dirent.NeedsLongName("VERYLONGNAME.TXT"))
}

func TestGenerateShortName_NoCollisionSameAsUppercased(t *testing.T) {
	noCollide := func(string) bool { return false }
	out := dirent.GenerateShortName("README.TXT", noCollide)
	assert.Equal(t, "README  TXT", string(out[:]))
}

func TestGenerateShortName_UsesNumericTail(t *testing.T) {
	noCollide := func(string) bool { return false }
	out := dirent.GenerateShortName("hello there.txt", noCollide)
	assert.Equal(t, "HELLOT~1TXT", string(out[:]))
}

func TestGenerateShortName_SkipsCollisions(t *testing.T) {
	taken := map[string]bool{"HELLOT~1TXT": true, "HELLOT~2TXT": true}
	collides := func(c string) bool { return taken[c] }
	out := dirent.GenerateShortName("hello there.txt", collides)
	assert.Equal(t, "HELLOT~3TXT", string(out[:]))
}
