package dirent_test

import (
	"testing"
	"time"

	"github.com/dargueta/fatcore/dirent"
	"github.com/dargueta/fatcore/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFromInt_RoundTrip(t *testing.T) {
	d := time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC)
	packed := dirent.DateToInt(d)
	assert.Equal(t, d, dirent.DateFromInt(packed))
}

func TestTimestampFromParts_RoundTrip(t *testing.T) {
	original := time.Date(2023, time.March, 15, 13, 45, 30, 0, time.UTC)
	date, timeField, hundredths := dirent.TimeToParts(original)
	assert.Equal(t, original, dirent.TimestampFromParts(date, timeField, hundredths))
}

func TestRaw_BytesRoundTrip(t *testing.T) {
	raw := dirent.Raw{
		AttributeFlags:   fat.AttrReadOnly,
		FirstClusterLow:  5,
		FirstClusterHigh: 1,
		FileSize:         1024,
	}
	copy(raw.Name[:], "README  ")
	copy(raw.Extension[:], "TXT")

	data := raw.Bytes()
	require.Len(t, data, dirent.Size)

	roundTrip := dirent.NewRawFromBytes(data)
	assert.Equal(t, raw, roundTrip)
}

func TestNewEntryFromRaw_DecodesShortName(t *testing.T) {
	raw := dirent.Raw{}
	copy(raw.Name[:], "HELLO   ")
	copy(raw.Extension[:], "TXT")

	entry, err := dirent.NewEntryFromRaw(&raw, "")
	require.NoError(t, err)
	assert.Equal(t, "HELLO.TXT", entry.Name())
	assert.False(t, entry.IsFree())
	assert.False(t, entry.IsDeleted())
}

func TestNewEntryFromRaw_PrefersLongName(t *testing.T) {
	raw := dirent.Raw{}
	copy(raw.Name[:], "HELLO~1 ")
	copy(raw.Extension[:], "TXT")

	entry, err := dirent.NewEntryFromRaw(&raw, "hello there.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello there.txt", entry.Name())
}

func TestIsFreeAndIsDeleted(t *testing.T) {
	freeSlot := make([]byte, dirent.Size)
	assert.True(t, dirent.IsFree(freeSlot))

	deletedSlot := make([]byte, dirent.Size)
	deletedSlot[0] = 0xE5
	assert.True(t, dirent.IsDeleted(deletedSlot))
	assert.False(t, dirent.IsFree(deletedSlot))
}
