package volume_test

import (
	"testing"

	"github.com/dargueta/fatcore"
	"github.com/dargueta/fatcore/device"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const floppySectors = 2880 // a standard 1.44MB floppy geometry, 512-byte sectors

func newFloppyDevice() *device.Device {
	driver := device.NewRAMDiskDriver(512, floppySectors, nil)
	return device.New("ramdisk", 0, driver)
}

func formatFloppy(t *testing.T, params volume.FormatParams) *volume.Volume {
	t.Helper()
	v, err := volume.Format(newFloppyDevice(), floppySectors, params, fatcore.MountFlagsAllowAll)
	require.NoError(t, err)
	return v
}

func TestFormat_ProducesFAT12Volume(t *testing.T) {
	v := formatFloppy(t, volume.FormatParams{Label: "TESTDISK"})
	assert.Equal(t, 12, v.BootSector.FATVersion)

	label, err := v.Label()
	require.NoError(t, err)
	assert.Equal(t, "TESTDISK", label)
}

func TestFormat_FSStatReportsFreeSpace(t *testing.T) {
	v := formatFloppy(t, volume.FormatParams{})

	stat, err := v.FSStat()
	require.NoError(t, err)
	assert.Greater(t, stat.BlocksFree, uint64(0))
	assert.LessOrEqual(t, stat.BlocksFree, stat.TotalBlocks)
	assert.EqualValues(t, 512, stat.BlockSize)
}

func TestFormat_CheckReportsNoCorruption(t *testing.T) {
	v := formatFloppy(t, volume.FormatParams{})
	assert.NoError(t, v.Check())
}

func TestFormat_RejectsUndersizedImage(t *testing.T) {
	dev := newFloppyDevice()
	_, err := volume.Format(dev, 4, volume.FormatParams{}, fatcore.MountFlagsAllowAll)
	assert.Error(t, err)
}

func TestMount_RoundTripsFormattedVolume(t *testing.T) {
	dev := newFloppyDevice()
	_, err := volume.Format(dev, floppySectors, volume.FormatParams{Label: "ROUNDTRIP"}, fatcore.MountFlagsAllowAll)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	v, err := volume.Mount(dev, -1, fatcore.MountFlagsAllowAll)
	require.NoError(t, err)
	assert.Equal(t, 12, v.BootSector.FATVersion)

	label, err := v.Label()
	require.NoError(t, err)
	assert.Equal(t, "ROUNDTRIP", label)
}

func TestSetLabel_RejectsOversizedLabel(t *testing.T) {
	v := formatFloppy(t, volume.FormatParams{})
	err := v.SetLabel("WAYTOOLONGLABEL")
	assert.ErrorIs(t, err, fatcoreerrors.ErrLabelInvalid)
}

func TestSetLabel_ReplacesExistingLabel(t *testing.T) {
	v := formatFloppy(t, volume.FormatParams{Label: "FIRST"})

	require.NoError(t, v.SetLabel("SECOND"))

	label, err := v.Label()
	require.NoError(t, err)
	assert.Equal(t, "SECOND", label)
}

func TestUnmount_FlushesDirtyBuffersAndFATCopies(t *testing.T) {
	v := formatFloppy(t, volume.FormatParams{})
	require.NoError(t, v.SetLabel("UNMOUNTME"))
	require.NoError(t, v.Unmount())
}
