package device_test

import (
	"testing"

	"github.com/dargueta/fatcore/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_OpenReadWrite(t *testing.T) {
	driver := device.NewRAMDiskDriver(512, 16, nil)
	d := device.New("ramdisk", 0, driver)

	require.NoError(t, d.Open())
	assert.Equal(t, device.StatePresent, d.State())
	assert.EqualValues(t, 512, d.Geometry().SectorSize)
	assert.EqualValues(t, 16, d.Geometry().SectorCount)

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, d.WriteSectors(2, 1, payload))

	readBack := make([]byte, 512)
	require.NoError(t, d.ReadSectors(2, 1, readBack))
	assert.Equal(t, payload, readBack)
}

func TestDevice_ReadPastEndFails(t *testing.T) {
	driver := device.NewRAMDiskDriver(512, 4, nil)
	d := device.New("ramdisk", 0, driver)
	require.NoError(t, d.Open())

	buf := make([]byte, 512*2)
	err := d.ReadSectors(3, 2, buf)
	assert.Error(t, err)
}

func TestDevice_ZeroCountIsNoOp(t *testing.T) {
	driver := device.NewRAMDiskDriver(512, 4, nil)
	d := device.New("ramdisk", 0, driver)
	require.NoError(t, d.Open())
	assert.NoError(t, d.ReadSectors(0, 0, nil))
	assert.NoError(t, d.WriteSectors(0, 0, nil))
}

func TestDevice_RefreshReportsUnchangedGeometry(t *testing.T) {
	driver := device.NewRAMDiskDriver(512, 4, nil)
	d := device.New("ramdisk", 0, driver)
	require.NoError(t, d.Open())

	changed, err := d.Refresh()
	require.NoError(t, err)
	assert.False(t, changed, "geometry did not actually change")
}
