package testing

import (
	"crypto/rand"
	"testing"

	"github.com/dargueta/fatcore"
	"github.com/dargueta/fatcore/buffer"
	"github.com/dargueta/fatcore/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage creates an image with the given number of blocks and
// bytes per block. It is guaranteed to either return a valid slice or fail
// the test and abort.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*uint(totalBlocks))

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks of size %d with random bytes",
		totalBlocks,
		bytesPerBlock,
	)
	return backingData
}

// CreateDefaultDevice builds an opened, RAM-backed device.Device of
// bytesPerBlock*totalBlocks bytes, seeded with backingData (or random data
// if backingData is nil). Grounded on the teacher's CreateDefaultCache,
// retargeted from the old file_systems/common/blockcache.BlockCache (now
// superseded by device.RAMDiskDriver + buffer.Pool) onto the new stack.
func CreateDefaultDevice(
	bytesPerBlock,
	totalBlocks uint,
	backingData []byte,
	t *testing.T,
) *device.Device {
	t.Helper()
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	driver := device.NewRAMDiskDriver(bytesPerBlock, uint64(totalBlocks), backingData)
	dev := device.New("ramdisk", 0, driver)
	require.NoError(t, dev.Open())

	geom := dev.Geometry()
	assert.EqualValues(t, bytesPerBlock, geom.SectorSize, "wrong bytes per block")
	assert.EqualValues(t, totalBlocks, geom.SectorCount, "wrong total blocks")
	return dev
}

// CreateDefaultPool builds a buffer.Pool of count sectors backed by dev,
// fetching and flushing against volume ID 0. Grounded on the teacher's
// CreateDefaultCache fetch/flush-handler wiring, adapted to buffer.Pool's
// VolumeID-addressed callback shape.
func CreateDefaultPool(dev *device.Device, count int, t *testing.T) *buffer.Pool {
	t.Helper()
	geom := dev.Geometry()

	fetch := func(volID buffer.VolumeID, sectorNbr uint64, buf []byte) fatcore.DriverError {
		return dev.ReadSectors(device.PhysicalBlock(sectorNbr), 1, buf)
	}
	flush := func(volID buffer.VolumeID, sectorNbr uint64, buf []byte) fatcore.DriverError {
		return dev.WriteSectors(device.PhysicalBlock(sectorNbr), 1, buf)
	}

	return buffer.NewPool(geom.SectorSize, count, fetch, flush)
}
