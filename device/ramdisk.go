package device

import (
	"io"

	"github.com/dargueta/fatcore"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/xaionaro-go/bytesextra"
)

// RAMDiskDriver is a DeviceDriver backed entirely by memory, grounded on the
// teacher's testing image-loading helper (bytesextra-wrapped byte slice
// standing in for a disk). It is the reference driver used by fatctl's test
// fixtures and by unit tests across the rest of the module; it is not a
// claim of any particular hardware.
type RAMDiskDriver struct {
	sectorSize  uint
	sectorCount uint64
	stream      io.ReadWriteSeeker
	open        bool
}

var _ DeviceDriver = (*RAMDiskDriver)(nil)

// NewRAMDiskDriver creates a driver over an in-memory image of exactly
// sectorSize*sectorCount bytes. If data is nil, a zero-filled image of that
// size is allocated.
func NewRAMDiskDriver(sectorSize uint, sectorCount uint64, data []byte) *RAMDiskDriver {
	size := sectorSize * uint(sectorCount)
	if data == nil {
		data = make([]byte, size)
	}
	return &RAMDiskDriver{
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		stream:      bytesextra.NewReadWriteSeeker(data),
	}
}

func (r *RAMDiskDriver) Open() fatcore.DriverError {
	r.open = true
	return nil
}

func (r *RAMDiskDriver) Close() fatcore.DriverError {
	r.open = false
	return nil
}

func (r *RAMDiskDriver) Query() (Geometry, fatcore.DriverError) {
	return Geometry{SectorSize: r.sectorSize, SectorCount: r.sectorCount, IsFixed: true}, nil
}

func (r *RAMDiskDriver) checkRange(start PhysicalBlock, count uint) fatcore.DriverError {
	if !r.open {
		return fatcoreerrors.ErrDeviceNotPresent
	}
	if uint64(start)+uint64(count) > r.sectorCount {
		return fatcoreerrors.ErrDeviceInvalidSector.WithMessage(
			"sector range extends past end of image")
	}
	return nil
}

func (r *RAMDiskDriver) Read(start PhysicalBlock, count uint, dst []byte) fatcore.DriverError {
	if count == 0 {
		return nil
	}
	if err := r.checkRange(start, count); err != nil {
		return err
	}
	offset := int64(start) * int64(r.sectorSize)
	if _, err := r.stream.Seek(offset, io.SeekStart); err != nil {
		return fatcoreerrors.ErrDeviceIO.WrapError(err)
	}
	n, err := io.ReadFull(r.stream, dst[:count*r.sectorSize])
	if err != nil || uint(n) != count*r.sectorSize {
		return fatcoreerrors.ErrDeviceIO.WithMessage("short read")
	}
	return nil
}

func (r *RAMDiskDriver) Write(start PhysicalBlock, count uint, src []byte) fatcore.DriverError {
	if count == 0 {
		return nil
	}
	if err := r.checkRange(start, count); err != nil {
		return err
	}
	offset := int64(start) * int64(r.sectorSize)
	if _, err := r.stream.Seek(offset, io.SeekStart); err != nil {
		return fatcoreerrors.ErrDeviceIO.WrapError(err)
	}
	n, err := r.stream.Write(src[:count*r.sectorSize])
	if err != nil || uint(n) != count*r.sectorSize {
		return fatcoreerrors.ErrDeviceIO.WithMessage("short write")
	}
	return nil
}

// IOCtl has no control operations defined for the RAM-disk driver.
func (r *RAMDiskDriver) IOCtl(op int, arg any) (any, fatcore.DriverError) {
	return nil, fatcoreerrors.ErrNotImplemented
}
