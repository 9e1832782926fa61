package device

import (
	"io"
	"os"

	"github.com/dargueta/fatcore"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
)

// FlatFileDriver is a DeviceDriver backed by an ordinary file on the host
// file system -- the common case for developing and testing against a disk
// image file instead of real hardware.
type FlatFileDriver struct {
	path        string
	sectorSize  uint
	sectorCount uint64
	file        *os.File
}

var _ DeviceDriver = (*FlatFileDriver)(nil)

// NewFlatFileDriver creates a driver over the file at path. The file is not
// opened until Open() is called.
func NewFlatFileDriver(path string, sectorSize uint, sectorCount uint64) *FlatFileDriver {
	return &FlatFileDriver{path: path, sectorSize: sectorSize, sectorCount: sectorCount}
}

func (f *FlatFileDriver) Open() fatcore.DriverError {
	file, err := os.OpenFile(f.path, os.O_RDWR, 0o644)
	if err != nil {
		return fatcoreerrors.ErrDeviceNotPresent.WrapError(err)
	}
	f.file = file
	return nil
}

func (f *FlatFileDriver) Close() fatcore.DriverError {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	if err != nil {
		return fatcoreerrors.ErrDeviceIO.WrapError(err)
	}
	return nil
}

func (f *FlatFileDriver) Query() (Geometry, fatcore.DriverError) {
	return Geometry{SectorSize: f.sectorSize, SectorCount: f.sectorCount, IsFixed: true}, nil
}

func (f *FlatFileDriver) checkRange(start PhysicalBlock, count uint) fatcore.DriverError {
	if f.file == nil {
		return fatcoreerrors.ErrDeviceNotPresent
	}
	if uint64(start)+uint64(count) > f.sectorCount {
		return fatcoreerrors.ErrDeviceInvalidSector.WithMessage(
			"sector range extends past end of image")
	}
	return nil
}

func (f *FlatFileDriver) Read(start PhysicalBlock, count uint, dst []byte) fatcore.DriverError {
	if count == 0 {
		return nil
	}
	if err := f.checkRange(start, count); err != nil {
		return err
	}
	offset := int64(start) * int64(f.sectorSize)
	n, err := f.file.ReadAt(dst[:count*f.sectorSize], offset)
	if err != nil && err != io.EOF || uint(n) != count*f.sectorSize {
		return fatcoreerrors.ErrDeviceIO.WithMessage("short read")
	}
	return nil
}

func (f *FlatFileDriver) Write(start PhysicalBlock, count uint, src []byte) fatcore.DriverError {
	if count == 0 {
		return nil
	}
	if err := f.checkRange(start, count); err != nil {
		return err
	}
	offset := int64(start) * int64(f.sectorSize)
	n, err := f.file.WriteAt(src[:count*f.sectorSize], offset)
	if err != nil || uint(n) != count*f.sectorSize {
		return fatcoreerrors.ErrDeviceIO.WithMessage("short write")
	}
	return nil
}

// IOCtl supports a single control operation, "sync", which flushes the
// underlying file to stable storage.
func (f *FlatFileDriver) IOCtl(op int, arg any) (any, fatcore.DriverError) {
	if op == IOCtlSync {
		if f.file == nil {
			return nil, fatcoreerrors.ErrDeviceNotPresent
		}
		if err := f.file.Sync(); err != nil {
			return nil, fatcoreerrors.ErrDeviceIO.WrapError(err)
		}
		return nil, nil
	}
	return nil, fatcoreerrors.ErrNotImplemented
}

// IOCtlSync is the control-operation code for "flush to stable storage".
const IOCtlSync = 1
