// Package device implements the pluggable block-device abstraction the
// FAT engine is layered over: a DeviceDriver contract for hardware/media
// access, and a Device object that tracks state, geometry, and serializes
// sector I/O against one driver instance.
package device

import (
	"sync"

	"github.com/dargueta/fatcore"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
)

// LogicalBlock addresses a block within the logical space a caller sees
// (e.g. sectors relative to the start of a partition).
type LogicalBlock uint

// PhysicalBlock addresses a block in the underlying device's own address
// space (e.g. absolute sectors on the whole disk image).
type PhysicalBlock uint

// Geometry is what a driver reports in response to Query(): the fixed shape
// of the medium it controls.
type Geometry struct {
	SectorSize  uint
	SectorCount uint64
	IsFixed     bool
}

// DeviceDriver is the contract every hardware/media driver implements. All
// sector counts are unsigned; count=0 is defined as a no-op. Implementations
// must make Read/Write atomic at sector granularity: either the whole sector
// lands, or the call reports failure and the sector's prior contents are
// unspecified but the caller can assume nothing partial was observed through
// this interface.
type DeviceDriver interface {
	Open() fatcore.DriverError
	Close() fatcore.DriverError
	Read(startSector PhysicalBlock, count uint, dst []byte) fatcore.DriverError
	Write(startSector PhysicalBlock, count uint, src []byte) fatcore.DriverError
	Query() (Geometry, fatcore.DriverError)
	IOCtl(op int, arg any) (any, fatcore.DriverError)
}

// State is the device lifecycle state machine described in spec §4.1/§3.
type State int

const (
	StateClosed State = iota
	StatePresent
	StateMounted
)

// Device wraps a driver instance plus a unit number, tracking lifecycle
// state and serializing all I/O issued against it, per spec §4.1's
// "each device instance carries a mutex-like lock; all I/O against it is
// serialized" and the lock hierarchy in §5 (per-device lock is level 3,
// acquired after the per-volume lock and before any per-handle lock).
type Device struct {
	DriverName string
	UnitNbr    uint

	mu     sync.Mutex
	driver DeviceDriver
	state  State
	geom   Geometry
}

// New creates a Device bound to a driver instance. The device starts
// Closed; call Open to transition it to Present.
func New(driverName string, unitNbr uint, driver DeviceDriver) *Device {
	return &Device{DriverName: driverName, UnitNbr: unitNbr, driver: driver, state: StateClosed}
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) Geometry() Geometry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.geom
}

// Open opens the underlying driver and queries its geometry, transitioning
// the device to Present on success.
func (d *Device) Open() fatcore.DriverError {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateClosed {
		return fatcoreerrors.ErrAlreadyInProgress.WithMessage("device already open")
	}

	if err := d.driver.Open(); err != nil {
		return err
	}

	geom, err := d.driver.Query()
	if err != nil {
		_ = d.driver.Close()
		return err
	}

	d.geom = geom
	d.state = StatePresent
	return nil
}

// Close closes the underlying driver. Any volumes mounted on this device
// must already have been unmounted by the caller; Close does not cascade.
func (d *Device) Close() fatcore.DriverError {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return nil
	}
	if err := d.driver.Close(); err != nil {
		return err
	}
	d.state = StateClosed
	return nil
}

// Refresh re-queries the driver. If the reported geometry changed (sector
// count, most commonly signalling removable media swapped out from under
// us), the device drops back to Present and the caller must treat every
// volume mounted on it as invalidated, per spec §4.1.
//
// The second return value is true iff the geometry changed and a remount is
// required.
func (d *Device) Refresh() (bool, fatcore.DriverError) {
	d.mu.Lock()
	defer d.mu.Unlock()

	newGeom, err := d.driver.Query()
	if err != nil {
		return false, err
	}

	changed := newGeom != d.geom
	d.geom = newGeom
	if changed {
		d.state = StatePresent
	}
	return changed, nil
}

// MarkMounted records that a volume now has this device mounted. Purely
// bookkeeping -- the device layer has no notion of which volume.
func (d *Device) MarkMounted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StatePresent {
		d.state = StateMounted
	}
}

// ReadSectors reads count sectors starting at startSector, serialized behind
// the device's lock. count=0 is a no-op per spec §4.1.
func (d *Device) ReadSectors(startSector PhysicalBlock, count uint, dst []byte) fatcore.DriverError {
	if count == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return fatcoreerrors.ErrVolumeNotOpen
	}
	return d.driver.Read(startSector, count, dst)
}

// WriteSectors writes count sectors starting at startSector, serialized
// behind the device's lock. count=0 is a no-op per spec §4.1.
func (d *Device) WriteSectors(startSector PhysicalBlock, count uint, src []byte) fatcore.DriverError {
	if count == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return fatcoreerrors.ErrVolumeNotOpen
	}
	return d.driver.Write(startSector, count, src)
}

// IOCtl forwards a driver-specific control operation.
func (d *Device) IOCtl(op int, arg any) (any, fatcore.DriverError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driver.IOCtl(op, arg)
}
