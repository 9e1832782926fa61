// Package buffer implements the shared sector-buffer pool: a fixed set of
// sector-sized buffers shared across mounted volumes, with dirty tracking
// and non-blocking acquisition, grounded on the teacher's block-cache
// bitmap design (github.com/boljen/go-bitmap) but reshaped from "one cache
// per stream" into "one pool, many volumes, acquire never blocks".
package buffer

import (
	"sync"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/fatcore"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
)

// SectorType informs the (currently simplistic) eviction/flush-ordering
// policy: management data and FAT tables are more valuable to keep resident
// than raw file data, per spec §3.
type SectorType int

const (
	SectorTypeMgmt SectorType = iota
	SectorTypeDirEntry
	SectorTypeFile
	SectorTypeFatTable
)

// VolumeID identifies the mounted volume a buffer's sector belongs to. The
// pool has no notion of volumes beyond this opaque tag; the volume package
// supplies it.
type VolumeID uint

// FetchSectorFunc reads one sector's worth of bytes from backing storage
// into buf.
type FetchSectorFunc func(volID VolumeID, sectorNbr uint64, buf []byte) fatcore.DriverError

// FlushSectorFunc writes one sector's worth of bytes from buf to backing
// storage.
type FlushSectorFunc func(volID VolumeID, sectorNbr uint64, buf []byte) fatcore.DriverError

// SectorBuffer is one slot in the pool: a sector-sized byte buffer plus the
// bookkeeping fields from spec §3. PinCount>0 prevents the slot from being
// released back to the free list out from under its holder.
type SectorBuffer struct {
	data      []byte
	volID     VolumeID
	sectorNbr uint64
	kind      SectorType
	dirty     bool
	pinCount  int
	bound     bool
	index     int
}

// Data returns the buffer's backing bytes, valid only while the holder has
// not released the buffer.
func (b *SectorBuffer) Data() []byte { return b.data }

func (b *SectorBuffer) SectorNbr() uint64   { return b.sectorNbr }
func (b *SectorBuffer) VolumeID() VolumeID  { return b.volID }
func (b *SectorBuffer) Kind() SectorType    { return b.kind }
func (b *SectorBuffer) IsDirty() bool       { return b.dirty }

// Pool is the shared sector-buffer pool described in spec §4.2. It is
// sized at construction (the caller is expected to size it to at least
// 2*volumeCount, per spec §4.2) and never grows; Acquire fails transiently
// with ErrNoBufferAvailable instead of blocking, so nested acquisitions
// (e.g. a FAT-table sector fetched while scanning a directory) cannot
// deadlock against each other.
type Pool struct {
	mu            sync.Mutex
	sectorSize    uint
	buffers       []SectorBuffer
	used          bitmap.Bitmap
	fetch         FetchSectorFunc
	flush         FlushSectorFunc
	stats         fatcore.Stats
}

// NewPool creates a pool of `count` sector-sized buffers.
func NewPool(sectorSize uint, count int, fetch FetchSectorFunc, flush FlushSectorFunc) *Pool {
	p := &Pool{
		sectorSize: sectorSize,
		buffers:    make([]SectorBuffer, count),
		used:       bitmap.NewSlice(count),
		fetch:      fetch,
		flush:      flush,
		stats:      fatcore.NoopStats{},
	}
	for i := range p.buffers {
		p.buffers[i].data = make([]byte, sectorSize)
		p.buffers[i].index = i
	}
	return p
}

// SetStats attaches an observer to be notified of buffer-acquire events.
// Passing nil restores the default no-op observer.
func (p *Pool) SetStats(stats fatcore.Stats) {
	if stats == nil {
		stats = fatcore.NoopStats{}
	}
	p.mu.Lock()
	p.stats = stats
	p.mu.Unlock()
}

// Size returns the number of buffer slots in the pool.
func (p *Pool) Size() int { return len(p.buffers) }

// Acquire returns an unbound buffer from the pool, or ErrNoBufferAvailable
// if every slot is currently held. It does not block, per spec §4.2's
// explicit "the core does not block on buffer exhaustion" policy.
func (p *Pool) Acquire() (*SectorBuffer, fatcore.DriverError) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.buffers {
		if !p.used.Get(i) {
			p.used.Set(i, true)
			buf := &p.buffers[i]
			buf.bound = false
			buf.pinCount = 0
			buf.dirty = false
			p.stats.BufferAcquired()
			return buf, nil
		}
	}
	return nil, fatcoreerrors.ErrNoBufferAvailable
}

// Load binds buf to sectorNbr on volume volID. If mustRead is true and the
// buffer isn't already bound to that exact sector, any dirty contents are
// flushed first and the sector's data is fetched fresh, per spec §4.2.
func (p *Pool) Load(buf *SectorBuffer, volID VolumeID, sectorNbr uint64, kind SectorType, mustRead bool) fatcore.DriverError {
	if buf.bound && buf.volID == volID && buf.sectorNbr == sectorNbr {
		buf.kind = kind
		return nil
	}

	if buf.dirty {
		if err := p.flushLocked(buf); err != nil {
			return err
		}
	}

	buf.volID = volID
	buf.sectorNbr = sectorNbr
	buf.kind = kind
	buf.bound = true
	buf.dirty = false

	if mustRead {
		if err := p.fetch(volID, sectorNbr, buf.data); err != nil {
			return err
		}
	}
	return nil
}

// MarkDirty flags buf as needing to be written back before its slot can be
// reused for a different sector.
func (p *Pool) MarkDirty(buf *SectorBuffer) {
	buf.dirty = true
}

// Pin prevents buf's slot from being released, for the duration of a
// multi-step operation that must not let this sector's data move.
func (p *Pool) Pin(buf *SectorBuffer) {
	buf.pinCount++
}

// Unpin reverses a prior Pin call.
func (p *Pool) Unpin(buf *SectorBuffer) {
	if buf.pinCount > 0 {
		buf.pinCount--
	}
}

func (p *Pool) flushLocked(buf *SectorBuffer) fatcore.DriverError {
	if !buf.dirty {
		return nil
	}
	if err := p.flush(buf.volID, buf.sectorNbr, buf.data); err != nil {
		return err
	}
	buf.dirty = false
	return nil
}

// Flush writes buf's contents back to storage if dirty, leaving it bound
// and clean.
func (p *Pool) Flush(buf *SectorBuffer) fatcore.DriverError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(buf)
}

// Release returns buf to the free list. A dirty buffer is flushed first, per
// spec §4.2's "a buffer marked dirty must be flushed before release to a
// different sector." Releasing a pinned buffer is refused.
func (p *Pool) Release(buf *SectorBuffer) fatcore.DriverError {
	p.mu.Lock()
	defer p.mu.Unlock()

	if buf.pinCount > 0 {
		return fatcoreerrors.ErrBusy.WithMessage("buffer is pinned")
	}
	if err := p.flushLocked(buf); err != nil {
		return err
	}
	buf.bound = false
	p.used.Set(buf.index, false)
	return nil
}

// FlushAll flushes every dirty, bound buffer currently in the pool. Used at
// volume-unmount time and journal commit points.
func (p *Pool) FlushAll() fatcore.DriverError {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.buffers {
		if p.used.Get(i) {
			if err := p.flushLocked(&p.buffers[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// DiscardVolume releases every buffer bound to volID without flushing --
// used to simulate power loss / crash-consistency tests, and on forced
// unmount after structural corruption is detected.
func (p *Pool) DiscardVolume(volID VolumeID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.buffers {
		if p.used.Get(i) && p.buffers[i].volID == volID {
			p.buffers[i].bound = false
			p.buffers[i].dirty = false
			p.used.Set(i, false)
		}
	}
}
