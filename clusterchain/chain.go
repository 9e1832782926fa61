// Package clusterchain implements cluster-granularity reads and writes
// over a mounted volume's data region, and a linear byte-stream view over
// a single file's or directory's allocation chain. Grounded on the
// teacher's drivers/common/clusterio.go (ClusterStream) and
// blockstream.go (BlockStream), re-plumbed to go through the sector
// buffer pool instead of talking to a device directly.
package clusterchain

import (
	"github.com/dargueta/fatcore/buffer"
	fatcoreerrors "github.com/dargueta/fatcore/errors"
	"github.com/dargueta/fatcore/fat"
)

// SectorReadWriter is the minimal surface clusterchain needs from the
// volume layer: read/write sectorCount sectors starting at sector, through
// the shared buffer pool. The volume package supplies a concrete
// implementation backed by buffer.Pool + device.Device.
type SectorReadWriter interface {
	ReadSectors(sector fat.SectorID, count uint, dst []byte) fatcoreerrors.DriverError
	WriteSectors(sector fat.SectorID, count uint, src []byte) fatcoreerrors.DriverError
}

// Stream is a cluster-granularity view over a volume's data region,
// equivalent to the teacher's ClusterStream but addressed in fat.ClusterID
// / fat.SectorID terms and routed through a buffer pool.
type Stream struct {
	rw                SectorReadWriter
	sectorsPerCluster uint
	bytesPerCluster   uint
	firstDataSector   fat.SectorID
	firstValidCluster fat.ClusterID
	lastValidCluster  fat.ClusterID
}

// NewStream creates a cluster stream over a volume's data region.
func NewStream(rw SectorReadWriter, sectorsPerCluster uint, bytesPerCluster uint, firstDataSector fat.SectorID, totalClusters uint) *Stream {
	return &Stream{
		rw:                rw,
		sectorsPerCluster: sectorsPerCluster,
		bytesPerCluster:   bytesPerCluster,
		firstDataSector:   firstDataSector,
		firstValidCluster: fat.FirstDataCluster,
		lastValidCluster:  fat.FirstDataCluster + fat.ClusterID(totalClusters) - 1,
	}
}

// ClusterToSector returns the first sector of cluster.
func (s *Stream) ClusterToSector(cluster fat.ClusterID) (fat.SectorID, fatcoreerrors.DriverError) {
	if err := s.checkBounds(cluster, s.bytesPerCluster); err != nil {
		return 0, err
	}
	offset := uint(cluster-s.firstValidCluster) * s.sectorsPerCluster
	return s.firstDataSector + fat.SectorID(offset), nil
}

func (s *Stream) checkBounds(cluster fat.ClusterID, dataLength uint) fatcoreerrors.DriverError {
	if cluster < s.firstValidCluster || cluster > s.lastValidCluster {
		return fatcoreerrors.ErrInvalidCluster.WithMessage("cluster out of range for this volume")
	}
	if dataLength%s.bytesPerCluster != 0 {
		return fatcoreerrors.ErrInvalidArgument.WithMessage("data length must be a multiple of the cluster size")
	}
	clusterCount := dataLength / s.bytesPerCluster
	if uint(cluster)+clusterCount-1 > uint(s.lastValidCluster) {
		return fatcoreerrors.ErrInvalidCluster.WithMessage("read/write would extend past the end of the volume")
	}
	return nil
}

// ReadCluster reads count clusters' worth of bytes starting at cluster.
func (s *Stream) ReadCluster(cluster fat.ClusterID, count uint, dst []byte) fatcoreerrors.DriverError {
	if err := s.checkBounds(cluster, count*s.bytesPerCluster); err != nil {
		return err
	}
	sector, err := s.ClusterToSector(cluster)
	if err != nil {
		return err
	}
	return s.rw.ReadSectors(sector, count*s.sectorsPerCluster, dst)
}

// WriteCluster writes data (an exact multiple of the cluster size) to the
// clusters starting at cluster.
func (s *Stream) WriteCluster(cluster fat.ClusterID, data []byte) fatcoreerrors.DriverError {
	if err := s.checkBounds(cluster, uint(len(data))); err != nil {
		return err
	}
	sector, err := s.ClusterToSector(cluster)
	if err != nil {
		return err
	}
	sectorCount := s.sectorsPerCluster * (uint(len(data)) / s.bytesPerCluster)
	return s.rw.WriteSectors(sector, sectorCount, data)
}

// BytesPerCluster returns the volume's cluster size in bytes.
func (s *Stream) BytesPerCluster() uint { return s.bytesPerCluster }

// NewFixedRegionStream builds a Stream over a single fixed-size contiguous
// region that isn't cluster-addressed at all -- the FAT12/16 root
// directory, which lives in its own reserved sectors rather than a cluster
// chain. The whole region is modeled as one giant "cluster" so the existing
// Stream/ChainReader/ChainWriter machinery can address it without
// consulting a FAT table.
func NewFixedRegionStream(rw SectorReadWriter, startSector fat.SectorID, sectorCount uint, bytesPerSector uint) *Stream {
	return &Stream{
		rw:                rw,
		sectorsPerCluster: sectorCount,
		bytesPerCluster:   sectorCount * bytesPerSector,
		firstDataSector:   startSector,
		firstValidCluster: fat.FirstDataCluster,
		lastValidCluster:  fat.FirstDataCluster,
	}
}

// NewFixedChainReader wraps a fixed-region stream (see NewFixedRegionStream)
// as a read-only single-cluster chain, with no FAT table backing it.
func NewFixedChainReader(stream *Stream) *ChainReader {
	return &ChainReader{stream: stream, chain: []fat.ClusterID{fat.FirstDataCluster}}
}

// NewFixedChainWriter is the writable counterpart of NewFixedChainReader.
// Its chain cannot grow past its single fixed cluster; writing past the end
// of the region fails with ErrDirectoryFull instead of allocating, since there
// is no FAT table to allocate from.
func NewFixedChainWriter(stream *Stream) *ChainWriter {
	return &ChainWriter{ChainReader{stream: stream, chain: []fat.ClusterID{fat.FirstDataCluster}}}
}

// ChainReader provides a linear byte-stream view over a file's or
// directory's cluster chain: sequential and random-access reads that
// transparently cross cluster boundaries by consulting the FAT table for
// the next cluster.
type ChainReader struct {
	stream  *Stream
	table   *fat.Table
	chain   []fat.ClusterID
	cluster int // index into chain
}

// NewChainReader builds a reader over the full chain starting at
// firstCluster.
func NewChainReader(stream *Stream, table *fat.Table, firstCluster fat.ClusterID) (*ChainReader, fatcoreerrors.DriverError) {
	chain, err := table.ListChain(firstCluster)
	if err != nil && len(chain) == 0 {
		return nil, err
	}
	return &ChainReader{stream: stream, table: table, chain: chain}, nil
}

// ReadAt reads len(dst) bytes starting at byte offset off within the
// chain, same semantics as io.ReaderAt.
func (c *ChainReader) ReadAt(dst []byte, off int64) (int, fatcoreerrors.DriverError) {
	bytesPerCluster := int64(c.stream.BytesPerCluster())
	total := 0
	for total < len(dst) {
		clusterIndex := int((off + int64(total)) / bytesPerCluster)
		if clusterIndex >= len(c.chain) {
			break
		}
		offsetInCluster := int((off + int64(total)) % bytesPerCluster)

		clusterBuf := make([]byte, bytesPerCluster)
		if err := c.stream.ReadCluster(c.chain[clusterIndex], 1, clusterBuf); err != nil {
			return total, err
		}

		n := copy(dst[total:], clusterBuf[offsetInCluster:])
		total += n
	}
	return total, nil
}

// Chain returns the full list of clusters backing this reader, in order.
func (c *ChainReader) Chain() []fat.ClusterID { return c.chain }

// ChainBytesPerCluster returns the volume's cluster size in bytes, so
// callers can size buffers without reaching into the Stream directly.
func (c *ChainReader) ChainBytesPerCluster() uint { return c.stream.BytesPerCluster() }

// ChainWriter extends ChainReader with the ability to grow a chain on
// demand as data is written past its current end, allocating new clusters
// from the FAT table.
type ChainWriter struct {
	ChainReader
}

// NewChainWriter builds a writer over the chain starting at firstCluster.
// If firstCluster is 0 (no clusters allocated yet), the chain starts
// empty and the first WriteAt call allocates its first cluster.
func NewChainWriter(stream *Stream, table *fat.Table, firstCluster fat.ClusterID) (*ChainWriter, fatcoreerrors.DriverError) {
	if firstCluster == 0 {
		return &ChainWriter{ChainReader{stream: stream, table: table}}, nil
	}
	r, err := NewChainReader(stream, table, firstCluster)
	if err != nil {
		return nil, err
	}
	return &ChainWriter{*r}, nil
}

// FirstCluster returns the chain's first cluster, or 0 if nothing has been
// allocated yet.
func (c *ChainWriter) FirstCluster() fat.ClusterID {
	if len(c.chain) == 0 {
		return 0
	}
	return c.chain[0]
}

// growTo ensures the chain has at least clusterIndex+1 clusters, allocating
// new ones from the FAT table as needed.
func (c *ChainWriter) growTo(clusterIndex int) fatcoreerrors.DriverError {
	needed := clusterIndex + 1 - len(c.chain)
	if needed <= 0 {
		return nil
	}
	if c.table == nil {
		// A fixed-region chain (the FAT12/16 root directory) has no FAT
		// table to allocate from; its single cluster already spans the
		// whole region, so needing more means the root directory itself
		// is out of entry slots -- distinct from the volume running out of
		// data clusters.
		return fatcoreerrors.ErrDirectoryFull.WithMessage(
			"fixed-size root directory has no free entry slots")
	}

	if len(c.chain) == 0 {
		first, err := c.table.AllocChain(uint(needed), 0)
		if err != nil {
			return err
		}
		chain, err := c.table.ListChain(first)
		if err != nil && len(chain) == 0 {
			return err
		}
		c.chain = chain
		return nil
	}

	tail := c.chain[len(c.chain)-1]
	if _, err := c.table.Extend(tail, uint(needed)); err != nil {
		return err
	}
	chain, err := c.table.ListChain(c.chain[0])
	if err != nil && len(chain) == 0 {
		return err
	}
	c.chain = chain
	return nil
}

// WriteAt writes src at byte offset off within the chain, growing the
// chain as needed, same semantics as io.WriterAt.
func (c *ChainWriter) WriteAt(src []byte, off int64) (int, fatcoreerrors.DriverError) {
	bytesPerCluster := int64(c.stream.BytesPerCluster())
	total := 0
	for total < len(src) {
		clusterIndex := int((off + int64(total)) / bytesPerCluster)
		if err := c.growTo(clusterIndex); err != nil {
			return total, err
		}
		offsetInCluster := int((off + int64(total)) % bytesPerCluster)

		clusterBuf := make([]byte, bytesPerCluster)
		if err := c.stream.ReadCluster(c.chain[clusterIndex], 1, clusterBuf); err != nil {
			return total, err
		}
		n := copy(clusterBuf[offsetInCluster:], src[total:])
		if err := c.stream.WriteCluster(c.chain[clusterIndex], clusterBuf); err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Truncate shrinks the chain to hold exactly newClusterCount clusters,
// freeing the tail. If newClusterCount is 0, the entire chain is freed.
func (c *ChainWriter) Truncate(newClusterCount int) fatcoreerrors.DriverError {
	if newClusterCount >= len(c.chain) {
		return nil
	}
	if newClusterCount == 0 {
		if len(c.chain) == 0 {
			return nil
		}
		if err := c.table.Free(c.chain[0]); err != nil {
			return err
		}
		c.chain = nil
		return nil
	}

	keepTail := c.chain[newClusterCount-1]
	freeHead := c.chain[newClusterCount]
	if err := c.table.Free(freeHead); err != nil {
		return err
	}
	if err := c.table.MarkEndOfChain(keepTail); err != nil {
		return err
	}
	c.chain = c.chain[:newClusterCount]
	return nil
}
