package fatcore

// Stats is a pluggable, no-op-by-default observer a caller can attach to
// the buffer pool, FAT table, and journal to count the events spec §9's
// design notes call out for instrumentation, following the same small
// capability-interface shape as FSFeatures and DriverImplementation: a
// concrete type only needs to embed NoopStats and override the methods it
// cares about.
type Stats interface {
	// BufferAcquired is called each time a sector buffer is handed out of
	// the pool.
	BufferAcquired()
	// ClusterAllocated is called each time a single data cluster is claimed
	// from the FAT.
	ClusterAllocated(cluster uint64)
	// JournalReplayed is called once per mount-time journal replay, with
	// the number of records that were re-applied.
	JournalReplayed(recordCount int)
}

// NoopStats is a Stats implementation whose methods do nothing, embedded by
// callers that only want to override a subset of the interface.
type NoopStats struct{}

func (NoopStats) BufferAcquired()                 {}
func (NoopStats) ClusterAllocated(cluster uint64) {}
func (NoopStats) JournalReplayed(recordCount int) {}
