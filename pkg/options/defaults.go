package options

const (
	// DefaultSocketAddr is the cache listener's default bind address.
	DefaultSocketAddr = ":11211"

	// DefaultAdminSocketAddr is the admin listener's default bind address.
	DefaultAdminSocketAddr = ":11212"

	// DefaultNevent is the default max events drained per poll call.
	DefaultNevent = 1024

	// DefaultTimeoutMS is the default reactor poll timeout in milliseconds.
	DefaultTimeoutMS = 100

	// DefaultWorkerThreads selects the single-worker topology.
	DefaultWorkerThreads = 1

	// DefaultHeapSize is the default total arena size (1GiB).
	DefaultHeapSize uint64 = 1 << 30

	// DefaultSegmentSize is the default fixed segment size (1MiB).
	DefaultSegmentSize uint32 = 1 << 20

	// DefaultHashPower is log2 of the default primary bucket count
	// (2^16 buckets).
	DefaultHashPower uint = 16

	// DefaultOverflowFactor scales the overflow pool relative to the
	// primary bucket count.
	DefaultOverflowFactor = 0.1

	// DefaultEviction is the default reclamation policy.
	DefaultEviction = "merge"

	// DefaultMergeMax is the default merge-eviction scan window.
	DefaultMergeMax = 8

	// DefaultMergeTarget is the default count of least-utilized segments
	// packed per merge attempt.
	DefaultMergeTarget = 4

	// DefaultCompactTarget is the default fallback-to-FIFO occupancy
	// threshold.
	DefaultCompactTarget = 0.8

	// DefaultTimeType selects Unix absolute timestamps on the wire.
	DefaultTimeType = "unix"

	// DefaultKlogSampleRate logs every request (no sampling).
	DefaultKlogSampleRate = 1
)

// NewDefaultOptions returns the built-in configuration: single worker,
// 1GiB heap in 1MiB segments, merge eviction, no TLS, no persistence.
func NewDefaultOptions() Options {
	return Options{
		Server: ServerOptions{
			SocketAddr:     DefaultSocketAddr,
			Nevent:         DefaultNevent,
			TimeoutMS:      DefaultTimeoutMS,
			KlogSampleRate: DefaultKlogSampleRate,
		},
		Worker: WorkerOptions{
			Threads:   DefaultWorkerThreads,
			Nevent:    DefaultNevent,
			TimeoutMS: DefaultTimeoutMS,
		},
		Seg: SegOptions{
			HeapSize:       DefaultHeapSize,
			SegmentSize:    DefaultSegmentSize,
			HashPower:      DefaultHashPower,
			OverflowFactor: DefaultOverflowFactor,
			Eviction:       DefaultEviction,
			MergeMax:       DefaultMergeMax,
			MergeTarget:    DefaultMergeTarget,
			CompactTarget:  DefaultCompactTarget,
		},
		Time:            TimeOptions{TimeType: DefaultTimeType},
		AdminSocketAddr: DefaultAdminSocketAddr,
	}
}
