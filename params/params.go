// Package params collects the tunable constants named in spec §6.
// They must be reproducible across implementations, so they live in
// one place rather than being scattered as local constants per
// package.
package params

import "time"

const (
	// K is the maximum number of live peers held by one KBucket.
	K = 8

	// Alpha is the parallelism factor for iterative lookups.
	Alpha = 3

	// DepthB gates the accelerated-lookup refinement close to the
	// local node: a bucket may split early (before it would otherwise
	// be forced to) only while depth < DepthB and depth is not a
	// multiple of DepthB.
	DepthB = 5

	// RedundantSaveCount is the number of nearest responded candidates
	// a STORE_VALUE lookup replicates to.
	RedundantSaveCount = 3

	// NodeFailedCommsBeforeStale is the number of consecutive failed
	// requests after which a node is considered stale and evicted.
	NodeFailedCommsBeforeStale = 2

	// KeysizeBits is the width of the identifier space.
	KeysizeBits = 160

	// SafePayloadSize is the largest UDP payload a Channel will send
	// or is guaranteed to receive in one piece (Ethernet MTU 1500 -
	// IPv6 40 - UDP 8).
	SafePayloadSize = 1452
)

// Time-based tunables.
const (
	// NodeInactiveTimeBeforeQuestionable is how long a node may go
	// unheard-from before it is considered questionable.
	NodeInactiveTimeBeforeQuestionable = 15 * time.Minute

	// PeriodicRefreshTimer is the engine's refresh-tick interval.
	PeriodicRefreshTimer = 6 * time.Second

	// BucketInactiveTimeBeforeRefresh is how long a bucket may go
	// without a structural update before its next refresh tick
	// triggers a targeted FIND_NODE into it.
	BucketInactiveTimeBeforeRefresh = 1200 * time.Second

	// RequestTimeout is the deadline given to every dispatcher-tracked
	// request.
	RequestTimeout = 2 * time.Second
)
