package model

// TargetId identifies a server-side subscription ("target"). Two
// disjoint allocator ranges exist globally: one owned by the Local
// Store (user listens), one owned by the Sync Engine (limbo
// resolutions). See internal/targetid for the allocation scheme.
type TargetId int32

// Purpose records why a QueryData was allocated.
type Purpose int

// Supported allocation purposes.
const (
	PurposeListen Purpose = iota
	PurposeLimboResolution
	PurposeExistenceFilterMismatch
)

// SequenceNumber orders QueryData allocations for a given Local Store.
type SequenceNumber int64

// InvalidSequenceNumber is used for targets (such as limbo
// resolutions) that are never persisted across restarts and therefore
// need no resume ordering.
const InvalidSequenceNumber SequenceNumber = -1

// QueryData is the record returned by the Local Store when it
// allocates a Query.
type QueryData struct {
	Query          Query
	TargetId       TargetId
	SequenceNumber SequenceNumber
	Purpose        Purpose
}

// BatchId identifies an atomic group of mutations submitted together.
// BatchIds increase monotonically per client session.
type BatchId int64

// UnknownBatchId is returned by the Local Store when there is no
// outstanding unacknowledged batch.
const UnknownBatchId BatchId = -1

// OnlineState is the Remote Store's view of network connectivity.
type OnlineState int

// Supported online states.
const (
	OnlineStateUnknown OnlineState = iota
	OnlineStateOnline
	OnlineStateOffline
)

func (s OnlineState) String() string {
	switch s {
	case OnlineStateOnline:
		return "Online"
	case OnlineStateOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// SyncState is the View's notion of whether its result is backed by
// a CURRENT server acknowledgment or only by local knowledge.
type SyncState int

// Supported sync states.
const (
	SyncStateLocal SyncState = iota
	SyncStateSynced
)

func (s SyncState) String() string {
	if s == SyncStateSynced {
		return "Synced"
	}
	return "Local"
}
