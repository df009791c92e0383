package model

// TargetChange describes how a single target's server-confirmed
// membership changed within a RemoteEvent.
type TargetChange struct {
	TargetId TargetId

	// Added, Modified, and Removed are disjoint sets of keys the
	// server confirmed entered, stayed in, or left the target's result
	// set with this event.
	Added    []DocumentKey
	Modified []DocumentKey
	Removed  []DocumentKey

	// Current reports whether the target's CURRENT marker was set by
	// this event, i.e. the server has now sent every document
	// currently matching the target up to its resume point.
	Current bool

	// ResumeToken is an opaque cursor owned by the Local/Remote Store;
	// the Sync Engine only passes it through.
	ResumeToken []byte
}

// RemoteEvent is the unit of update delivered by the Remote Store's
// watch stream.
type RemoteEvent struct {
	// TargetChanges is keyed by TargetId; every target affected by
	// this event has an entry, even if the change sets are empty but
	// Current flipped.
	TargetChanges map[TargetId]TargetChange

	// DocumentUpdates carries the full MaybeDocument content for every
	// key touched by this event, regardless of which targets observed
	// it.
	DocumentUpdates map[DocumentKey]MaybeDocument

	synthetic map[DocumentKey]bool
}

// NewRemoteEvent returns an empty, ready-to-populate RemoteEvent.
func NewRemoteEvent() *RemoteEvent {
	return &RemoteEvent{
		TargetChanges:   make(map[TargetId]TargetChange),
		DocumentUpdates: make(map[DocumentKey]MaybeDocument),
	}
}

// WithSyntheticLimboDeletion marks ev as carrying a synthetic deletion
// for key, produced when a rejected limbo listen is purged by feeding
// a synthetic RemoteEvent back through the normal handling path. It
// returns ev for chaining.
func (ev *RemoteEvent) WithSyntheticLimboDeletion(key DocumentKey) *RemoteEvent {
	if ev.synthetic == nil {
		ev.synthetic = make(map[DocumentKey]bool)
	}
	ev.synthetic[key] = true
	return ev
}

// IsSyntheticLimboDeletion reports whether key's update in this event
// originated from a rejected limbo listen rather than the network.
func (ev *RemoteEvent) IsSyntheticLimboDeletion(key DocumentKey) bool {
	return ev.synthetic[key]
}
