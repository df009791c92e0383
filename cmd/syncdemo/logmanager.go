package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/docsync/syncengine/internal/events"
	"github.com/docsync/syncengine/internal/model"
)

// logManager is a minimal events.Manager that logs every snapshot and
// online-state transition at info level, and every error at error
// level. A real SDK surface
// would fan these out to application listener callbacks instead;
// that's explicitly out of scope.
type logManager struct{}

var _ events.Manager = logManager{}

func (logManager) OnViewSnapshots(snapshots []events.ViewSnapshot) {
	for _, snap := range snapshots {
		log.WithFields(log.Fields{
			"collection": snap.Query.CollectionPath,
			"docs":       len(snap.Documents),
			"syncState":  snap.SyncState.String(),
			"fromCache":  snap.FromCache,
			"pending":    snap.HasPendingWrites,
		}).Info("view snapshot")
	}
}

func (logManager) OnError(q model.Query, err error) {
	log.WithField("collection", q.CollectionPath).WithError(err).Error("listen failed")
}

func (logManager) HandleOnlineStateChange(state model.OnlineState) {
	log.WithField("state", state.String()).Info("online state changed")
}
