package engine

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// HandleCredentialChange reacts to the application's signed-in user
// changing.
func (e *Engine) HandleCredentialChange(ctx context.Context, user string) {
	e.assertCallbackRegistered("handleCredentialChange")
	if user != e.currentUser {
		// Cancel pending-writes waiters first: they belonged to the
		// previous user.
		e.callback.CancelAllPending()
		e.callback.AbandonUser(e.currentUser)

		e.currentUser = user

		changes, err := e.local.HandleUserChange(ctx, user)
		if err != nil {
			e.surfaceLocalFailure(err, log.Fields{"op": "handleUserChange", "user": user})
		} else if err := e.emitNewSnapsAndNotifyLocalStore(ctx, changes, nil); err != nil {
			e.surfaceLocalFailure(err, log.Fields{"op": "emitNewSnaps", "user": user})
		}
	}

	e.remote.HandleCredentialChange(ctx)
}
