package reconcile

import (
	"context"

	"github.com/steveyegge/parkd/internal/session"
)

// Run implements Reconciler.Run.
func (r *reconciler) Run(ctx context.Context) error {
	netCh, unsubscribeNet := r.network.Subscribe()
	defer unsubscribeNet()

	var sessCh <-chan session.Event
	if r.sessions != nil {
		ch, unsubscribe := r.sessions.Subscribe()
		defer unsubscribe()
		sessCh = ch
	}

	online := r.online()
	r.logger.Printf("Reconciler started (online=%v)", online)

	// A session restored before Run subscribed produced no event.
	if online {
		r.reconcileCurrent(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("Reconciler stopped")
			return ctx.Err()

		case st, ok := <-netCh:
			if !ok {
				netCh = nil
				continue
			}
			wasOnline := online
			online = st.Connected
			if online && !wasOnline {
				r.logger.Printf("Back online (%s), reconciling", st)
				r.reconcileCurrent(ctx)
			}

		case ev, ok := <-sessCh:
			if !ok {
				sessCh = nil
				continue
			}
			switch ev.Kind {
			case session.EventAcquired, session.EventRestored:
				r.ReconcileUser(ctx, ev.UserID)
			}
		}
	}
}

func (r *reconciler) reconcileCurrent(ctx context.Context) {
	if r.sessions == nil {
		return
	}
	r.ReconcileUser(ctx, r.sessions.UserID())
}
