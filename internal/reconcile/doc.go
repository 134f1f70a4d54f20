// Package reconcile keeps the local cache and the remote backend converging
// for user-authored data: favorites and reservations.
//
// Overview
//
// Every mutation lands in the local cache first and is durable before any
// network call. When the device is online the mutation is then pushed. When
// it is offline nothing else happens; the next reconciliation pass carries
// the change to the backend.
//
//	caller ──► Reconciler ──► Cache (always, first)
//	                     └──► Remote (only when online)
//
// Merge policies
//
// Favorites are a set. Reconciliation unions the local and remote sets,
// adds the remote-only ids locally, never deletes local-only ids, and
// pushes the union back as an overwrite:
//
//	U = L ∪ R      local += U \ L      remote := U
//
// Reservations are keyed by id. The remote record wins for any id present
// on both sides and local-only records are kept:
//
//	M = R ∪ (L \ ids(R))      local := M
//
// M is not pushed. The next create, cancel or complete sends the full local
// list, and the backend prunes ids that are absent from it.
//
// Triggers
//
// Run subscribes to the reachability monitor and the session manager and
// reconciles the signed-in user on every offline-to-online transition and
// every login or restore. Failures during these background passes are
// logged and swallowed; failures of user-initiated calls are returned.
package reconcile
