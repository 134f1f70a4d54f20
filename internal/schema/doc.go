// Package schema defines the records the sync engine moves between the local
// cache, the remote backend and the query engine.
//
// # Records
//
// Three record kinds are synchronized:
//
//   - Lot: a parking facility snapshot keyed by an opaque, stable id. Lots are
//     replaced wholesale on every successful refresh and are read-only to the
//     query engine.
//   - FavoriteEdge: a (user, lot) pair. Presence means "favorited"; there are
//     no other attributes worth merging.
//   - Reservation: a client-issued id, so a reservation created offline keeps
//     its identity when it is later pushed.
//
// UserProfile and Spot are supporting records: the profile is cached for
// offline session restore, spots are the reservable units priced per hour.
//
// # Nullable fields
//
// Space counts, facility flags and the remote update time are pointers. nil
// means "unknown", which is distinct from zero and from false:
//
//	lot.AvailableSpaces == nil  // vacancy not published
//	*lot.AvailableSpaces == 0   // full
//
// AvailableSpaces <= TotalSpaces is expected but never enforced.
//
// # Files
//
// Lots can be exchanged as a JSON array file (ReadLotsFile / WriteLotsFile),
// which is how a replacement seed dataset is supplied.
package schema
