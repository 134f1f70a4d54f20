// Package remote is the client for the per-user document backend.
//
// The backend is a Turso (libSQL) database reached over HTTPS. User data is
// stored as JSON documents keyed by (user_id, collection, doc_id):
//
//	profile       one document per user, doc_id = user id
//	favorites     one document per favorited lot, doc_id = lot id
//	reservations  one document per reservation, doc_id = reservation id
//
// Accounts hold bcrypt password hashes; Login issues an opaque session
// token that every data call checks against the requested user id.
//
// Every call runs under its own timeout. Failures are typed with
// internal/errs: unreachable backend and timeouts are KindNetwork, a
// missing or foreign session is KindUnauthorized, undecodable documents are
// KindMalformed, and other backend failures are KindTransport.
//
// Lots do not live in the document store. FetchLots delegates to the
// public facilities source.
package remote
