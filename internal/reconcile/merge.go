package reconcile

import "github.com/steveyegge/parkd/internal/schema"

// MergeFavorites returns the union of local and remote ids (local order,
// then remote-only ids in remote order) and the ids missing locally.
// Duplicates are dropped.
func MergeFavorites(local, remote []string) (missing, union []string) {
	seen := make(map[string]struct{}, len(local)+len(remote))
	for _, id := range local {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		union = append(union, id)
	}
	for _, id := range remote {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		union = append(union, id)
		missing = append(missing, id)
	}
	return missing, union
}

// MergeReservations returns remote followed by the local reservations whose
// id is not in remote, each in its original order.
func MergeReservations(local, remote []*schema.Reservation) []*schema.Reservation {
	remoteIDs := schema.ReservationIDs(remote)
	merged := make([]*schema.Reservation, 0, len(local)+len(remote))
	merged = append(merged, remote...)
	for _, r := range local {
		if _, ok := remoteIDs[r.ID]; !ok {
			merged = append(merged, r)
		}
	}
	return merged
}
