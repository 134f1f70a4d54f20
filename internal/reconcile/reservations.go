package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/schema"
)

// CreateReservation implements Reconciler.CreateReservation.
func (r *reconciler) CreateReservation(ctx context.Context, userID, spotID string, start time.Time, duration time.Duration) (*schema.Reservation, error) {
	if userID == "" {
		return nil, errs.ErrNotLoggedIn
	}
	spot, ok := schema.FindSpot(spotID)
	if !ok {
		return nil, errs.E(errs.KindNotFound, fmt.Sprintf("unknown spot %s", spotID), nil)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive (got %s)", duration)
	}

	unlock := r.lock("spot:" + spotID)
	defer unlock()

	existing, err := r.store.ActiveReservationForSpotContext(ctx, spotID)
	if err != nil {
		return nil, errs.Wrapf(err, "failed to check spot %s", spotID)
	}
	if existing != nil {
		return nil, errs.Wrapf(errs.ErrSpotTaken, "spot %s", spot.Number)
	}

	now := r.clock.Now().UTC().Truncate(time.Second)
	start = start.UTC().Truncate(time.Second)
	end := start.Add(duration)
	res := &schema.Reservation{
		ID:            uuid.NewString(),
		UserID:        userID,
		SpotID:        spotID,
		StartTime:     start,
		EndTime:       &end,
		Status:        schema.StatusActive,
		TotalCost:     cost(spot.PricePerHour, duration),
		PaymentStatus: schema.PaymentPending,
		UpdatedAt:     now,
	}

	if err := r.store.UpsertReservationContext(ctx, res); err != nil {
		return nil, errs.Wrap(err, "failed to save reservation")
	}
	r.logger.Printf("Reserved spot %s for %s (%s, $%.2f)", spot.Number, userID, duration, res.TotalCost)

	r.pushReservations(ctx, userID)
	return res, nil
}

// CancelReservation implements Reconciler.CancelReservation.
func (r *reconciler) CancelReservation(ctx context.Context, userID, reservationID string) (*schema.Reservation, error) {
	return r.finish(ctx, userID, reservationID, schema.StatusCancelled)
}

// CompleteReservation implements Reconciler.CompleteReservation.
func (r *reconciler) CompleteReservation(ctx context.Context, userID, reservationID string) (*schema.Reservation, error) {
	return r.finish(ctx, userID, reservationID, schema.StatusCompleted)
}

func (r *reconciler) finish(ctx context.Context, userID, reservationID string, status schema.ReservationStatus) (*schema.Reservation, error) {
	if userID == "" {
		return nil, errs.ErrNotLoggedIn
	}

	res, err := r.store.GetReservationContext(ctx, reservationID)
	if err != nil {
		return nil, errs.Wrapf(err, "failed to load reservation %s", reservationID)
	}
	if res == nil || res.UserID != userID {
		return nil, errs.E(errs.KindNotFound, fmt.Sprintf("reservation %s not found", reservationID), nil)
	}

	unlock := r.lock("spot:" + res.SpotID)
	defer unlock()

	// Re-read under the spot lock; a concurrent finish may have won.
	res, err = r.store.GetReservationContext(ctx, reservationID)
	if err != nil {
		return nil, errs.Wrapf(err, "failed to load reservation %s", reservationID)
	}
	if res == nil {
		return nil, errs.E(errs.KindNotFound, fmt.Sprintf("reservation %s not found", reservationID), nil)
	}
	if !res.IsActive() {
		return nil, errs.E(errs.KindNotFound, fmt.Sprintf("reservation %s is already %s", reservationID, res.Status), nil)
	}

	now := r.clock.Now().UTC().Truncate(time.Second)
	res.Status = status
	res.UpdatedAt = now
	if status == schema.StatusCompleted {
		end := now
		if end.Before(res.StartTime) {
			end = res.StartTime
		}
		res.EndTime = &end
	}

	if err := r.store.UpsertReservationContext(ctx, res); err != nil {
		return nil, errs.Wrapf(err, "failed to save reservation %s", reservationID)
	}
	r.logger.Printf("Reservation %s %s", reservationID, status)

	r.pushReservations(ctx, userID)
	return res, nil
}

// pushReservations sends the full local list when online. Failures are
// logged; the next mutation or reconciliation retries.
func (r *reconciler) pushReservations(ctx context.Context, userID string) {
	r.notify(MsgReservationsChanged, map[string]interface{}{"user_id": userID})

	if !r.online() {
		r.logger.Printf("Offline: reservations for %s saved locally", userID)
		return
	}
	rs, err := r.store.ListReservationsContext(ctx, userID)
	if err != nil {
		r.logger.Printf("WARNING: failed to read reservations for push: %v", err)
		return
	}
	if err := r.remote.SyncReservations(ctx, userID, rs); err != nil {
		r.logger.Printf("WARNING: failed to push reservations: %v", err)
	}
}

// cost is price per hour times booked hours, rounded to cents.
func cost(pricePerHour float64, d time.Duration) float64 {
	return math.Round(pricePerHour*d.Hours()*100) / 100
}
