package schema

import (
	"fmt"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

// Valid reservation statuses.
const (
	StatusActive    ReservationStatus = "active"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
)

// PaymentStatus tracks settlement of a reservation.
type PaymentStatus string

// Valid payment statuses.
const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Reservation is a booking of one spot. The id is generated by the client.
type Reservation struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	SpotID        string            `json:"spot_id"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       *time.Time        `json:"end_time,omitempty"`
	Status        ReservationStatus `json:"status"`
	TotalCost     float64           `json:"total_cost"`
	PaymentStatus PaymentStatus     `json:"payment_status"`

	// UpdatedAt is informational; merges never compare it.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks required fields and the closed enums.
func (r *Reservation) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.SpotID == "" {
		return fmt.Errorf("spot_id is required")
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if !IsValidStatus(r.Status) {
		return fmt.Errorf("invalid status: %s (must be one of: active, completed, cancelled)", r.Status)
	}
	if !IsValidPaymentStatus(r.PaymentStatus) {
		return fmt.Errorf("invalid payment_status: %s (must be one of: pending, paid, refunded)", r.PaymentStatus)
	}
	if r.TotalCost < 0 {
		return fmt.Errorf("total_cost must not be negative (got %f)", r.TotalCost)
	}
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		return fmt.Errorf("end_time must not be before start_time")
	}
	return nil
}

// IsActive reports whether the reservation still holds its spot.
func (r *Reservation) IsActive() bool {
	return r.Status == StatusActive
}

// IsValidStatus checks if a status is one of the allowed values.
func IsValidStatus(s ReservationStatus) bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsValidPaymentStatus checks if a payment status is one of the allowed values.
func IsValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// ReservationIDs returns the ids of rs as a set.
func ReservationIDs(rs []*Reservation) map[string]struct{} {
	ids := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		ids[r.ID] = struct{}{}
	}
	return ids
}
