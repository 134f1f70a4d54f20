package schema

import "fmt"

// UserProfile is the signed-in identity. Its ID partitions every
// favorites and reservations read and write.
type UserProfile struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	PhoneNumber  string  `json:"phone_number"`
	LicensePlate *string `json:"license_plate,omitempty"`
}

// Validate checks the identity fields.
func (p *UserProfile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Email == "" {
		return fmt.Errorf("email is required")
	}
	return nil
}
