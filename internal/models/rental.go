package models

import "time"

type RentalStatus string

const (
	RentalStatusPending  RentalStatus = "pendente"
	RentalStatusActive   RentalStatus = "ativo"
	RentalStatusFinished RentalStatus = "finalizado"
)

// Open reports whether the rental still engages its listing and tenant.
func (s RentalStatus) Open() bool {
	return s == RentalStatusPending || s == RentalStatusActive
}

type Rental struct {
	ID        string
	ListingID string
	TenantID  string
	Status    RentalStatus
	StartDate time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}
