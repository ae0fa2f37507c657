package models

import "time"

type ListingStatus string

const (
	ListingStatusAvailable   ListingStatus = "disponivel"
	ListingStatusPending     ListingStatus = "pendente"
	ListingStatusRented      ListingStatus = "alugado"
	ListingStatusUnavailable ListingStatus = "indisponivel"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusAvailable, ListingStatusPending, ListingStatusRented, ListingStatusUnavailable:
		return true
	}
	return false
}

// Editable reports whether the listing may be modified or removed by its
// owner. Listings engaged in a rental are locked until the rental ends.
func (s ListingStatus) Editable() bool {
	return s == ListingStatusAvailable || s == ListingStatusUnavailable
}

type ListingType string

const (
	ListingTypeApartment ListingType = "apartamento"
	ListingTypeHouse     ListingType = "casa"
	ListingTypeStudio    ListingType = "kitnet"
)

func (t ListingType) Valid() bool {
	return t == ListingTypeApartment || t == ListingTypeHouse || t == ListingTypeStudio
}

type Listing struct {
	ID             string
	OwnerID        string
	Title          string
	Description    string
	Latitude       float64
	Longitude      float64
	Address        string
	Price          float64
	Type           ListingType
	Status         ListingStatus
	Bedrooms       int
	Bathrooms      int
	Furnished      bool
	PetsAllowed    bool
	Garage         bool
	Area           float64
	DistanceSede   float64
	DistanceQuinta float64
	Images         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
