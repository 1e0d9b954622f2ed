package domain

import "time"

type ProductKind string

const (
	ProductKindTour     ProductKind = "tour"
	ProductKindEvent    ProductKind = "event"
	ProductKindTransfer ProductKind = "transfer"
	ProductKindVehicle  ProductKind = "vehicle"
)

func (k ProductKind) IsValid() bool {
	switch k {
	case ProductKindTour, ProductKindEvent, ProductKindTransfer, ProductKindVehicle:
		return true
	default:
		return false
	}
}

// Product is a bookable offering. It owns zero or more time slots.
type Product struct {
	ID        int64
	Kind      ProductKind
	Name      string
	CreatedAt time.Time
}
