package api

import (
	"time"

	"github.com/jinzhu/copier"
)

type holdRequest struct {
	Token    string  `json:"token" binding:"required,max=128"`
	PoolID   int64   `json:"pool_id" binding:"required,gt=0"`
	Quantity int     `json:"quantity" binding:"gte=0"`
	UnitIDs  []int64 `json:"unit_ids" binding:"omitempty,dive,gt=0"`
}

type createProductRequest struct {
	Kind string `json:"kind" binding:"required,oneof=tour event transfer vehicle"`
	Name string `json:"name" binding:"required,max=200"`
}

type poolRequest struct {
	Category   []string `json:"category" binding:"required,min=1"`
	Total      int      `json:"total" binding:"gte=0"`
	UnitLabels []string `json:"unit_labels"`
}

type createSlotRequest struct {
	StartsAt time.Time     `json:"starts_at" binding:"required"`
	EndsAt   time.Time     `json:"ends_at" binding:"required,gtfield=StartsAt"`
	Closed   bool          `json:"closed"`
	Pools    []poolRequest `json:"pools" binding:"required,min=1,dive"`
}

type setOpenRequest struct {
	Open *bool `json:"open" binding:"required"`
}

type resizeRequest struct {
	Total *int `json:"total" binding:"required,gte=0"`
}

type holdResponse struct {
	Token     string    `json:"token"`
	PoolID    int64     `json:"pool_id"`
	Quantity  int       `json:"quantity"`
	UnitIDs   []int64   `json:"unit_ids,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type productResponse struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type slotResponse struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	IsOpen    bool      `json:"is_open"`
}

type poolSnapshotResponse struct {
	PoolID      int64  `json:"pool_id"`
	SlotID      int64  `json:"slot_id"`
	CategoryKey string `json:"category_key"`
	UnitTracked bool   `json:"unit_tracked"`
	Total       int    `json:"total"`
	Available   int    `json:"available"`
	Held        int    `json:"held"`
	Sold        int    `json:"sold"`
	Version     int64  `json:"version"`
}

type slotSnapshotResponse struct {
	Slot      slotResponse           `json:"slot"`
	Total     int                    `json:"total"`
	Available int                    `json:"available"`
	Held      int                    `json:"held"`
	Sold      int                    `json:"sold"`
	Pools     []poolSnapshotResponse `json:"pools"`
}

// toResponse copies matching fields from a domain value into a response DTO.
func toResponse[T any](from any) (T, error) {
	var out T
	err := copier.Copy(&out, from)
	return out, err
}
