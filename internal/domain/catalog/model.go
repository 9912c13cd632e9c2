package catalog

import "time"

type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Sizes     []int     `json:"sizes,omitempty"` // override of sellable sizes, empty = use the bottle configuration
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// BottleSize is one entry of the global bottle-materials configuration.
type BottleSize struct {
	MaterialID int64 `json:"material_id"`
	SizeMl     int   `json:"size_ml"`
}

const BottleConfigKey = "bottle_materials"
