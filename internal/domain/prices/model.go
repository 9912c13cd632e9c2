package prices

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrVersionConflict = errors.New("prices: margin version conflict")

type Source string

const (
	SourceFormula Source = "formula"
	SourceManual  Source = "manual"
	SourceAutoFix Source = "autofix"
)

// Margin stores the target margin as a multiplier over cost (2.0 = cost x 2).
type Margin struct {
	ProductID  int64
	Multiplier decimal.Decimal
	Version    int64
	UpdatedAt  time.Time
}

type Price struct {
	ProductID int64
	SizeMl    int
	Price     decimal.Decimal
	Source    Source
	Pinned    bool
	UpdatedAt time.Time
}

type Reason string

const (
	ReasonMargin      Reason = "margin"
	ReasonRecalculate Reason = "recalculate"
	ReasonManual      Reason = "manual"
	ReasonAutoFix     Reason = "autofix"
)

// Change is an append-only record of a persisted price write.
type Change struct {
	ID            int64               `json:"id"`
	ProductID     int64               `json:"product_id"`
	SizeMl        int                 `json:"size_ml"`
	OldPrice      decimal.NullDecimal `json:"old_price"`
	NewPrice      decimal.Decimal     `json:"new_price"`
	Reason        Reason              `json:"reason"`
	MarginVersion int64               `json:"margin_version"`
	CreatedAt     time.Time           `json:"created_at"`
}
