package recipes

import "github.com/shopspring/decimal"

// Entry is one line of the bill of materials for a (product, size) unit.
type Entry struct {
	ProductID  int64
	SizeMl     int
	MaterialID int64
	Quantity   decimal.Decimal
}

// MaterialIDs returns the distinct materials referenced by entries.
func MaterialIDs(entries []Entry) []int64 {
	seen := make(map[int64]struct{}, len(entries))
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.MaterialID]; ok {
			continue
		}
		seen[e.MaterialID] = struct{}{}
		out = append(out, e.MaterialID)
	}
	return out
}
