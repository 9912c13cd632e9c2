package packaging

import (
	"errors"
	"fmt"
	"sort"
)

var ErrNoRule = errors.New("packaging: no applicable rule")

// Rule selects a container material able to hold up to MaxItems units.
type Rule struct {
	ID         int64
	MaterialID int64
	MaxItems   int
	ItemSizeMl *int // nil = any size
	Priority   int
	Active     bool
}

func (r Rule) accepts(itemCount, sizeMl int) bool {
	if !r.Active || r.MaxItems < itemCount {
		return false
	}
	if r.ItemSizeMl != nil && *r.ItemSizeMl != sizeMl {
		return false
	}
	return true
}

// Select returns the first rule, by ascending priority, whose capacity holds itemCount
// items of sizeMl. sizeMl = 0 means mixed sizes: only unfiltered rules apply.
func Select(rules []Rule, itemCount, sizeMl int) (Rule, error) {
	if itemCount <= 0 {
		return Rule{}, fmt.Errorf("packaging: item count must be > 0, got %d", itemCount)
	}
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})
	for _, r := range ordered {
		if r.accepts(itemCount, sizeMl) {
			return r, nil
		}
	}
	return Rule{}, ErrNoRule
}

func (r Rule) String() string {
	size := "any"
	if r.ItemSizeMl != nil {
		size = fmt.Sprintf("%dml", *r.ItemSizeMl)
	}
	return fmt.Sprintf("[prio=%d] material=%d max=%d size=%s active=%v", r.Priority, r.MaterialID, r.MaxItems, size, r.Active)
}
