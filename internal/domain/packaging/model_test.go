package packaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	ten := 10
	rules := []Rule{
		{ID: 1, MaterialID: 100, MaxItems: 1, Priority: 1, Active: true},
		{ID: 2, MaterialID: 200, MaxItems: 4, Priority: 2, Active: true},
		{ID: 3, MaterialID: 300, MaxItems: 50, Priority: 0, Active: false},
		{ID: 4, MaterialID: 400, MaxItems: 2, ItemSizeMl: &ten, Priority: 0, Active: true},
	}

	r, err := Select(rules, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(100), r.MaterialID)

	r, err = Select(rules, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.MaterialID)

	r, err = Select(rules, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(400), r.MaterialID, "size filtered rule wins on priority")

	r, err = Select(rules, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.MaterialID, "mixed sizes only match unfiltered rules")

	_, err = Select(rules, 5, 5)
	assert.ErrorIs(t, err, ErrNoRule)

	_, err = Select(rules, 0, 5)
	assert.Error(t, err)
}

func TestSelectTieBreaksOnID(t *testing.T) {
	rules := []Rule{
		{ID: 9, MaterialID: 900, MaxItems: 4, Priority: 1, Active: true},
		{ID: 3, MaterialID: 300, MaxItems: 4, Priority: 1, Active: true},
	}
	r, err := Select(rules, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.ID)
	assert.Equal(t, int64(9), rules[0].ID, "input order is left untouched")
}
