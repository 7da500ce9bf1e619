package crosswalk

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rows    []Weight
		wantErr bool
		codes   []string
	}{
		{"empty", nil, false, nil},
		{"exact", []Weight{{"11001", "20001", 0.5}, {"11001", "20002", 0.5}}, false, nil},
		{"within tolerance", []Weight{{"11001", "20001", 0.6}, {"11001", "20002", 0.405}}, false, nil},
		{"upper edge", []Weight{{"11001", "20001", 1.0}, {"11001", "20002", 0.01}}, false, nil},
		{"too low", []Weight{{"11001", "20001", 0.5}, {"24031", "20901", 1}}, true, []string{"11001"}},
		{"too high", []Weight{{"11001", "20001", 0.7}, {"11001", "20002", 0.4}}, true, []string{"11001"}},
		{"zero group", []Weight{{"11001", "20001", 0}}, true, []string{"11001"}},
		{"several groups", []Weight{{"11001", "20001", 0.2}, {"24031", "20901", 0.3}}, true, []string{"11001", "24031"}},
		{"negative weight", []Weight{{"11001", "20001", -0.1}, {"11001", "20002", 1.1}}, true, []string{"11001->20001", "11001->20002"}},
		{"nan weight", []Weight{{"11001", "20001", math.NaN()}}, true, []string{"11001->20001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(WeightTable{Level: LevelCounty, Rows: tt.rows})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.codes, ve.Codes())
			for _, c := range tt.codes {
				assert.Contains(t, err.Error(), c)
			}
		})
	}
}

func TestValidateGroups_CustomKey(t *testing.T) {
	rows := []Weight{
		{"11001", "20001", 0.3},
		{"24031", "20001", 0.2},
		{"24031", "20002", 1},
	}
	byZCTA := func(w Weight) string { return w.ZCTA }

	err := ValidateGroups(rows, byZCTA)
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"20001"}, ve.Codes())
	assert.Equal(t, 0.5, ve.Groups["20001"])
}

func TestValidationError_TruncatesList(t *testing.T) {
	groups := make(map[string]float64)
	for i := 0; i < 15; i++ {
		groups[string(rune('a'+i))] = 0.5
	}
	err := &ValidationError{Reason: "test", Groups: groups}
	assert.Contains(t, err.Error(), "and 5 more")
}

func TestValidationError_ASCII(t *testing.T) {
	for _, rows := range [][]Weight{
		{{"11001", "20001", -0.1}},
		{{"11001", "20001", 0.5}},
	} {
		err := Validate(WeightTable{Level: LevelCounty, Rows: rows})
		require.Error(t, err)
		for _, r := range err.Error() {
			assert.Less(t, r, rune(0x80), err.Error())
		}
	}

	err := Validate(WeightTable{Level: LevelCounty, Rows: []Weight{{"11001", "20001", 0.5}}})
	assert.Contains(t, err.Error(), "1 +/- 0.01")
}
