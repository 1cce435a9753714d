package optional

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name     string
		num, den float64
		want     float64
		valid    bool
	}{
		{"normal", 132, 1, 132, true},
		{"zero numerator is a real zero", 0, 10, 0, true},
		{"zero denominator is unknown", 10, 0, 0, false},
		{"both zero is unknown", 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Ratio(tt.num, tt.den).Get()
			assert.Equal(t, tt.valid, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDelta(t *testing.T) {
	d, ok := Delta(132, 100).Get()
	require.True(t, ok)
	assert.InDelta(t, 32.0, d, 1e-9)

	assert.False(t, Delta(5, 0).Valid())
	assert.False(t, DeltaOf(Some(1), None()).Valid())
	assert.False(t, DeltaOf(None(), Some(1)).Valid())

	d, ok = DeltaOf(Some(0.08), Some(0.1)).Get()
	require.True(t, ok)
	assert.InDelta(t, -20.0, d, 1e-9)
}

func TestSomeRejectsNonFinite(t *testing.T) {
	assert.False(t, Some(math.NaN()).Valid())
	assert.False(t, Some(math.Inf(1)).Valid())
	assert.True(t, Some(0).Valid())
}

func TestComparisonsOnAbsentAreFalse(t *testing.T) {
	n := None()
	assert.False(t, n.GreaterThan(-1e9))
	assert.False(t, n.LessOrEqual(1e9))
	assert.False(t, n.Abs().Valid())
	assert.Equal(t, 7.0, n.Or(7))

	s := Some(-60)
	assert.True(t, s.Abs().GreaterThan(50))
	assert.True(t, s.LessOrEqual(-20))
}

func TestEqual(t *testing.T) {
	assert.True(t, None().Equal(None()))
	assert.True(t, Some(1.5).Equal(Some(1.5)))
	assert.False(t, Some(0).Equal(None()))
	assert.False(t, Some(1).Equal(Some(2)))
}

func TestJSON(t *testing.T) {
	type doc struct {
		A Float `json:"a"`
		B Float `json:"b"`
	}
	raw, err := json.Marshal(doc{A: Some(1.25), B: None()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.25,"b":null}`, string(raw))

	var back doc
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.A.Equal(Some(1.25)))
	assert.False(t, back.B.Valid())

	require.Error(t, json.Unmarshal([]byte(`{"a":"x"}`), &back))
}
