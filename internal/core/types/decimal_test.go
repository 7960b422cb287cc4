package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{"1", 10_000},
		{"0.5", 5_000},
		{"12.3456", 123_456},
		{"-2.25", -22_500},
		{" 3 ", 30_000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseQuantity("")
	assert.Error(t, err)
	_, err = ParseQuantity("abc")
	assert.Error(t, err)
}

func TestQuantity_String(t *testing.T) {
	assert.Equal(t, "15.0000", MustQuantity("15").String())
	assert.Equal(t, "-0.2500", MustQuantity("-0.25").String())
}

func TestQuantity_JSON(t *testing.T) {
	var v struct {
		A Quantity `json:"a"`
		B Quantity `json:"b"`
		C Quantity `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1.5, "b": "2.25", "c": null}`), &v))
	assert.Equal(t, MustQuantity("1.5"), v.A)
	assert.Equal(t, MustQuantity("2.25"), v.B)
	assert.Equal(t, Quantity(0), v.C)

	out, err := json.Marshal(v.A)
	require.NoError(t, err)
	assert.Equal(t, "1.5000", string(out))
}

func TestQuantity_MulMoneyIsExact(t *testing.T) {
	cost := MustQuantity("0.3333").MulMoney(MustMoney("3"))
	assert.Equal(t, "0.9999", cost.String())

	total := MustQuantity("10").MulMoney(MustMoney("5.00")).Add(MustQuantity("5").MulMoney(MustMoney("6.00")))
	assert.Equal(t, "80.00", total.StringFixed(2))
}

func TestRoundMinor_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "0.13", RoundMinor(MustMoney("0.125"), 2).StringFixed(2))
	assert.Equal(t, "-0.13", RoundMinor(MustMoney("-0.125"), 2).StringFixed(2))
}

func TestQuantityFromDecimal_Truncates(t *testing.T) {
	assert.Equal(t, MustQuantity("1.2345"), QuantityFromDecimal(MustMoney("1.23459")))
}

func TestSum(t *testing.T) {
	assert.True(t, Sum().IsZero())
	assert.Equal(t, "6.60", Sum(MustMoney("1.1"), MustMoney("2.2"), MustMoney("3.3")).StringFixed(2))
}
