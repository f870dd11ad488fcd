package core

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalar_Unmarshal(t *testing.T) {
	var row struct {
		Quoted Scalar `json:"quoted"`
		Bare   Scalar `json:"bare"`
		Null   Scalar `json:"null"`
		Blank  Scalar `json:"blank"`
	}
	require.NoError(t, sonic.Unmarshal([]byte(`{"quoted":"43000.5","bare":0.015,"null":null,"blank":""}`), &row))

	assert.Equal(t, "43000.5", row.Quoted.String())
	assert.Equal(t, "0.015", row.Bare.String())
	assert.True(t, row.Null.IsEmpty())
	assert.True(t, row.Blank.IsEmpty())
	assert.False(t, row.Bare.IsEmpty())
}

func TestParseDecimal(t *testing.T) {
	var d apd.Decimal
	require.NoError(t, ParseDecimal(&d, "123.4500"))
	assert.Equal(t, "123.4500", d.String())

	assert.Error(t, ParseDecimal(&d, ""))
	assert.Error(t, ParseDecimal(&d, "abc"))

	require.NoError(t, ParseDecimalOrZero(&d, " "))
	assert.True(t, d.IsZero())
	assert.Error(t, ParseDecimalOrZero(&d, "1.2.3"))
}

func TestSignedAmount(t *testing.T) {
	tests := []struct {
		in       string
		negative bool
		want     string
	}{
		{"1.5", false, "1.5"},
		{"1.5", true, "-1.5"},
		{"-2", false, "2"},
		{"-2", true, "-2"},
		{"0", true, "0"},
	}

	for _, tt := range tests {
		got := SignedAmount(MustDecimal(tt.in), tt.negative)
		assert.Equal(t, tt.want, got.String(), "%s negative=%v", tt.in, tt.negative)
	}
}

func TestPowTen(t *testing.T) {
	tick := PowTen(2)
	assert.Equal(t, "0.01", tick.String())
	one := PowTen(0)
	assert.Equal(t, "1", one.String())
}

func TestParseTimestamps(t *testing.T) {
	ms, err := ParseMillis("1700000000123")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ms.UnixMilli())
	assert.Equal(t, time.UTC, ms.Location())

	ms, err = ParseMillis("1700000000123.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ms.UnixMilli())

	zero, err := ParseMillis("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseMillis("yesterday")
	assert.Error(t, err)

	sec, err := ParseSeconds("1700000000.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000500), sec.UnixMilli())
}

func TestFieldParser_KeepsFirstError(t *testing.T) {
	var p FieldParser
	price := p.Decimal("price", "101.5")
	p.Decimal("qty", "")
	p.Millis("time", "bad")
	optional := p.DecimalOrZero("fee", "")

	assert.Equal(t, "101.5", price.String())
	assert.True(t, optional.IsZero())
	require.Error(t, p.Err())
	assert.Contains(t, p.Err().Error(), "qty:")
	assert.NotContains(t, p.Err().Error(), "time:")
}

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels([][]Scalar{{"100.5", "2", "ignored"}, {"100", "0.25"}})
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "100.5", levels[0].Price.String())
	assert.Equal(t, "0.25", levels[1].Quantity.String())

	_, err = ParseLevels([][]Scalar{{"100"}})
	assert.Error(t, err)

	_, err = ParseLevels([][]Scalar{{"x", "1"}})
	assert.Error(t, err)
}

func TestSymbolMeta_Rounding(t *testing.T) {
	meta := SymbolMeta{
		AmountTick: MustDecimal("0.01"),
		PriceTick:  MustDecimal("0.5"),
	}

	qty, err := meta.RoundQuantity(MustDecimal("1.2399"))
	require.NoError(t, err)
	want := MustDecimal("1.23")
	assert.Zero(t, qty.Cmp(&want), qty.String())

	price, err := meta.RoundPrice(MustDecimal("100.26"))
	require.NoError(t, err)
	want = MustDecimal("100.5")
	assert.Zero(t, price.Cmp(&want), price.String())

	price, err = meta.RoundPrice(MustDecimal("100.2"))
	require.NoError(t, err)
	want = MustDecimal("100")
	assert.Zero(t, price.Cmp(&want), price.String())

	unbounded := SymbolMeta{}
	same, err := unbounded.RoundQuantity(MustDecimal("3.14159"))
	require.NoError(t, err)
	assert.Equal(t, "3.14159", same.String())
}

func TestSymbolMeta_CheckOrder(t *testing.T) {
	meta := SymbolMeta{
		MinNotionalValue: MustDecimal("5"),
		MaxOrderSize:     MustDecimal("10"),
		ContractValue:    MustDecimal("0.01"),
	}
	price := MustDecimal("1000")

	assert.NoError(t, meta.CheckOrder(MustDecimal("1"), price))

	err := meta.CheckOrder(MustDecimal("11"), price)
	assert.ErrorContains(t, err, "exceeds max order size")

	err = meta.CheckOrder(MustDecimal("0.4"), price)
	assert.ErrorContains(t, err, "below minimum")
	assert.True(t, IsValidationError(err))
}
