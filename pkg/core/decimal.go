package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// decimalContext is used for every division and rounding in the library.
var decimalContext = apd.BaseContext.WithPrecision(34)

// Scalar is a JSON scalar decoded as its literal text. It accepts quoted
// strings, bare numbers and null, which lets one raw struct serve venues
// that send "1.5" and venues that send 1.5.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler for Scalar.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	raw := string(data)
	switch {
	case raw == "null":
		*s = ""
	case strings.HasPrefix(raw, `"`):
		str, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("scalar %s: %w", raw, err)
		}
		*s = Scalar(str)
	default:
		*s = Scalar(raw)
	}
	return nil
}

// String returns the literal text.
func (s Scalar) String() string {
	return string(s)
}

// IsEmpty reports whether the venue sent nothing, "" or null.
func (s Scalar) IsEmpty() bool {
	return strings.TrimSpace(string(s)) == ""
}

// ParseDecimal parses s into dest. Empty input is an error.
func ParseDecimal(dest *apd.Decimal, s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("empty decimal")
	}
	_, _, err := apd.BaseContext.SetString(dest, s)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return nil
}

// ParseDecimalOrZero parses s into dest, treating empty input as zero.
// Only fields the venue documents as optional go through here.
func ParseDecimalOrZero(dest *apd.Decimal, s string) error {
	if strings.TrimSpace(s) == "" {
		dest.SetInt64(0)
		return nil
	}
	return ParseDecimal(dest, s)
}

// MustDecimal parses a literal known to be valid. It panics otherwise.
func MustDecimal(s string) apd.Decimal {
	var d apd.Decimal
	if err := ParseDecimal(&d, s); err != nil {
		panic(err)
	}
	return d
}

// SignedAmount returns |amount|, negated when negative is true. It folds an
// unsigned quantity and a separate sell/short flag into one signed value.
func SignedAmount(amount apd.Decimal, negative bool) apd.Decimal {
	var out apd.Decimal
	out.Abs(&amount)
	if negative && !out.IsZero() {
		out.Neg(&out)
	}
	return out
}

// PowTen returns 10^-places, the tick for a venue that publishes decimal places.
func PowTen(places int32) apd.Decimal {
	return *apd.New(1, -places)
}

// ParseMillis converts an epoch-milliseconds scalar into UTC time.
// Empty input yields the zero time.
func ParseMillis(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid millisecond timestamp %q: %w", s, err)
	}
	return time.UnixMilli(int64(math.Round(f))).UTC(), nil
}

// ParseSeconds converts an epoch-seconds scalar, possibly fractional, into UTC time.
func ParseSeconds(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid second timestamp %q: %w", s, err)
	}
	return time.UnixMilli(int64(math.Round(f * 1000))).UTC(), nil
}

// RoundQuantity floors qty to a multiple of the amount tick.
func (m SymbolMeta) RoundQuantity(qty apd.Decimal) (apd.Decimal, error) {
	return floorToTick(qty, m.AmountTick)
}

// RoundPrice rounds price half-even to a multiple of the price tick.
func (m SymbolMeta) RoundPrice(price apd.Decimal) (apd.Decimal, error) {
	var out apd.Decimal
	if m.PriceTick.Sign() <= 0 {
		out.Set(&price)
		return out, nil
	}
	var steps apd.Decimal
	if _, err := decimalContext.Quo(&steps, &price, &m.PriceTick); err != nil {
		return out, fmt.Errorf("round price: %w", err)
	}
	if _, err := decimalContext.RoundToIntegralValue(&steps, &steps); err != nil {
		return out, fmt.Errorf("round price: %w", err)
	}
	if _, err := decimalContext.Mul(&out, &steps, &m.PriceTick); err != nil {
		return out, fmt.Errorf("round price: %w", err)
	}
	return out, nil
}

// CheckOrder reports whether qty at price satisfies the minimum notional and
// maximum order size. Market orders pass the last traded price.
func (m SymbolMeta) CheckOrder(qty, price apd.Decimal) error {
	if m.MaxOrderSize.Sign() > 0 && qty.Cmp(&m.MaxOrderSize) > 0 {
		return NewValidationError("quantity", "%s exceeds max order size %s", qty.String(), m.MaxOrderSize.String())
	}
	if m.MinNotionalValue.Sign() <= 0 {
		return nil
	}
	var notional apd.Decimal
	if _, err := decimalContext.Mul(&notional, &qty, &price); err != nil {
		return fmt.Errorf("notional: %w", err)
	}
	if m.ContractValue.Sign() > 0 {
		if _, err := decimalContext.Mul(&notional, &notional, &m.ContractValue); err != nil {
			return fmt.Errorf("notional: %w", err)
		}
	}
	if notional.Cmp(&m.MinNotionalValue) < 0 {
		return NewValidationError("quantity", "notional %s below minimum %s", notional.String(), m.MinNotionalValue.String())
	}
	return nil
}

func floorToTick(v, tick apd.Decimal) (apd.Decimal, error) {
	var out apd.Decimal
	if tick.Sign() <= 0 {
		out.Set(&v)
		return out, nil
	}
	var steps apd.Decimal
	if _, err := decimalContext.QuoInteger(&steps, &v, &tick); err != nil {
		return out, fmt.Errorf("round quantity: %w", err)
	}
	if _, err := decimalContext.Mul(&out, &steps, &tick); err != nil {
		return out, fmt.Errorf("round quantity: %w", err)
	}
	return out, nil
}

// FieldParser reads venue fields into canonical values and keeps the first
// failure, so a normalizer can decode a whole record and check once.
type FieldParser struct {
	err error
}

func (p *FieldParser) fail(field string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
}

// Decimal parses a required decimal field.
func (p *FieldParser) Decimal(field, s string) apd.Decimal {
	var d apd.Decimal
	if err := ParseDecimal(&d, s); err != nil {
		p.fail(field, err)
	}
	return d
}

// DecimalOrZero parses an optional decimal field; empty means zero.
func (p *FieldParser) DecimalOrZero(field, s string) apd.Decimal {
	var d apd.Decimal
	if err := ParseDecimalOrZero(&d, s); err != nil {
		p.fail(field, err)
	}
	return d
}

// Signed parses an unsigned quantity and folds the side flag into its sign.
func (p *FieldParser) Signed(field, s string, negative bool) apd.Decimal {
	return SignedAmount(p.Decimal(field, s), negative)
}

func (p *FieldParser) Millis(field, s string) time.Time {
	t, err := ParseMillis(s)
	if err != nil {
		p.fail(field, err)
	}
	return t
}

func (p *FieldParser) Seconds(field, s string) time.Time {
	t, err := ParseSeconds(s)
	if err != nil {
		p.fail(field, err)
	}
	return t
}

// Err returns the first failure, if any.
func (p *FieldParser) Err() error {
	return p.err
}

// ParseLevels converts [price, qty, ...] arrays into order book levels.
// Extra trailing fields are ignored.
func ParseLevels(raw [][]Scalar) ([]OrderBookLevel, error) {
	levels := make([]OrderBookLevel, 0, len(raw))
	var p FieldParser
	for i, l := range raw {
		if len(l) < 2 {
			return nil, fmt.Errorf("level %d: expected price and quantity, got %d fields", i, len(l))
		}
		levels = append(levels, OrderBookLevel{
			Price:    p.Decimal("price", l[0].String()),
			Quantity: p.Decimal("qty", l[1].String()),
		})
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}
