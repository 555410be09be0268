package payment

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Uint256 is an unsigned big integer carried as a decimal string in JSON,
// matching the x402 wire encoding of uint256 fields. All arithmetic stays in
// big.Int; floating point never touches amounts.
type Uint256 struct {
	big.Int
}

// NewUint256 wraps v (copied) as a Uint256. Panics on negative input, which
// only ever indicates a programming error in tests or fixtures.
func NewUint256(v *big.Int) *Uint256 {
	if v.Sign() < 0 {
		panic("payment: negative Uint256")
	}
	u := new(Uint256)
	u.Set(v)
	return u
}

// Uint256FromUint64 is a convenience constructor for tests and fixtures.
func Uint256FromUint64(v uint64) *Uint256 {
	u := new(Uint256)
	u.SetUint64(v)
	return u
}

func (u *Uint256) MarshalJSON() ([]byte, error) {
	if u == nil {
		return []byte(`null`), nil
	}
	return []byte(`"` + u.Text(10) + `"`), nil
}

func (u *Uint256) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("uint256 must be a decimal string, got %s", s)
	}
	s = s[1 : len(s)-1]
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid uint256 %q", s)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("uint256 must be non-negative, got %q", s)
	}
	if v.BitLen() > 256 {
		return fmt.Errorf("uint256 overflow: %q", s)
	}
	u.Set(v)
	return nil
}

// Fits reports whether the value is representable in 256 bits. Values built
// outside UnmarshalJSON must be range-checked before ABI encoding.
func (u *Uint256) Fits() bool {
	return u.BitLen() <= 256
}

// ParseAmount converts a display-unit amount (e.g. "100.50" USDC) into atomic
// units for a token with the given decimals. The conversion is exact: inputs
// with more fractional digits than the token supports are rejected rather
// than rounded.
func ParseAmount(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	atomic := d.Shift(decimals)
	if !atomic.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return atomic.BigInt(), nil
}
