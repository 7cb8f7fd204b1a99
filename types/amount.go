package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is an unsigned 256-bit token quantity. It rides on uint256 for
// arithmetic and encodes as the minimal big-endian byte string, which is the
// canonical form shared by every replica.
type Amount struct {
	uint256.Int
}

// NewAmount returns an Amount holding x.
func NewAmount(x uint64) *Amount {
	var a Amount
	a.SetUint64(x)
	return &a
}

// AmountFromDecimal parses a base-10 amount, as written in genesis files.
func AmountFromDecimal(s string) (*Amount, error) {
	var a Amount
	if err := a.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return &a, nil
}

// Clone returns an independent copy.
func (a *Amount) Clone() *Amount {
	var out Amount
	out.Set(&a.Int)
	return &out
}

// IsZero reports whether the amount is zero. A nil Amount counts as zero.
func (a *Amount) IsZero() bool {
	return a == nil || a.Int.IsZero()
}

// MarshalBinary encodes the minimal big-endian form; zero encodes as empty.
func (a *Amount) MarshalBinary() ([]byte, error) {
	return a.Bytes(), nil
}

// UnmarshalBinary decodes the form produced by MarshalBinary.
func (a *Amount) UnmarshalBinary(data []byte) error {
	if len(data) > 32 {
		return fmt.Errorf("amount is %d bytes, max 32", len(data))
	}
	a.SetBytes(data)
	return nil
}

// MarshalText renders the decimal form for configs and RPC payloads.
func (a *Amount) MarshalText() ([]byte, error) {
	return []byte(a.Dec()), nil
}

// UnmarshalText parses the decimal form.
func (a *Amount) UnmarshalText(text []byte) error {
	return a.SetFromDecimal(string(text))
}

// MarshalJSON renders a quoted decimal string.
func (a *Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Dec() + `"`), nil
}

// UnmarshalJSON accepts a quoted decimal string or a bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return a.SetFromDecimal(s)
}

func (a *Amount) String() string {
	return a.Dec()
}
