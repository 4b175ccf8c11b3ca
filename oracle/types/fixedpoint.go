package types

import (
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Precision is the number of fractional digits every on-chain value carries.
const Precision = 18

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	two128    = new(big.Int).Lsh(big.NewInt(1), 128)
)

// MaxInt128 is the largest signed 128-bit value. The program reads it as
// "no value" in a submission.
func MaxInt128() sdkmath.Int {
	return sdkmath.NewIntFromBigInt(maxInt128)
}

// FitsInt128 reports whether v is representable as a signed 128-bit integer.
func FitsInt128(v sdkmath.Int) bool {
	if v.IsNil() {
		return false
	}
	b := v.BigInt()
	return b.Cmp(maxInt128) <= 0 && b.Cmp(minInt128) >= 0
}

// ParseInt128 parses a base 10 mantissa. ok is false when s is not an
// integer or does not fit in 128 bits.
func ParseInt128(s string) (sdkmath.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sdkmath.Int{}, false
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Cmp(maxInt128) > 0 || b.Cmp(minInt128) < 0 {
		return sdkmath.Int{}, false
	}
	return sdkmath.NewIntFromBigInt(b), true
}

// Int128FromLE decodes a 16 byte little-endian two's complement integer.
func Int128FromLE(b []byte) (sdkmath.Int, error) {
	if len(b) < 16 {
		return sdkmath.Int{}, fmt.Errorf("int128 needs 16 bytes, got %d", len(b))
	}
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[i] = b[15-i]
	}
	v := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		v.Sub(v, two128)
	}
	return sdkmath.NewIntFromBigInt(v), nil
}

// Int128ToLE encodes v as 16 byte little-endian two's complement.
func Int128ToLE(v sdkmath.Int) ([16]byte, error) {
	var out [16]byte
	if !FitsInt128(v) {
		return out, fmt.Errorf("value %s does not fit in int128", v)
	}
	b := new(big.Int).Set(v.BigInt())
	if b.Sign() < 0 {
		b.Add(b, two128)
	}
	be := b.FillBytes(make([]byte, 16))
	for i := 0; i < 16; i++ {
		out[i] = be[15-i]
	}
	return out, nil
}

// FormatDecimal renders a mantissa at Precision as a decimal string with
// trailing zeros removed.
func FormatDecimal(v sdkmath.Int) string {
	if v.IsNil() {
		return "<nil>"
	}
	b := v.BigInt()
	neg := b.Sign() < 0
	digits := new(big.Int).Abs(b).String()
	if len(digits) <= Precision {
		digits = strings.Repeat("0", Precision-len(digits)+1) + digits
	}
	whole, frac := digits[:len(digits)-Precision], strings.TrimRight(digits[len(digits)-Precision:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
