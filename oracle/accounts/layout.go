package accounts

import (
	"bytes"
	"encoding/binary"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/types"
)

// DiscriminatorSize is the Anchor account header preceding every layout.
const DiscriminatorSize = 8

// LutOwner is implemented by every account that owns a lookup table.
type LutOwner interface {
	LutSlot() uint64
}

// OwnerDecoder decodes raw account data of one schema into its LutOwner view.
type OwnerDecoder func(data []byte) (LutOwner, error)

// layout reads little-endian fields at fixed offsets past the discriminator.
type layout struct {
	body []byte
}

func newLayout(name string, data []byte, size int) (layout, error) {
	if len(data) < DiscriminatorSize+size {
		return layout{}, errorsmod.Wrapf(types.ErrDeserialize, "%s: need %d bytes, got %d", name, DiscriminatorSize+size, len(data))
	}
	return layout{body: data[DiscriminatorSize : DiscriminatorSize+size]}, nil
}

func (l layout) u8(off int) uint8 {
	return l.body[off]
}

func (l layout) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(l.body[off:])
}

func (l layout) u64(off int) uint64 {
	return binary.LittleEndian.Uint64(l.body[off:])
}

func (l layout) i64(off int) int64 {
	return int64(l.u64(off))
}

func (l layout) i128(off int) sdkmath.Int {
	// the slice is always 16 bytes here
	v, _ := types.Int128FromLE(l.body[off : off+16])
	return v
}

func (l layout) pubkey(off int) solana.PublicKey {
	return solana.PublicKeyFromBytes(l.body[off : off+32])
}

// cstring returns the bytes before the first NUL.
func (l layout) cstring(off, size int) string {
	raw := l.body[off : off+size]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}
