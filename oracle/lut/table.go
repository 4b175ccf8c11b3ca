package lut

import (
	"encoding/binary"
	"fmt"
	"math"

	errorsmod "cosmossdk.io/errors"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/types"
)

const (
	// MetaSize is the serialized size of the table header.
	MetaSize = 56

	stateUninitialized = 0
	stateLookupTable   = 1
)

type StatusKind int

const (
	Activated StatusKind = iota
	Deactivating
	Deactivated
)

func (k StatusKind) String() string {
	switch k {
	case Activated:
		return "activated"
	case Deactivating:
		return "deactivating"
	case Deactivated:
		return "deactivated"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// Status is the activation state of a table at some slot. Remaining is only
// meaningful while Deactivating and counts the slots left in the cooldown.
type Status struct {
	Kind      StatusKind
	Remaining uint64
}

func (s Status) String() string {
	if s.Kind == Deactivating {
		return fmt.Sprintf("deactivating (%d slots remaining)", s.Remaining)
	}
	return s.Kind.String()
}

// Meta is the lookup table header.
type Meta struct {
	DeactivationSlot           uint64
	LastExtendedSlot           uint64
	LastExtendedSlotStartIndex uint8
	Authority                  *solana.PublicKey
}

// DefaultMeta describes a table that was never deactivated or extended.
func DefaultMeta() Meta {
	return Meta{DeactivationSlot: math.MaxUint64}
}

// Status evaluates the cooldown rule against the slot history. A table stays
// Deactivating while its deactivation slot is still inside the history.
func (m Meta) Status(currentSlot uint64, slotHashes chain.SlotHashes) Status {
	if m.DeactivationSlot == math.MaxUint64 {
		return Status{Kind: Activated}
	}
	if m.DeactivationSlot == currentSlot {
		return Status{Kind: Deactivating, Remaining: chain.MaxSlotHashEntries + 1}
	}
	if p, ok := slotHashes.Position(m.DeactivationSlot); ok {
		remaining := uint64(0)
		if p < chain.MaxSlotHashEntries {
			remaining = uint64(chain.MaxSlotHashEntries - p)
		}
		return Status{Kind: Deactivating, Remaining: remaining}
	}
	return Status{Kind: Deactivated}
}

// IsActive is true until the cooldown has fully elapsed.
func (m Meta) IsActive(currentSlot uint64, slotHashes chain.SlotHashes) bool {
	return m.Status(currentSlot, slotHashes).Kind != Deactivated
}

// Table is a resolved lookup table. Exists is false when no table account
// was found for the owner; such a table is empty and never deactivated.
type Table struct {
	Owner     solana.PublicKey
	Key       solana.PublicKey
	Exists    bool
	Meta      Meta
	Addresses solana.PublicKeySlice
}

// ActiveAddressesLen returns how many addresses a transaction at currentSlot
// may reference. Addresses appended in currentSlot are not yet visible.
func (t *Table) ActiveAddressesLen(currentSlot uint64, slotHashes chain.SlotHashes) (int, error) {
	if !t.Meta.IsActive(currentSlot, slotHashes) {
		return 0, errorsmod.Wrapf(types.ErrInactiveTable, "table %s", t.Key)
	}
	if currentSlot > t.Meta.LastExtendedSlot {
		return len(t.Addresses), nil
	}
	return min(int(t.Meta.LastExtendedSlotStartIndex), len(t.Addresses)), nil
}

// Lookup resolves index bytes against the active prefix of the table.
func (t *Table) Lookup(currentSlot uint64, indexes []uint8, slotHashes chain.SlotHashes) ([]solana.PublicKey, error) {
	n, err := t.ActiveAddressesLen(currentSlot, slotHashes)
	if err != nil {
		return nil, err
	}

	out := make([]solana.PublicKey, len(indexes))
	for i, idx := range indexes {
		if int(idx) >= n {
			return nil, errorsmod.Wrapf(types.ErrInvalidIndex, "index %d, %d active addresses in %s", idx, n, t.Key)
		}
		out[i] = t.Addresses[idx]
	}
	return out, nil
}

// Decode parses a lookup table account.
func Decode(data []byte) (Meta, solana.PublicKeySlice, error) {
	if len(data) < MetaSize {
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %d bytes", len(data))
	}

	dec := bin.NewBinDecoder(data[:MetaSize])
	state, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %v", err)
	}
	switch state {
	case stateLookupTable:
	case stateUninitialized:
		return Meta{}, nil, errorsmod.Wrap(types.ErrDeserialize, "lookup table is uninitialized")
	default:
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: unknown state %d", state)
	}

	var meta Meta
	if meta.DeactivationSlot, err = dec.ReadUint64(bin.LE); err != nil {
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %v", err)
	}
	if meta.LastExtendedSlot, err = dec.ReadUint64(bin.LE); err != nil {
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %v", err)
	}
	if meta.LastExtendedSlotStartIndex, err = dec.ReadUint8(); err != nil {
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %v", err)
	}
	hasAuthority, err := dec.ReadUint8()
	if err != nil {
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %v", err)
	}
	if hasAuthority == 1 {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %v", err)
		}
		authority := solana.PublicKeyFromBytes(raw)
		meta.Authority = &authority
	}

	body := data[MetaSize:]
	if len(body)%32 != 0 {
		return Meta{}, nil, errorsmod.Wrapf(types.ErrDeserialize, "lookup table: %d trailing bytes", len(body)%32)
	}
	addresses := make(solana.PublicKeySlice, len(body)/32)
	for i := range addresses {
		addresses[i] = solana.PublicKeyFromBytes(body[i*32 : (i+1)*32])
	}

	return meta, addresses, nil
}

// Encode produces the account image Decode reads.
func Encode(meta Meta, addresses []solana.PublicKey) []byte {
	out := make([]byte, MetaSize, MetaSize+32*len(addresses))
	out[0] = stateLookupTable
	binary.LittleEndian.PutUint64(out[4:], meta.DeactivationSlot)
	binary.LittleEndian.PutUint64(out[12:], meta.LastExtendedSlot)
	out[20] = meta.LastExtendedSlotStartIndex
	if meta.Authority != nil {
		out[21] = 1
		copy(out[22:54], meta.Authority[:])
	}
	for _, a := range addresses {
		out = append(out, a[:]...)
	}
	return out
}

// AddressTables converts resolved tables into the form transaction builders
// take. Tables that do not exist are skipped. Addresses are used as given, so
// raw resolver output must be cut with ActiveAddressesLen first; the tables
// of a pullfeed update already are.
func AddressTables(tables []*Table) map[solana.PublicKey]solana.PublicKeySlice {
	out := make(map[solana.PublicKey]solana.PublicKeySlice, len(tables))
	for _, t := range tables {
		if t == nil || !t.Exists {
			continue
		}
		out[t.Key] = t.Addresses
	}
	return out
}
