package chain

import (
	"context"
	"encoding/binary"
	"sort"

	errorsmod "cosmossdk.io/errors"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/types"
)

// MaxSlotHashEntries is how many recent slots the sysvar retains.
const MaxSlotHashEntries = 512

type SlotHash struct {
	Slot uint64
	Hash solana.Hash
}

// SlotHashes is the slot history, most recent first.
type SlotHashes []SlotHash

// ParseSlotHashes decodes the slot hashes sysvar: a u64 count followed by
// (slot u64, hash [32]byte) entries.
func ParseSlotHashes(data []byte) (SlotHashes, error) {
	dec := bin.NewBinDecoder(data)
	n, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrDeserialize, "slot hashes: %v", err)
	}
	if n > uint64(dec.Remaining()/40) {
		return nil, errorsmod.Wrapf(types.ErrDeserialize, "slot hashes: %d entries in %d bytes", n, dec.Remaining())
	}

	out := make(SlotHashes, n)
	for i := range out {
		slot, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return nil, errorsmod.Wrapf(types.ErrDeserialize, "slot hashes: %v", err)
		}
		hash, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, errorsmod.Wrapf(types.ErrDeserialize, "slot hashes: %v", err)
		}
		out[i].Slot = slot
		copy(out[i].Hash[:], hash)
	}
	return out, nil
}

// EncodeSlotHashes is the inverse of ParseSlotHashes.
func EncodeSlotHashes(entries SlotHashes) []byte {
	out := make([]byte, 0, 8+40*len(entries))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(entries)))
	for _, e := range entries {
		out = binary.LittleEndian.AppendUint64(out, e.Slot)
		out = append(out, e.Hash[:]...)
	}
	return out
}

// Position finds slot in the history. Entries are sorted by descending slot.
func (s SlotHashes) Position(slot uint64) (int, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Slot <= slot })
	if i < len(s) && s[i].Slot == slot {
		return i, true
	}
	return 0, false
}

func (s SlotHashes) Latest() (SlotHash, bool) {
	if len(s) == 0 {
		return SlotHash{}, false
	}
	return s[0], true
}

// FetchSlotHashes reads the sysvar.
func FetchSlotHashes(ctx context.Context, c Client) (SlotHashes, error) {
	data, err := c.GetAccount(ctx, accounts.SlotHashesSysvarID)
	if err != nil {
		return nil, err
	}
	return ParseSlotHashes(data)
}

// LatestSlotHash returns the most recent entry of the sysvar.
func LatestSlotHash(ctx context.Context, c Client) (SlotHash, error) {
	hashes, err := FetchSlotHashes(ctx, c)
	if err != nil {
		return SlotHash{}, err
	}
	latest, ok := hashes.Latest()
	if !ok {
		return SlotHash{}, errorsmod.Wrap(types.ErrDeserialize, "slot hashes sysvar is empty")
	}
	return latest, nil
}
