package instruction

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	sdkmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/types"
)

const (
	submitName     = "pull_feed_submit_response"
	submitManyName = "pull_feed_submit_response_many"
)

var (
	SubmitDiscriminator     = discriminator(submitName)
	SubmitManyDiscriminator = discriminator(submitManyName)
)

func discriminator(name string) [8]byte {
	var out [8]byte
	sum := sha256.Sum256([]byte("global:" + name))
	copy(out[:], sum[:8])
	return out
}

// Fixed accounts shared by both submit instructions.
type fixedAccounts struct {
	state solana.PublicKey
	vault solana.PublicKey
	queue solana.PublicKey
	payer solana.PublicKey
	stats func(oracle solana.PublicKey) (solana.PublicKey, error)
}

func newFixedAccounts(program accounts.Program, queue, payer solana.PublicKey) (*fixedAccounts, error) {
	state, err := program.StateKey()
	if err != nil {
		return nil, err
	}
	vault, err := accounts.RewardVault(queue)
	if err != nil {
		return nil, err
	}
	return &fixedAccounts{
		state: state,
		vault: vault,
		queue: queue,
		payer: payer,
		stats: program.StatsKey,
	}, nil
}

// tail lists the accounts after the feed in the single form, which are the
// whole fixed prefix of the multi form.
func (f *fixedAccounts) tail() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(f.queue, false, false),
		solana.NewAccountMeta(f.state, false, false),
		solana.NewAccountMeta(accounts.SlotHashesSysvarID, false, false),
		solana.NewAccountMeta(f.payer, true, true),
		solana.NewAccountMeta(accounts.SystemProgramID, false, false),
		solana.NewAccountMeta(f.vault, true, false),
		solana.NewAccountMeta(accounts.TokenProgramID, false, false),
		solana.NewAccountMeta(accounts.NativeMint, false, false),
	}
}

// BuildSingle encodes a submission of quotes for one feed. Only signed
// quotes are submitted; a signed quote without a value is sent as
// MaxInt128, which the program treats as empty.
func BuildSingle(program accounts.Program, feed, queue, payer solana.PublicKey, slot uint64, quotes []types.OracleQuote) (*solana.GenericInstruction, error) {
	var signed []types.OracleQuote
	for _, q := range quotes {
		if q.Signed {
			signed = append(signed, q)
		}
	}
	if len(signed) == 0 {
		return nil, fmt.Errorf("%w: no signed quotes to submit", types.ErrInvalidRequest)
	}

	fixed, err := newFixedAccounts(program, queue, payer)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(SubmitDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(slot, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(signed)), bin.LE); err != nil {
		return nil, err
	}
	for _, q := range signed {
		if err := writeValue(enc, q.Value); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(q.Signature[:], false); err != nil {
			return nil, err
		}
		if err := enc.WriteUint8(q.RecoveryID); err != nil {
			return nil, err
		}
		// offset into the oracle's feed slot; always zero for a single feed
		if err := enc.WriteUint8(0); err != nil {
			return nil, err
		}
	}

	metas := append(solana.AccountMetaSlice{solana.NewAccountMeta(feed, true, false)}, fixed.tail()...)
	oracles := make(solana.AccountMetaSlice, 0, len(signed))
	stats := make(solana.AccountMetaSlice, 0, len(signed))
	for _, q := range signed {
		s, err := fixed.stats(q.Oracle)
		if err != nil {
			return nil, err
		}
		oracles = append(oracles, solana.NewAccountMeta(q.Oracle, false, false))
		stats = append(stats, solana.NewAccountMeta(s, true, false))
	}
	metas = append(metas, oracles...)
	metas = append(metas, stats...)

	return solana.NewInstruction(program.ID, metas, buf.Bytes()), nil
}

// BuildMany encodes one submission covering several feeds. Each signed row
// carries one value per feed, in feed order.
func BuildMany(program accounts.Program, feeds []solana.PublicKey, queue, payer solana.PublicKey, slot uint64, rows []types.MultiQuote) (*solana.GenericInstruction, error) {
	if len(feeds) == 0 {
		return nil, fmt.Errorf("%w: no feeds to submit", types.ErrInvalidRequest)
	}
	var signed []types.MultiQuote
	for _, r := range rows {
		if !r.Signed {
			continue
		}
		if len(r.Values) != len(feeds) {
			return nil, fmt.Errorf("%w: oracle %s has %d values for %d feeds", types.ErrInvalidRequest, r.Oracle, len(r.Values), len(feeds))
		}
		signed = append(signed, r)
	}
	if len(signed) == 0 {
		return nil, fmt.Errorf("%w: no signed rows to submit", types.ErrInvalidRequest)
	}

	fixed, err := newFixedAccounts(program, queue, payer)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(SubmitManyDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(slot, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(signed)), bin.LE); err != nil {
		return nil, err
	}
	for _, r := range signed {
		if err := enc.WriteUint32(uint32(len(r.Values)), bin.LE); err != nil {
			return nil, err
		}
		for _, v := range r.Values {
			if err := writeValue(enc, v); err != nil {
				return nil, err
			}
		}
		if err := enc.WriteBytes(r.Signature[:], false); err != nil {
			return nil, err
		}
		if err := enc.WriteUint8(r.RecoveryID); err != nil {
			return nil, err
		}
	}

	metas := fixed.tail()
	for _, f := range feeds {
		metas = append(metas, solana.NewAccountMeta(f, true, false))
	}
	for _, r := range signed {
		s, err := fixed.stats(r.Oracle)
		if err != nil {
			return nil, err
		}
		metas = append(metas,
			solana.NewAccountMeta(r.Oracle, false, false),
			solana.NewAccountMeta(s, true, false),
		)
	}

	return solana.NewInstruction(program.ID, metas, buf.Bytes()), nil
}

func writeValue(enc *bin.Encoder, v sdkmath.Int) error {
	if v.IsNil() {
		v = types.MaxInt128()
	}
	le, err := types.Int128ToLE(v)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	return enc.WriteBytes(le[:], false)
}
