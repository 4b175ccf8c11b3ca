package lut

import (
	"context"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/cache"
	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/types"
)

// Resolver finds the lookup tables owned by program accounts. Tables are
// cached by owner key for the life of the resolver.
type Resolver struct {
	chain   chain.Client
	program accounts.Program
	tables  *cache.Cache[solana.PublicKey, *Table]
	logger  zerolog.Logger
}

func NewResolver(c chain.Client, program accounts.Program) *Resolver {
	return &Resolver{
		chain:   c,
		program: program,
		tables:  cache.New[solana.PublicKey, *Table]("lut"),
		logger:  log.Component("lut"),
	}
}

// Resolve returns the table of each owner in order. decode interprets the
// owners' account data; all owners in one call must share a schema.
//
// An owner whose table account does not exist yields a Table with Exists
// false. A missing owner account is an error.
func (r *Resolver) Resolve(ctx context.Context, decode accounts.OwnerDecoder, owners []solana.PublicKey) ([]*Table, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	return r.tables.GetOrFetchBatch(ctx, owners, func(ctx context.Context, missing []solana.PublicKey) ([]*Table, error) {
		return r.load(ctx, decode, missing)
	})
}

// Cached reports whether the table for owner has been resolved.
func (r *Resolver) Cached(owner solana.PublicKey) bool {
	_, ok := r.tables.Get(owner)
	return ok
}

func (r *Resolver) load(ctx context.Context, decode accounts.OwnerDecoder, owners []solana.PublicKey) ([]*Table, error) {
	ownerData, err := r.chain.GetAccounts(ctx, owners)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lookup table owners: %w", err)
	}

	keys := make([]solana.PublicKey, len(owners))
	for i, owner := range owners {
		if ownerData[i] == nil {
			return nil, errorsmod.Wrapf(types.ErrNotFound, "lookup table owner %s", owner)
		}
		lo, err := decode(ownerData[i])
		if err != nil {
			return nil, fmt.Errorf("owner %s: %w", owner, err)
		}
		if keys[i], err = DeriveAddress(r.program, owner, lo.LutSlot()); err != nil {
			return nil, err
		}
	}

	tableData, err := r.chain.GetAccounts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lookup tables: %w", err)
	}

	out := make([]*Table, len(owners))
	for i, owner := range owners {
		t := &Table{Owner: owner, Key: keys[i], Meta: DefaultMeta()}
		if tableData[i] != nil {
			meta, addresses, err := Decode(tableData[i])
			if err != nil {
				return nil, fmt.Errorf("table %s of %s: %w", keys[i], owner, err)
			}
			t.Exists, t.Meta, t.Addresses = true, meta, addresses
		} else {
			r.logger.Debug().Str("owner", owner.String()).Str("table", keys[i].String()).Msg("no lookup table on chain")
		}
		out[i] = t
	}

	return out, nil
}

// DeriveAddress computes the table key of owner from the slot it was created at.
func DeriveAddress(program accounts.Program, owner solana.PublicKey, lutSlot uint64) (solana.PublicKey, error) {
	signer, err := program.LutSigner(owner)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return accounts.LookupTableAddress(signer, lutSlot)
}
