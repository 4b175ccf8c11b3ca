package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/GPTx-global/ondemand/oracle/types"
)

// Client reads raw account data.
//
// GetAccount returns an error wrapping types.ErrNotFound for a missing
// account. GetAccounts is index aligned with keys and leaves nil for missing
// accounts.
type Client interface {
	GetAccount(ctx context.Context, key solana.PublicKey) ([]byte, error)
	GetAccounts(ctx context.Context, keys []solana.PublicKey) ([][]byte, error)
}

const maxAccountsPerCall = 100

// RPCClient adapts the Solana JSON-RPC client. Every call is bounded by the
// configured timeout.
type RPCClient struct {
	rpc        *rpc.Client
	timeout    time.Duration
	commitment rpc.CommitmentType
}

func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		rpc:        rpc.New(endpoint),
		timeout:    timeout,
		commitment: rpc.CommitmentConfirmed,
	}
}

func (c *RPCClient) GetAccount(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, errorsmod.Wrapf(types.ErrNotFound, "account %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account %s: %w", types.ErrTransport, key, err)
	}
	if out == nil || out.Value == nil {
		return nil, errorsmod.Wrapf(types.ErrNotFound, "account %s", key)
	}

	return out.Value.Data.GetBinary(), nil
}

func (c *RPCClient) GetAccounts(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, 0, len(keys))
	for start := 0; start < len(keys); start += maxAccountsPerCall {
		end := min(start+maxAccountsPerCall, len(keys))
		chunk, err := c.getAccounts(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (c *RPCClient) getAccounts(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %d accounts: %w", types.ErrTransport, len(keys), err)
	}
	if res == nil || len(res.Value) != len(keys) {
		return nil, errorsmod.Wrapf(types.ErrDeserialize, "expected %d accounts in response", len(keys))
	}

	out := make([][]byte, len(keys))
	for i, acc := range res.Value {
		if acc == nil || acc.Data == nil {
			continue
		}
		out[i] = acc.Data.GetBinary()
	}
	return out, nil
}

// Slot returns the latest confirmed slot. Used as a liveness probe.
func (c *RPCClient) Slot(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("%w: get slot: %w", types.ErrTransport, err)
	}
	return slot, nil
}
