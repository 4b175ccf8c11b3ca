package chain

import (
	"context"
	"sync"
	"sync/atomic"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/types"
)

// MemoryClient serves accounts from memory. It backs local fixtures and
// counts the calls it receives.
type MemoryClient struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey][]byte
	fail     error

	singleCalls atomic.Int64
	batchCalls  atomic.Int64
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{accounts: make(map[solana.PublicKey][]byte)}
}

func (m *MemoryClient) SetAccount(key solana.PublicKey, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[key] = data
}

func (m *MemoryClient) DeleteAccount(key solana.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, key)
}

// SetSlotHashes stores the slot hashes sysvar.
func (m *MemoryClient) SetSlotHashes(entries SlotHashes) {
	m.SetAccount(accounts.SlotHashesSysvarID, EncodeSlotHashes(entries))
}

// FailWith makes every subsequent call return err until it is cleared with nil.
func (m *MemoryClient) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MemoryClient) SingleCalls() int64 {
	return m.singleCalls.Load()
}

func (m *MemoryClient) BatchCalls() int64 {
	return m.batchCalls.Load()
}

func (m *MemoryClient) GetAccount(ctx context.Context, key solana.PublicKey) ([]byte, error) {
	m.singleCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}
	data, ok := m.accounts[key]
	if !ok {
		return nil, errorsmod.Wrapf(types.ErrNotFound, "account %s", key)
	}
	return data, nil
}

func (m *MemoryClient) GetAccounts(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	m.batchCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := make([][]byte, len(keys))
	for i, key := range keys {
		out[i] = m.accounts[key]
	}
	return out, nil
}
