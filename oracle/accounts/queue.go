package accounts

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/types"
)

const (
	QueueSize = 6272

	maxQueueOracles    = 128
	queueAuthorityOff  = 0
	queueOracleKeysOff = 1056
	queueOracleLenOff  = 5196
	queueMintOff       = 5216
	queueLutSlotOff    = 5248
)

// Queue is the subset of a queue account this client reads.
type Queue struct {
	Authority  solana.PublicKey
	OracleKeys []solana.PublicKey
	Mint       solana.PublicKey
	LutSlotVal uint64
}

func (q *Queue) LutSlot() uint64 {
	return q.LutSlotVal
}

// DecodeQueue parses a queue account.
func DecodeQueue(data []byte) (*Queue, error) {
	l, err := newLayout("queue", data, QueueSize)
	if err != nil {
		return nil, err
	}

	n := int(l.u32(queueOracleLenOff))
	if n > maxQueueOracles {
		return nil, errorsmod.Wrapf(types.ErrDeserialize, "queue: oracle count %d exceeds %d", n, maxQueueOracles)
	}

	q := &Queue{
		Authority:  l.pubkey(queueAuthorityOff),
		OracleKeys: make([]solana.PublicKey, n),
		Mint:       l.pubkey(queueMintOff),
		LutSlotVal: l.u64(queueLutSlotOff),
	}
	for i := 0; i < n; i++ {
		q.OracleKeys[i] = l.pubkey(queueOracleKeysOff + i*32)
	}

	return q, nil
}

func QueueOwner(data []byte) (LutOwner, error) {
	return DecodeQueue(data)
}
