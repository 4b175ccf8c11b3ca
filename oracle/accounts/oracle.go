package accounts

import (
	"github.com/gagliardetto/solana-go"
)

const (
	OracleSize = 4808

	oracleAuthorityOff = 3432
	oracleQueueOff     = 3464
	oracleHeartbeatOff = 3504
	oracleGatewayOff   = 3576
	oracleGatewayLen   = 64
	oracleLutSlotOff   = 3656
)

// Oracle is the subset of an oracle account this client reads.
type Oracle struct {
	Authority     solana.PublicKey
	Queue         solana.PublicKey
	LastHeartbeat int64
	GatewayURI    string
	LutSlotVal    uint64
}

func (o *Oracle) LutSlot() uint64 {
	return o.LutSlotVal
}

// DecodeOracle parses an oracle account.
func DecodeOracle(data []byte) (*Oracle, error) {
	l, err := newLayout("oracle", data, OracleSize)
	if err != nil {
		return nil, err
	}

	return &Oracle{
		Authority:     l.pubkey(oracleAuthorityOff),
		Queue:         l.pubkey(oracleQueueOff),
		LastHeartbeat: l.i64(oracleHeartbeatOff),
		GatewayURI:    l.cstring(oracleGatewayOff, oracleGatewayLen),
		LutSlotVal:    l.u64(oracleLutSlotOff),
	}, nil
}

func OracleOwner(data []byte) (LutOwner, error) {
	return DecodeOracle(data)
}
