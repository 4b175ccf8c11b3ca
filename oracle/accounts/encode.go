package accounts

import (
	"encoding/binary"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/types"
)

// The encoders below produce account images in the same layouts the
// decoders read. They are used to seed local fixtures.

type writer struct {
	body []byte
}

func newWriter(size int) writer {
	return writer{body: make([]byte, DiscriminatorSize+size)}
}

func (w writer) bytes() []byte {
	return w.body
}

func (w writer) u8(off int, v uint8) {
	w.body[DiscriminatorSize+off] = v
}

func (w writer) u32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.body[DiscriminatorSize+off:], v)
}

func (w writer) u64(off int, v uint64) {
	binary.LittleEndian.PutUint64(w.body[DiscriminatorSize+off:], v)
}

func (w writer) i128(off int, v sdkmath.Int) {
	if v.IsNil() {
		return
	}
	enc, err := types.Int128ToLE(v)
	if err != nil {
		return
	}
	copy(w.body[DiscriminatorSize+off:], enc[:])
}

func (w writer) raw(off int, b []byte) {
	copy(w.body[DiscriminatorSize+off:], b)
}

func (w writer) pubkey(off int, k solana.PublicKey) {
	w.raw(off, k[:])
}

func EncodePullFeed(f *types.FeedSnapshot) []byte {
	w := newWriter(PullFeedSize)
	for i, s := range f.Submissions {
		if i == maxSamples {
			break
		}
		off := i * submissionSize
		w.pubkey(off, s.Oracle)
		w.u64(off+32, s.Slot)
		w.i128(off+48, s.Value)
	}
	w.pubkey(feedAuthorityOff, f.Authority)
	w.pubkey(feedQueueOff, f.Queue)
	w.raw(feedHashOff, f.FeedHash[:])
	w.u64(feedInitAtOff, uint64(f.InitializedAt))
	w.u64(feedMaxVarOff, f.MaxVariance)
	w.u32(feedMinRespOff, f.MinResponses)
	name := []byte(f.Name)
	if len(name) > 32 {
		name = name[:32]
	}
	w.raw(feedNameOff, name)
	w.u8(feedMinSampleOff, f.MinSampleSize)
	w.u64(feedLastUpdOff, uint64(f.LastUpdate))
	w.u64(feedLutSlotOff, f.LutSlotValue)

	r := f.Result
	w.i128(feedResultOff, r.Value)
	w.i128(feedResultOff+16, r.StdDev)
	w.i128(feedResultOff+32, r.Mean)
	w.i128(feedResultOff+48, r.Range)
	w.i128(feedResultOff+64, r.MinValue)
	w.i128(feedResultOff+80, r.MaxValue)
	w.u8(feedResultOff+96, r.NumSamples)
	w.u64(feedResultOff+104, r.Slot)
	w.u64(feedResultOff+112, r.MinSlot)
	w.u64(feedResultOff+120, r.MaxSlot)
	w.u32(feedMaxStaleOff, f.MaxStaleness)

	return w.bytes()
}

func EncodeQueue(q *Queue) []byte {
	w := newWriter(QueueSize)
	w.pubkey(queueAuthorityOff, q.Authority)
	n := len(q.OracleKeys)
	if n > maxQueueOracles {
		n = maxQueueOracles
	}
	for i := 0; i < n; i++ {
		w.pubkey(queueOracleKeysOff+i*32, q.OracleKeys[i])
	}
	w.u32(queueOracleLenOff, uint32(n))
	w.pubkey(queueMintOff, q.Mint)
	w.u64(queueLutSlotOff, q.LutSlotVal)

	return w.bytes()
}

func EncodeOracle(o *Oracle) []byte {
	w := newWriter(OracleSize)
	w.pubkey(oracleAuthorityOff, o.Authority)
	w.pubkey(oracleQueueOff, o.Queue)
	w.u64(oracleHeartbeatOff, uint64(o.LastHeartbeat))
	uri := []byte(o.GatewayURI)
	if len(uri) > oracleGatewayLen {
		uri = uri[:oracleGatewayLen]
	}
	w.raw(oracleGatewayOff, uri)
	w.u64(oracleLutSlotOff, o.LutSlotVal)

	return w.bytes()
}
