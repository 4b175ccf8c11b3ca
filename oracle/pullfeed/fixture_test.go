package pullfeed

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/gateway"
	"github.com/GPTx-global/ondemand/oracle/lut"
	"github.com/GPTx-global/ondemand/oracle/types"
)

const latestSlot = 1_000

// fixture is a small queue with oracles, feeds and lookup tables held in a
// memory chain.
type fixture struct {
	chain   *chain.MemoryClient
	program accounts.Program
	queue   solana.PublicKey
	oracles []solana.PublicKey
	history chain.SlotHashes
	lutSlot uint64
}

func newFixture(numOracles int) *fixture {
	f := &fixture{
		chain:   chain.NewMemoryClient(),
		program: accounts.NewProgram(accounts.DevnetProgramID),
		queue:   solana.NewWallet().PublicKey(),
	}

	for i := 0; i < 10; i++ {
		f.history = append(f.history, chain.SlotHash{Slot: latestSlot - uint64(i), Hash: solana.Hash{byte(i + 1)}})
	}
	f.chain.SetSlotHashes(f.history)

	for i := 0; i < numOracles; i++ {
		o := solana.NewWallet().PublicKey()
		f.chain.SetAccount(o, accounts.EncodeOracle(&accounts.Oracle{Queue: f.queue, LutSlotVal: f.nextLutSlot()}))
		f.addTable(o, lut.DefaultMeta())
		f.oracles = append(f.oracles, o)
	}
	f.chain.SetAccount(f.queue, accounts.EncodeQueue(&accounts.Queue{OracleKeys: f.oracles, LutSlotVal: f.nextLutSlot()}))
	f.addTable(f.queue, lut.DefaultMeta())
	return f
}

func (f *fixture) nextLutSlot() uint64 {
	f.lutSlot++
	return f.lutSlot
}

// tableKey derives the table address of owner from its stored account.
func (f *fixture) tableKey(owner solana.PublicKey, decode accounts.OwnerDecoder) solana.PublicKey {
	data, err := f.chain.GetAccount(context.Background(), owner)
	if err != nil {
		panic(err)
	}
	lo, err := decode(data)
	if err != nil {
		panic(err)
	}
	key, err := lut.DeriveAddress(f.program, owner, lo.LutSlot())
	if err != nil {
		panic(err)
	}
	return key
}

func (f *fixture) addTable(owner solana.PublicKey, meta lut.Meta) solana.PublicKey {
	decode := accounts.OracleOwner
	if owner == f.queue {
		decode = accounts.QueueOwner
	}
	key := f.tableKey(owner, decode)
	f.chain.SetAccount(key, lut.Encode(meta, []solana.PublicKey{owner, f.queue}))
	return key
}

func (f *fixture) addFeed(minSample uint8, hash types.FeedHash) solana.PublicKey {
	return f.addFeedOnQueue(f.queue, minSample, hash)
}

func (f *fixture) addFeedOnQueue(queue solana.PublicKey, minSample uint8, hash types.FeedHash) solana.PublicKey {
	feed := solana.NewWallet().PublicKey()
	lutSlot := f.nextLutSlot()
	f.chain.SetAccount(feed, accounts.EncodePullFeed(&types.FeedSnapshot{
		Queue:         queue,
		FeedHash:      hash,
		MaxVariance:   1_000_000_000,
		MinResponses:  1,
		MinSampleSize: minSample,
		LutSlotValue:  lutSlot,
		Name:          "BTC/USD",
	}))
	key := f.tableKey(feed, accounts.PullFeedOwner)
	f.chain.SetAccount(key, lut.Encode(lut.DefaultMeta(), []solana.PublicKey{feed}))
	return feed
}

func (f *fixture) oracleTable(i int) solana.PublicKey {
	return f.tableKey(f.oracles[i], accounts.OracleOwner)
}

// fakeRegistry serves job specs from memory and counts fetches.
type fakeRegistry struct {
	mu    sync.Mutex
	specs map[types.FeedHash]*types.JobSpec
	fail  error
	calls atomic.Int64
	gate  chan struct{}
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{specs: make(map[types.FeedHash]*types.JobSpec)}
}

func (r *fakeRegistry) add(hash types.FeedHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[hash] = &types.JobSpec{FeedHash: hash, Jobs: [][]byte{[]byte(`{"tasks":[{"valueTask":{"value":1}}]}`)}}
}

func (r *fakeRegistry) FetchJobs(ctx context.Context, hash types.FeedHash) (*types.JobSpec, error) {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	spec, ok := r.specs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: jobs %s", types.ErrNotFound, hash)
	}
	return spec, nil
}

// fakeGateway answers with canned responses and records what it was asked.
type fakeGateway struct {
	mu         sync.Mutex
	single     *gateway.FetchSignaturesResponse
	multi      *gateway.FetchSignaturesMultiResponse
	err        error
	lastSingle gateway.FetchSignaturesParams
	lastMulti  gateway.FetchSignaturesMultiParams
	calls      atomic.Int64
}

func (g *fakeGateway) URL() string {
	return "fake://gateway"
}

func (g *fakeGateway) FetchSignatures(ctx context.Context, params gateway.FetchSignaturesParams) (*gateway.FetchSignaturesResponse, error) {
	g.calls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastSingle = params
	if g.err != nil {
		return nil, g.err
	}
	return g.single, nil
}

func (g *fakeGateway) FetchSignaturesMulti(ctx context.Context, params gateway.FetchSignaturesMultiParams) (*gateway.FetchSignaturesMultiResponse, error) {
	g.calls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastMulti = params
	if g.err != nil {
		return nil, g.err
	}
	return g.multi, nil
}

func sig(seed byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = seed
	}
	return base64.StdEncoding.EncodeToString(b)
}

func okResponse(oracle solana.PublicKey, value string) gateway.FeedEvalResponse {
	return gateway.FeedEvalResponse{
		OraclePubkey: hex.EncodeToString(oracle[:]),
		SuccessValue: value,
		Signature:    sig(oracle[0]),
	}
}

func failedResponse(oracle solana.PublicKey, msg string) gateway.FeedEvalResponse {
	return gateway.FeedEvalResponse{
		OraclePubkey: hex.EncodeToString(oracle[:]),
		FailureError: msg,
	}
}

// multiRow answers every feed with value, or fails them all when value is empty.
func multiRow(oracle solana.PublicKey, numFeeds int, value string) gateway.OracleMultiResponse {
	row := gateway.OracleMultiResponse{}
	for i := 0; i < numFeeds; i++ {
		if value == "" {
			row.FeedResponses = append(row.FeedResponses, failedResponse(oracle, "timeout"))
		} else {
			row.FeedResponses = append(row.FeedResponses, gateway.FeedEvalResponse{
				OraclePubkey: hex.EncodeToString(oracle[:]),
				SuccessValue: value,
			})
		}
	}
	if value != "" {
		row.Signature = sig(oracle[0])
	}
	return row
}
