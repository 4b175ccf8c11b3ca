package types

import (
	"encoding/hex"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// FeedHash is the sha256 of a feed's job schema.
type FeedHash [32]byte

func (h FeedHash) String() string {
	return hex.EncodeToString(h[:])
}

func FeedHashFromHex(s string) (FeedHash, error) {
	var h FeedHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid feed hash %q: %w", s, err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("invalid feed hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// CurrentResult is the aggregate a feed last accepted. Values are
// mantissas at Precision.
type CurrentResult struct {
	Value      sdkmath.Int
	StdDev     sdkmath.Int
	Mean       sdkmath.Int
	Range      sdkmath.Int
	MinValue   sdkmath.Int
	MaxValue   sdkmath.Int
	NumSamples uint8
	Slot       uint64
	MinSlot    uint64
	MaxSlot    uint64
}

// Submission is one stored oracle sample of a feed.
type Submission struct {
	Oracle solana.PublicKey
	Slot   uint64
	Value  sdkmath.Int
}

// FeedSnapshot is a decoded pull feed account. It is never mutated once
// decoded; refreshing means decoding a new one.
type FeedSnapshot struct {
	Authority     solana.PublicKey
	Queue         solana.PublicKey
	FeedHash      FeedHash
	InitializedAt int64
	MaxVariance   uint64
	MinResponses  uint32
	Name          string
	MinSampleSize uint8
	LastUpdate    int64
	LutSlotValue  uint64
	Result        CurrentResult
	MaxStaleness  uint32
	Submissions   []Submission
}

func (f *FeedSnapshot) LutSlot() uint64 {
	return f.LutSlotValue
}

// QuorumPolicy is the part of a feed the gateway needs to evaluate it.
type QuorumPolicy struct {
	MaxVariance   uint64
	MinResponses  uint32
	MinSampleSize uint8
}

func (f *FeedSnapshot) Policy() QuorumPolicy {
	return QuorumPolicy{
		MaxVariance:   f.MaxVariance,
		MinResponses:  f.MinResponses,
		MinSampleSize: f.MinSampleSize,
	}
}

// JobSpec holds the job definitions registered under a feed hash, in
// registry order, as raw JSON objects.
type JobSpec struct {
	FeedHash FeedHash
	Jobs     [][]byte
}

// OracleQuote is one oracle's answer in a gateway round trip.
type OracleQuote struct {
	Oracle     solana.PublicKey
	Value      sdkmath.Int // nil when the oracle produced no usable value
	Signature  [64]byte
	Signed     bool
	RecoveryID uint8
	Error      string
}

func (q OracleQuote) HasValue() bool {
	return !q.Value.IsNil()
}

// QuoteCollectionResult is the outcome of one gateway round trip.
type QuoteCollectionResult struct {
	Quotes       []OracleQuote
	SuccessCount int
	Failures     []string
}

// Errors lists the per-oracle and gateway-level error strings.
func (r QuoteCollectionResult) Errors() []string {
	var out []string
	for _, q := range r.Quotes {
		if q.Error != "" {
			out = append(out, q.Error)
		}
	}
	return append(out, r.Failures...)
}

// MultiQuote is one oracle's row in a multi-feed round trip: one value per
// requested feed, all covered by a single signature.
type MultiQuote struct {
	Oracle     solana.PublicKey
	Values     []sdkmath.Int
	Signature  [64]byte
	Signed     bool
	RecoveryID uint8
	Errors     []string
}
