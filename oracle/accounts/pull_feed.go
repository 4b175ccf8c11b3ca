package accounts

import (
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/types"
)

const (
	PullFeedSize = 3200

	maxSamples       = 32
	submissionSize   = 64
	feedAuthorityOff = 2048
	feedQueueOff     = 2080
	feedHashOff      = 2112
	feedInitAtOff    = 2144
	feedMaxVarOff    = 2160
	feedMinRespOff   = 2168
	feedNameOff      = 2172
	feedMinSampleOff = 2207
	feedLastUpdOff   = 2208
	feedLutSlotOff   = 2216
	feedResultOff    = 2256
	feedMaxStaleOff  = 2384
)

// DecodePullFeed parses a pull feed account.
func DecodePullFeed(data []byte) (*types.FeedSnapshot, error) {
	l, err := newLayout("pull feed", data, PullFeedSize)
	if err != nil {
		return nil, err
	}

	feed := &types.FeedSnapshot{
		Authority:     l.pubkey(feedAuthorityOff),
		Queue:         l.pubkey(feedQueueOff),
		InitializedAt: l.i64(feedInitAtOff),
		MaxVariance:   l.u64(feedMaxVarOff),
		MinResponses:  l.u32(feedMinRespOff),
		Name:          strings.TrimRight(l.cstring(feedNameOff, 32), " "),
		MinSampleSize: l.u8(feedMinSampleOff),
		LastUpdate:    l.i64(feedLastUpdOff),
		LutSlotValue:  l.u64(feedLutSlotOff),
		Result:        decodeResult(l, feedResultOff),
		MaxStaleness:  l.u32(feedMaxStaleOff),
	}
	copy(feed.FeedHash[:], l.body[feedHashOff:feedHashOff+32])

	for i := 0; i < maxSamples; i++ {
		off := i * submissionSize
		slot := l.u64(off + 32)
		if slot == 0 {
			continue
		}
		feed.Submissions = append(feed.Submissions, types.Submission{
			Oracle: l.pubkey(off),
			Slot:   slot,
			Value:  l.i128(off + 48),
		})
	}

	return feed, nil
}

func decodeResult(l layout, off int) types.CurrentResult {
	return types.CurrentResult{
		Value:      l.i128(off),
		StdDev:     l.i128(off + 16),
		Mean:       l.i128(off + 32),
		Range:      l.i128(off + 48),
		MinValue:   l.i128(off + 64),
		MaxValue:   l.i128(off + 80),
		NumSamples: l.u8(off + 96),
		Slot:       l.u64(off + 104),
		MinSlot:    l.u64(off + 112),
		MaxSlot:    l.u64(off + 120),
	}
}

// PullFeedOwner decodes a pull feed for lookup table resolution.
func PullFeedOwner(data []byte) (LutOwner, error) {
	return DecodePullFeed(data)
}

// FeedKeys is a convenience for logging lists of feeds.
func FeedKeys(keys []solana.PublicKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}
