package gateway

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/types"
)

// SignatureSource is the subset of Client the collector needs.
type SignatureSource interface {
	URL() string
	FetchSignatures(ctx context.Context, params FetchSignaturesParams) (*FetchSignaturesResponse, error)
	FetchSignaturesMulti(ctx context.Context, params FetchSignaturesMultiParams) (*FetchSignaturesMultiResponse, error)
}

// DefaultSignatureCount asks for a third more signers than the feed needs,
// so a few failing oracles still leave a quorum.
func DefaultSignatureCount(minSampleSize uint8) uint32 {
	n := (uint32(minSampleSize)*4 + 2) / 3
	if n == 0 {
		return 1
	}
	return n
}

// FeedJobs pairs a feed's encoded jobs with its quorum policy.
type FeedJobs struct {
	Jobs   []string
	Policy types.QuorumPolicy
}

// MultiCollectionResult is the outcome of one multi-feed round trip. Rows
// are per oracle, Feeds are the same answers viewed per feed.
type MultiCollectionResult struct {
	Rows         []types.MultiQuote
	Feeds        []types.QuoteCollectionResult
	SuccessCount int
	Failures     []string
}

func (r MultiCollectionResult) Errors() []string {
	var out []string
	for _, row := range r.Rows {
		out = append(out, row.Errors...)
	}
	return append(out, r.Failures...)
}

type Collector struct {
	source SignatureSource
	logger zerolog.Logger
}

func NewCollector(source SignatureSource) *Collector {
	return &Collector{
		source: source,
		logger: log.Component("collector").With().Str("gateway", source.URL()).Logger(),
	}
}

// Collect asks the gateway to evaluate one feed. numSignatures of zero
// uses DefaultSignatureCount.
func (c *Collector) Collect(ctx context.Context, feed FeedJobs, recentHash solana.Hash, numSignatures uint32) (*types.QuoteCollectionResult, error) {
	if numSignatures == 0 {
		numSignatures = DefaultSignatureCount(feed.Policy.MinSampleSize)
	}

	res, err := c.source.FetchSignatures(ctx, FetchSignaturesParams{
		RecentHash:    recentHash.String(),
		EncodedJobs:   feed.Jobs,
		NumSignatures: numSignatures,
		MaxVariance:   uint32(feed.Policy.MaxVariance / 1e9),
		MinResponses:  feed.Policy.MinResponses,
	})
	if err != nil {
		return nil, err
	}

	out := &types.QuoteCollectionResult{Failures: res.Failures}
	for _, r := range res.Responses {
		q := parseQuote(r)
		if q.HasValue() {
			out.SuccessCount++
		}
		out.Quotes = append(out.Quotes, q)
	}

	c.logger.Debug().
		Uint32("requested", numSignatures).
		Int("responses", len(out.Quotes)).
		Int("success", out.SuccessCount).
		Msg("collected quotes")

	if out.SuccessCount == 0 {
		return nil, &types.NoQuotesError{Errors: withFallback(out.Errors(), len(res.Responses))}
	}
	return out, nil
}

// CollectMany evaluates several feeds in one round trip. Every oracle signs
// all of its values together. numSignatures of zero uses the largest
// DefaultSignatureCount among the feeds.
func (c *Collector) CollectMany(ctx context.Context, feeds []FeedJobs, recentHash solana.Hash, numSignatures uint32) (*MultiCollectionResult, error) {
	if len(feeds) == 0 {
		return nil, fmt.Errorf("%w: no feeds to collect", types.ErrInvalidRequest)
	}
	if numSignatures == 0 {
		for _, f := range feeds {
			if n := DefaultSignatureCount(f.Policy.MinSampleSize); n > numSignatures {
				numSignatures = n
			}
		}
	}

	requests := make([]FeedRequest, len(feeds))
	for i, f := range feeds {
		requests[i] = FeedRequest{
			EncodedJobs:  f.Jobs,
			MaxVariance:  uint32(f.Policy.MaxVariance / 1e9),
			MinResponses: f.Policy.MinResponses,
		}
	}

	res, err := c.source.FetchSignaturesMulti(ctx, FetchSignaturesMultiParams{
		RecentHash:    recentHash.String(),
		Feeds:         requests,
		NumSignatures: numSignatures,
	})
	if err != nil {
		return nil, err
	}

	out := &MultiCollectionResult{
		Feeds:    make([]types.QuoteCollectionResult, len(feeds)),
		Failures: derefAll(res.Errors),
	}
	for _, r := range res.OracleResponses {
		row := parseRow(r, len(feeds))
		for i, v := range row.Values {
			q := types.OracleQuote{
				Oracle:     row.Oracle,
				Value:      v,
				Signature:  row.Signature,
				Signed:     row.Signed,
				RecoveryID: row.RecoveryID,
			}
			if i < len(r.FeedResponses) {
				q.Error = r.FeedResponses[i].FailureError
			}
			if q.HasValue() {
				out.Feeds[i].SuccessCount++
				out.SuccessCount++
			}
			out.Feeds[i].Quotes = append(out.Feeds[i].Quotes, q)
		}
		out.Rows = append(out.Rows, row)
	}

	c.logger.Debug().
		Int("feeds", len(feeds)).
		Uint32("requested", numSignatures).
		Int("rows", len(out.Rows)).
		Int("success", out.SuccessCount).
		Msg("collected multi-feed quotes")

	if out.SuccessCount == 0 {
		return nil, &types.NoQuotesError{Errors: withFallback(out.Errors(), len(res.OracleResponses))}
	}
	return out, nil
}

// parseQuote turns one gateway answer into a quote. A value is only kept
// when the oracle key and signature are usable too, since it could not be
// submitted otherwise.
func parseQuote(r FeedEvalResponse) types.OracleQuote {
	var (
		q    types.OracleQuote
		errs []string
	)
	if r.FailureError != "" {
		errs = append(errs, r.FailureError)
	}

	oracle, keyErr := parseOracleKey(r.OraclePubkey)
	if keyErr != nil {
		errs = append(errs, keyErr.Error())
	}
	q.Oracle = oracle

	sig, signed, err := parseSignature(r.Signature)
	if err != nil {
		errs = append(errs, err.Error())
	}
	q.Signature, q.Signed = sig, signed && keyErr == nil
	q.RecoveryID = uint8(r.RecoveryID)

	if v, ok := types.ParseInt128(r.SuccessValue); ok && q.Signed {
		q.Value = v
	} else if ok {
		errs = append(errs, "value without a usable signature")
	}

	q.Error = strings.Join(errs, "; ")
	return q
}

func parseRow(r OracleMultiResponse, numFeeds int) types.MultiQuote {
	row := types.MultiQuote{
		Values:     make([]sdkmath.Int, numFeeds),
		RecoveryID: uint8(r.RecoveryID),
		Errors:     derefAll(r.Errors),
	}

	keyOK := false
	if len(r.FeedResponses) == 0 {
		row.Errors = append(row.Errors, "oracle returned no feed responses")
	} else if oracle, err := parseOracleKey(r.FeedResponses[0].OraclePubkey); err != nil {
		row.Errors = append(row.Errors, err.Error())
	} else {
		row.Oracle, keyOK = oracle, true
	}

	sig, signed, err := parseSignature(r.Signature)
	if err != nil {
		row.Errors = append(row.Errors, err.Error())
	}
	row.Signature, row.Signed = sig, signed && keyOK

	for i := 0; i < numFeeds && i < len(r.FeedResponses); i++ {
		fr := r.FeedResponses[i]
		if fr.FailureError != "" {
			row.Errors = append(row.Errors, fr.FailureError)
		}
		if v, ok := types.ParseInt128(fr.SuccessValue); ok && row.Signed {
			row.Values[i] = v
		}
	}
	return row
}

func parseOracleKey(s string) (solana.PublicKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("invalid oracle key %q", s)
	}
	return solana.PublicKeyFromBytes(b), nil
}

// parseSignature reports signed only for a well formed 64 byte signature.
// An empty signature is not an error: failed oracles do not sign.
func parseSignature(s string) ([64]byte, bool, error) {
	var sig [64]byte
	if s == "" {
		return sig, false, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != len(sig) {
		return sig, false, fmt.Errorf("invalid signature %q", s)
	}
	copy(sig[:], b)
	return sig, true, nil
}

func derefAll(in []*string) []string {
	var out []string
	for _, s := range in {
		if s != nil && *s != "" {
			out = append(out, *s)
		}
	}
	return out
}

func withFallback(errs []string, responses int) []string {
	if len(errs) == 0 {
		return []string{fmt.Sprintf("gateway returned %d responses without a value", responses)}
	}
	return errs
}
