package pullfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/armon/go-metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/cache"
	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/crossbar"
	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/lut"
	"github.com/GPTx-global/ondemand/oracle/types"
)

// JobRegistry resolves a feed hash to its job definitions.
type JobRegistry interface {
	FetchJobs(ctx context.Context, hash types.FeedHash) (*types.JobSpec, error)
}

// JobEncoder turns job definitions into the strings a gateway accepts.
type JobEncoder func(spec *types.JobSpec) ([]string, error)

// Session holds the caches shared by every update it builds. Feeds and job
// specs are loaded once per session; quotes never are.
type Session struct {
	chain   chain.Client
	program accounts.Program
	feeds   *cache.Cache[solana.PublicKey, *types.FeedSnapshot]
	jobs    *cache.Cache[types.FeedHash, *types.JobSpec]
	tables  *lut.Resolver
	encode  JobEncoder
	logger  zerolog.Logger
}

type Option func(*Session)

func WithJobEncoder(enc JobEncoder) Option {
	return func(s *Session) {
		s.encode = enc
	}
}

func NewSession(c chain.Client, program accounts.Program, opts ...Option) *Session {
	s := &Session{
		chain:   c,
		program: program,
		feeds:   cache.New[solana.PublicKey, *types.FeedSnapshot]("feeds"),
		jobs:    cache.New[types.FeedHash, *types.JobSpec]("jobs"),
		tables:  lut.NewResolver(c, program),
		encode:  crossbar.EncodeJobs,
		logger:  log.Component("pullfeed"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Program() accounts.Program {
	return s.program
}

// Feed returns the cached snapshot of feed, loading it if needed.
func (s *Session) Feed(ctx context.Context, feed solana.PublicKey) (*types.FeedSnapshot, error) {
	return s.feeds.GetOrFetch(ctx, feed, func(ctx context.Context) (*types.FeedSnapshot, error) {
		data, err := s.chain.GetAccount(ctx, feed)
		if err != nil {
			return nil, err
		}
		return accounts.DecodePullFeed(data)
	})
}

// Refresh drops the cached snapshot of feed so the next run reads it again.
func (s *Session) Refresh(feed solana.PublicKey) bool {
	return s.feeds.Forget(feed)
}

func (s *Session) loadFeeds(ctx context.Context, feeds []solana.PublicKey) ([]*types.FeedSnapshot, error) {
	return s.feeds.GetOrFetchBatch(ctx, feeds, func(ctx context.Context, keys []solana.PublicKey) ([]*types.FeedSnapshot, error) {
		raw, err := s.chain.GetAccounts(ctx, keys)
		if err != nil {
			return nil, err
		}
		out := make([]*types.FeedSnapshot, len(keys))
		for i, data := range raw {
			if data == nil {
				return nil, fmt.Errorf("%w: feed %s", types.ErrNotFound, keys[i])
			}
			if out[i], err = accounts.DecodePullFeed(data); err != nil {
				return nil, fmt.Errorf("feed %s: %w", keys[i], err)
			}
		}
		return out, nil
	})
}

func (s *Session) loadJobs(ctx context.Context, registry JobRegistry, hash types.FeedHash) (*types.JobSpec, []string, error) {
	spec, err := s.jobs.GetOrFetch(ctx, hash, func(ctx context.Context) (*types.JobSpec, error) {
		return registry.FetchJobs(ctx, hash)
	})
	if err != nil {
		return nil, nil, err
	}
	encoded, err := s.encode(spec)
	if err != nil {
		return nil, nil, err
	}
	return spec, encoded, nil
}

// usable drops tables the transaction cannot reference: ones that were never
// created and ones whose deactivation has completed. Duplicates are merged.
// Tables extended in current are cut to the addresses visible at current.
func (s *Session) usable(current uint64, history chain.SlotHashes, groups ...[]*lut.Table) []*lut.Table {
	seen := make(map[solana.PublicKey]bool)
	var out []*lut.Table
	for _, group := range groups {
		for _, t := range group {
			if seen[t.Key] {
				continue
			}
			seen[t.Key] = true

			if !t.Exists {
				s.logger.Debug().Str("owner", t.Owner.String()).Str("table", t.Key.String()).Msg("lookup table not created, skipping")
				continue
			}
			n, err := t.ActiveAddressesLen(current, history)
			if err != nil {
				s.logger.Warn().Str("owner", t.Owner.String()).Str("table", t.Key.String()).Msg("lookup table deactivated, skipping")
				continue
			}
			if n < len(t.Addresses) {
				active := *t
				active.Addresses = t.Addresses[:n]
				t = &active
			}
			out = append(out, t)
		}
	}
	return out
}

func recentSlotHash(ctx context.Context, c chain.Client) (chain.SlotHash, chain.SlotHashes, error) {
	history, err := chain.FetchSlotHashes(ctx, c)
	if err != nil {
		return chain.SlotHash{}, nil, err
	}
	latest, ok := history.Latest()
	if !ok {
		return chain.SlotHash{}, nil, fmt.Errorf("%w: slot hashes sysvar is empty", types.ErrDeserialize)
	}
	return latest, history, nil
}

func measure(stage types.Stage, start time.Time) {
	metrics.MeasureSince([]string{"pullfeed", "stage", stage.String()}, start)
}

func fail(stage types.Stage, err error) error {
	metrics.IncrCounterWithLabels([]string{"pullfeed", "failed"}, 1, []metrics.Label{{Name: "stage", Value: stage.String()}})
	return types.NewPipelineError(stage, err)
}
