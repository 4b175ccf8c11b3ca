package pullfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/armon/go-metrics"
	"github.com/davecgh/go-spew/spew"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/gateway"
	"github.com/GPTx-global/ondemand/oracle/instruction"
	"github.com/GPTx-global/ondemand/oracle/lut"
	"github.com/GPTx-global/ondemand/oracle/types"
)

type FetchUpdateParams struct {
	Feed     solana.PublicKey
	Payer    solana.PublicKey
	Gateway  gateway.SignatureSource
	Registry JobRegistry
	// NumSignatures of zero derives the count from the feed's minimum
	// sample size.
	NumSignatures uint32
	Debug         bool
}

// Update is everything a caller needs to submit a single-feed update.
type Update struct {
	Instruction  *solana.GenericInstruction
	Quotes       []types.OracleQuote
	SuccessCount int
	Failures     []string
	LookupTables []*lut.Table
	Slot         uint64
}

type FetchUpdateManyParams struct {
	Feeds         []solana.PublicKey
	Payer         solana.PublicKey
	Gateway       gateway.SignatureSource
	Registry      JobRegistry
	NumSignatures uint32
	Debug         bool
}

// UpdateMany is the multi-feed counterpart of Update. Feeds holds the
// collected answers per feed, in request order.
type UpdateMany struct {
	Instruction  *solana.GenericInstruction
	Rows         []types.MultiQuote
	Feeds        []types.QuoteCollectionResult
	SuccessCount int
	LookupTables []*lut.Table
	Slot         uint64
}

// FetchUpdate builds the submit instruction for one feed together with the
// lookup tables that compress it. A failure at any stage returns a
// *types.PipelineError and no partial result.
func (s *Session) FetchUpdate(ctx context.Context, p FetchUpdateParams) (*Update, error) {
	defer metrics.MeasureSince([]string{"pullfeed", "fetch_update"}, time.Now())
	if p.Gateway == nil || p.Registry == nil {
		return nil, fail(types.StageStart, fmt.Errorf("%w: gateway and registry are required", types.ErrInvalidRequest))
	}

	start := time.Now()
	feed, err := s.Feed(ctx, p.Feed)
	if err != nil {
		return nil, fail(types.StageLoadFeed, err)
	}
	measure(types.StageLoadFeed, start)

	start = time.Now()
	_, jobs, err := s.loadJobs(ctx, p.Registry, feed.FeedHash)
	if err != nil {
		return nil, fail(types.StageLoadJobSpec, err)
	}
	measure(types.StageLoadJobSpec, start)

	start = time.Now()
	recent, history, err := recentSlotHash(ctx, s.chain)
	if err != nil {
		return nil, fail(types.StageCollectQuotes, err)
	}
	quotes, err := gateway.NewCollector(p.Gateway).Collect(ctx, gateway.FeedJobs{Jobs: jobs, Policy: feed.Policy()}, recent.Hash, p.NumSignatures)
	if err != nil {
		return nil, fail(types.StageCollectQuotes, err)
	}
	measure(types.StageCollectQuotes, start)
	metrics.IncrCounter([]string{"pullfeed", "quotes", "success"}, float32(quotes.SuccessCount))
	if p.Debug {
		s.logger.Debug().Str("feed", p.Feed.String()).Msg(spew.Sdump(quotes))
	}

	var oracles []solana.PublicKey
	for _, q := range quotes.Quotes {
		if q.Signed {
			oracles = append(oracles, q.Oracle)
		}
	}

	var ix *solana.GenericInstruction
	var feedTables, queueTables, oracleTables []*lut.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer measure(types.StageBuildInstruction, time.Now())
		var err error
		ix, err = instruction.BuildSingle(s.program, p.Feed, feed.Queue, p.Payer, recent.Slot, quotes.Quotes)
		if err != nil {
			return fail(types.StageBuildInstruction, err)
		}
		return nil
	})
	s.resolveTables(gctx, g, accounts.PullFeedOwner, []solana.PublicKey{p.Feed}, &feedTables)
	s.resolveTables(gctx, g, accounts.QueueOwner, []solana.PublicKey{feed.Queue}, &queueTables)
	s.resolveTables(gctx, g, accounts.OracleOwner, oracles, &oracleTables)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	update := &Update{
		Instruction:  ix,
		Quotes:       quotes.Quotes,
		SuccessCount: quotes.SuccessCount,
		Failures:     quotes.Errors(),
		LookupTables: s.usable(recent.Slot, history, feedTables, queueTables, oracleTables),
		Slot:         recent.Slot,
	}
	s.logger.Info().
		Str("feed", p.Feed.String()).
		Uint64("slot", recent.Slot).
		Int("success", update.SuccessCount).
		Int("quotes", len(update.Quotes)).
		Int("tables", len(update.LookupTables)).
		Msg("built feed update")
	return update, nil
}

// FetchUpdateMany builds one instruction updating every feed in p.Feeds.
// All feeds must belong to the same queue.
func (s *Session) FetchUpdateMany(ctx context.Context, p FetchUpdateManyParams) (*UpdateMany, error) {
	defer metrics.MeasureSince([]string{"pullfeed", "fetch_update_many"}, time.Now())
	if len(p.Feeds) == 0 {
		return nil, fail(types.StageStart, fmt.Errorf("%w: no feeds", types.ErrInvalidRequest))
	}
	if p.Gateway == nil || p.Registry == nil {
		return nil, fail(types.StageStart, fmt.Errorf("%w: gateway and registry are required", types.ErrInvalidRequest))
	}

	start := time.Now()
	feeds, err := s.loadFeeds(ctx, p.Feeds)
	if err != nil {
		return nil, fail(types.StageLoadFeed, err)
	}
	queue := feeds[0].Queue
	for i, f := range feeds[1:] {
		if f.Queue != queue {
			return nil, fail(types.StageLoadFeed, fmt.Errorf("%w: feed %s is on queue %s, expected %s",
				types.ErrInvalidRequest, p.Feeds[i+1], f.Queue, queue))
		}
	}
	measure(types.StageLoadFeed, start)

	start = time.Now()
	requests, err := s.loadAllJobs(ctx, p.Registry, feeds)
	if err != nil {
		return nil, fail(types.StageLoadJobSpec, err)
	}
	measure(types.StageLoadJobSpec, start)

	start = time.Now()
	recent, history, err := recentSlotHash(ctx, s.chain)
	if err != nil {
		return nil, fail(types.StageCollectQuotes, err)
	}
	collected, err := gateway.NewCollector(p.Gateway).CollectMany(ctx, requests, recent.Hash, p.NumSignatures)
	if err != nil {
		return nil, fail(types.StageCollectQuotes, err)
	}
	measure(types.StageCollectQuotes, start)
	metrics.IncrCounter([]string{"pullfeed", "quotes", "success"}, float32(collected.SuccessCount))
	if p.Debug {
		s.logger.Debug().Int("feeds", len(p.Feeds)).Msg(spew.Sdump(collected))
	}

	var oracles []solana.PublicKey
	for _, r := range collected.Rows {
		if r.Signed {
			oracles = append(oracles, r.Oracle)
		}
	}

	var ix *solana.GenericInstruction
	var feedTables, queueTables, oracleTables []*lut.Table
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer measure(types.StageBuildInstruction, time.Now())
		var err error
		ix, err = instruction.BuildMany(s.program, p.Feeds, queue, p.Payer, recent.Slot, collected.Rows)
		if err != nil {
			return fail(types.StageBuildInstruction, err)
		}
		return nil
	})
	s.resolveTables(gctx, g, accounts.PullFeedOwner, p.Feeds, &feedTables)
	s.resolveTables(gctx, g, accounts.QueueOwner, []solana.PublicKey{queue}, &queueTables)
	s.resolveTables(gctx, g, accounts.OracleOwner, oracles, &oracleTables)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	update := &UpdateMany{
		Instruction:  ix,
		Rows:         collected.Rows,
		Feeds:        collected.Feeds,
		SuccessCount: collected.SuccessCount,
		LookupTables: s.usable(recent.Slot, history, feedTables, queueTables, oracleTables),
		Slot:         recent.Slot,
	}
	s.logger.Info().
		Str("feeds", accounts.FeedKeys(p.Feeds)).
		Uint64("slot", recent.Slot).
		Int("success", update.SuccessCount).
		Int("rows", len(update.Rows)).
		Int("tables", len(update.LookupTables)).
		Msg("built multi-feed update")
	return update, nil
}

// loadAllJobs loads the job specs of every feed concurrently. Feeds sharing
// a hash share the fetch through the job cache.
func (s *Session) loadAllJobs(ctx context.Context, registry JobRegistry, feeds []*types.FeedSnapshot) ([]gateway.FeedJobs, error) {
	out := make([]gateway.FeedJobs, len(feeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		i, f := i, f
		g.Go(func() error {
			_, jobs, err := s.loadJobs(gctx, registry, f.FeedHash)
			if err != nil {
				return err
			}
			out[i] = gateway.FeedJobs{Jobs: jobs, Policy: f.Policy()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) resolveTables(ctx context.Context, g *errgroup.Group, decode accounts.OwnerDecoder, owners []solana.PublicKey, out *[]*lut.Table) {
	g.Go(func() error {
		defer measure(types.StageResolveLookupTables, time.Now())
		tables, err := s.tables.Resolve(ctx, decode, owners)
		if err != nil {
			return fail(types.StageResolveLookupTables, err)
		}
		*out = tables
		return nil
	})
}
