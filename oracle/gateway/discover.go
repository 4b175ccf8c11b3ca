package gateway

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/log"
)

// Discover lists the gateways advertised by a queue's oracles and keeps
// the ones that answer a ping, in queue order. Oracles sharing a gateway
// yield one client.
func Discover(ctx context.Context, c chain.Client, queue solana.PublicKey, opts ...Option) ([]*Client, error) {
	data, err := c.GetAccount(ctx, queue)
	if err != nil {
		return nil, err
	}
	q, err := accounts.DecodeQueue(data)
	if err != nil {
		return nil, err
	}

	raw, err := c.GetAccounts(ctx, q.OracleKeys)
	if err != nil {
		return nil, err
	}

	logger := log.Component("discover")
	seen := make(map[string]bool)
	var candidates []*Client
	for i, d := range raw {
		if d == nil {
			logger.Warn().Str("oracle", q.OracleKeys[i].String()).Msg("oracle account missing")
			continue
		}
		o, err := accounts.DecodeOracle(d)
		if err != nil {
			logger.Warn().Err(err).Str("oracle", q.OracleKeys[i].String()).Msg("skipping oracle")
			continue
		}
		if o.GatewayURI == "" || seen[o.GatewayURI] {
			continue
		}
		seen[o.GatewayURI] = true
		candidates = append(candidates, New(o.GatewayURI, opts...))
	}

	var (
		mu    sync.Mutex
		alive = make([]bool, len(candidates))
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, cl := range candidates {
		i, cl := i, cl
		g.Go(func() error {
			ok := cl.Ping(gctx)
			mu.Lock()
			alive[i] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*Client
	for i, cl := range candidates {
		if alive[i] {
			out = append(out, cl)
		} else {
			logger.Debug().Str("gateway", cl.URL()).Msg("gateway unreachable")
		}
	}
	return out, nil
}
