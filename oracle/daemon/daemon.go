package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/config"
	"github.com/GPTx-global/ondemand/oracle/crossbar"
	"github.com/GPTx-global/ondemand/oracle/gateway"
	"github.com/GPTx-global/ondemand/oracle/health"
	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/pullfeed"
	"github.com/GPTx-global/ondemand/oracle/retry"
	"github.com/GPTx-global/ondemand/oracle/scheduler"
	"github.com/GPTx-global/ondemand/oracle/types"
)

const (
	breakerFailures = 3
	breakerReset    = 30 * time.Second
	healthInterval  = time.Minute
)

// Daemon keeps the configured feeds updated and watches its dependencies.
type Daemon struct {
	ctx      context.Context
	cancel   context.CancelFunc
	chain    chain.Client
	session  *pullfeed.Session
	registry *crossbar.Client

	scheduler *scheduler.Scheduler
	health    *health.Checker

	mu      sync.RWMutex
	gateway *gateway.Client
	breaker *retry.CircuitBreaker
	queue   solana.PublicKey
}

// New creates a daemon talking to the configured RPC endpoint.
func New(ctx context.Context) (*Daemon, error) {
	return NewWithClient(ctx, chain.NewRPCClient(config.RPCEndpoint(), config.Timeout()))
}

func NewWithClient(ctx context.Context, c chain.Client) (*Daemon, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: chain client is required", types.ErrInvalidRequest)
	}

	ctx, cancel := context.WithCancel(ctx)
	d := &Daemon{
		ctx:      ctx,
		cancel:   cancel,
		chain:    c,
		session:  pullfeed.NewSession(c, config.Program()),
		registry: crossbar.New(config.CrossbarURL()),
		health:   health.NewChecker(healthInterval),
		breaker:  retry.NewCircuitBreaker(breakerFailures, breakerReset),
	}
	d.scheduler = scheduler.New(d)
	return d, nil
}

// Session is shared by one-shot commands. Keeper runs each get their own,
// see Update.
func (d *Daemon) Session() *pullfeed.Session {
	return d.session
}

func (d *Daemon) Registry() *crossbar.Client {
	return d.registry
}

func (d *Daemon) Health() *health.Checker {
	return d.health
}

func (d *Daemon) Scheduler() *scheduler.Scheduler {
	return d.scheduler
}

// Gateway is the gateway picked by the last SelectGateway call.
func (d *Daemon) Gateway() *gateway.Client {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gateway
}

// SelectGateway uses the configured gateway URL or, with discovery on, the
// first reachable gateway among the oracles of queue.
func (d *Daemon) SelectGateway(ctx context.Context, queue solana.PublicKey) (*gateway.Client, error) {
	opts := []gateway.Option{
		gateway.WithTimeout(config.Timeout()),
		gateway.WithDebug(config.GatewayDebug()),
	}

	var gw *gateway.Client
	if config.DiscoverGateway() {
		found, err := gateway.Discover(ctx, d.chain, queue, opts...)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%w: no reachable gateway on queue %s", types.ErrTransport, queue)
		}
		gw = found[0]
		config.SetGatewayURL(gw.URL())
	} else {
		gw = gateway.New(config.GatewayURL(), opts...)
	}

	d.mu.Lock()
	d.gateway = gw
	d.queue = queue
	d.mu.Unlock()

	log.Infof("using gateway %s", gw.URL())
	return gw, nil
}

// Start picks a gateway on the queue of the first keeper feed, registers the
// health checks and schedules every keeper feed.
func (d *Daemon) Start() error {
	feeds := config.KeeperFeeds()
	if len(feeds) == 0 {
		return fmt.Errorf("%w: no keeper feeds configured", types.ErrInvalidRequest)
	}

	feed, err := d.session.Feed(d.ctx, feeds[0])
	if err != nil {
		return fmt.Errorf("failed to load feed %s: %w", feeds[0], err)
	}
	if _, err := d.SelectGateway(d.ctx, feed.Queue); err != nil {
		return fmt.Errorf("failed to select gateway: %w", err)
	}

	d.health.AddCheck(health.RPCCheck(d.chain))
	d.health.AddCheck(health.GatewayCheck(d))
	d.health.AddCheck(health.AccountCheck("queue", d.chain, feed.Queue))
	go d.health.Start(d.ctx)

	d.scheduler.Start()
	for _, f := range feeds {
		if err := d.scheduler.AddFeed(f, config.KeeperInterval()); err != nil {
			d.Stop()
			return fmt.Errorf("failed to schedule feed %s: %w", f, err)
		}
	}

	log.Infof("keeping %d feeds every %v", len(feeds), config.KeeperInterval())
	return nil
}

// Stop ends the scheduler and the health loop.
func (d *Daemon) Stop() {
	d.cancel()
	d.scheduler.Stop()
}

// Serve logs scheduler results until the daemon context ends.
func (d *Daemon) Serve() {
	for {
		select {
		case jr := <-d.scheduler.Result():
			if jr.Err != nil {
				continue
			}
			log.Infof("%s run %d: slot %d, %d/%d signatures, %d tables in %v",
				jr.Feed, jr.Run, jr.Update.Slot, jr.Update.SuccessCount, len(jr.Update.Quotes),
				len(jr.Update.LookupTables), jr.Duration.Round(time.Millisecond))
		case <-d.ctx.Done():
			return
		}
	}
}

// Update builds one feed update through the current gateway. Every call uses
// a new session, so the feed account and its lookup tables are read again
// on each run. Transport failures count against the gateway, and once they
// trip the breaker a new gateway is discovered.
func (d *Daemon) Update(ctx context.Context, feed solana.PublicKey) (*pullfeed.Update, error) {
	d.mu.RLock()
	gw, breaker := d.gateway, d.breaker
	d.mu.RUnlock()
	if gw == nil {
		return nil, fmt.Errorf("%w: no gateway selected", types.ErrInvalidRequest)
	}

	session := pullfeed.NewSession(d.chain, d.session.Program())

	var update *pullfeed.Update
	var updateErr error
	err := breaker.Execute(ctx, func(ctx context.Context) error {
		update, updateErr = session.FetchUpdate(ctx, pullfeed.FetchUpdateParams{
			Feed:          feed,
			Payer:         config.Payer(),
			Gateway:       gw,
			Registry:      d.registry,
			NumSignatures: config.NumSignatures(),
			Debug:         config.GatewayDebug(),
		})
		if errors.Is(updateErr, types.ErrTransport) {
			return updateErr
		}
		return nil
	})
	if errors.Is(err, retry.ErrCircuitOpen) {
		d.rotateGateway(ctx)
		return nil, fmt.Errorf("%w: gateway %s: %w", types.ErrTransport, gw.URL(), err)
	}
	if err != nil {
		return nil, err
	}
	return update, updateErr
}

func (d *Daemon) rotateGateway(ctx context.Context) {
	if !config.DiscoverGateway() {
		return
	}

	d.mu.RLock()
	queue := d.queue
	d.mu.RUnlock()

	if _, err := d.SelectGateway(ctx, queue); err != nil {
		log.Warnf("gateway rediscovery failed: %v", err)
		return
	}

	d.mu.Lock()
	d.breaker = retry.NewCircuitBreaker(breakerFailures, breakerReset)
	d.mu.Unlock()
}

func (d *Daemon) URL() string {
	if gw := d.Gateway(); gw != nil {
		return gw.URL()
	}
	return ""
}

func (d *Daemon) Ping(ctx context.Context) bool {
	gw := d.Gateway()
	return gw != nil && gw.Ping(ctx)
}
