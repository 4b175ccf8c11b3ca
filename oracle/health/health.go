package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/log"
)

type Check interface {
	Check(ctx context.Context) error
	Name() string
}

type Status struct {
	Healthy   bool
	LastCheck time.Time
	LastError error
}

// Checker runs its checks on an interval and keeps the latest result of each.
type Checker struct {
	mu       sync.RWMutex
	checks   map[string]Check
	status   map[string]Status
	interval time.Duration
}

func NewChecker(interval time.Duration) *Checker {
	return &Checker{
		checks:   make(map[string]Check),
		status:   make(map[string]Status),
		interval: interval,
	}
}

func (hc *Checker) AddCheck(check Check) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	name := check.Name()
	hc.checks[name] = check
	hc.status[name] = Status{Healthy: true, LastCheck: time.Now()}

	log.Debugf("health: added check %s", name)
}

func (hc *Checker) Start(ctx context.Context) {
	log.Debugf("health: checking every %v", hc.interval)

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			hc.RunChecks(ctx)
		case <-ctx.Done():
			log.Debugf("health: stopped")
			return
		}
	}
}

// RunChecks runs every check concurrently and returns once all have
// reported.
func (hc *Checker) RunChecks(ctx context.Context) {
	hc.mu.RLock()
	checks := make([]Check, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hc.mu.RUnlock()

	var g errgroup.Group
	for _, c := range checks {
		c := c
		g.Go(func() error {
			err := c.Check(ctx)

			hc.mu.Lock()
			hc.status[c.Name()] = Status{Healthy: err == nil, LastCheck: time.Now(), LastError: err}
			hc.mu.Unlock()

			if err != nil {
				log.Warnf("health: %s failed: %v", c.Name(), err)
			} else {
				log.Debugf("health: %s ok", c.Name())
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (hc *Checker) GetStatus() map[string]Status {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := make(map[string]Status, len(hc.status))
	for name, status := range hc.status {
		result[name] = status
	}
	return result
}

// Names lists the registered checks in sorted order.
func (hc *Checker) Names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (hc *Checker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	for _, status := range hc.status {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// FuncCheck adapts a plain function to Check.
type FuncCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

func NewFuncCheck(name string, checkFunc func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, checkFunc: checkFunc}
}

func (f *FuncCheck) Check(ctx context.Context) error {
	return f.checkFunc(ctx)
}

func (f *FuncCheck) Name() string {
	return f.name
}

// Pinger is satisfied by *gateway.Client.
type Pinger interface {
	URL() string
	Ping(ctx context.Context) bool
}

// RPCCheck passes when the SlotHashes sysvar can be read and decoded.
func RPCCheck(c chain.Client) Check {
	return NewFuncCheck("rpc", func(ctx context.Context) error {
		latest, err := chain.LatestSlotHash(ctx, c)
		if err != nil {
			return err
		}
		if latest.Slot == 0 {
			return fmt.Errorf("rpc reports slot 0")
		}
		return nil
	})
}

// GatewayCheck passes when the gateway answers its test endpoint.
func GatewayCheck(gw Pinger) Check {
	return NewFuncCheck("gateway", func(ctx context.Context) error {
		if !gw.Ping(ctx) {
			return fmt.Errorf("gateway %s is unreachable", gw.URL())
		}
		return nil
	})
}

// AccountCheck passes when the account exists on chain.
func AccountCheck(name string, c chain.Client, key solana.PublicKey) Check {
	return NewFuncCheck(name, func(ctx context.Context) error {
		_, err := c.GetAccount(ctx, key)
		return err
	})
}
