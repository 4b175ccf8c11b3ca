package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/GPTx-global/ondemand/oracle/config"
	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/pullfeed"
	"github.com/GPTx-global/ondemand/oracle/retry"
)

// Updater builds the update for one feed.
type Updater interface {
	Update(ctx context.Context, feed solana.PublicKey) (*pullfeed.Update, error)
}

// Job is one feed kept fresh on a fixed interval. ID changes every time the
// feed is added so a stale timer from an earlier registration is ignored.
// Runs counts executions and travels with the queued job.
type Job struct {
	ID       uint64
	Feed     solana.PublicKey
	Interval time.Duration
	Runs     uint64
}

type JobResult struct {
	Feed     solana.PublicKey
	Run      uint64
	Update   *pullfeed.Update
	Err      error
	Duration time.Duration
}

type Scheduler struct {
	wg          sync.WaitGroup
	stopOnce    sync.Once
	quit        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	nextID      atomic.Uint64
	updater     Updater
	retry       *retry.Config
	workers     int
	jobStore    cmap.ConcurrentMap[string, Job]
	jobQueue    chan Job
	resultQueue chan JobResult
}

func New(updater Updater) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		quit:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		updater:     updater,
		retry:       retry.UpdateConfig(config.MaxRetries()),
		workers:     config.KeeperWorkers(),
		jobStore:    cmap.New[Job](),
		jobQueue:    make(chan Job, config.ChannelSize()),
		resultQueue: make(chan JobResult, config.ChannelSize()),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	log.Debugf("scheduler started with %d workers", s.workers)
}

// Stop ends the workers and waits for them. It is safe to call more than
// once, also concurrently.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.cancel()
	})
	s.wg.Wait()
}

// Done is closed once Stop has been called.
func (s *Scheduler) Done() <-chan struct{} {
	return s.quit
}

// AddFeed schedules feed for an immediate update and then one every
// interval.
func (s *Scheduler) AddFeed(feed solana.PublicKey, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", interval)
	}

	job := Job{
		ID:       s.nextID.Add(1),
		Feed:     feed,
		Interval: interval,
	}
	if !s.jobStore.SetIfAbsent(feed.String(), job) {
		return fmt.Errorf("feed already scheduled: %s", feed)
	}

	s.enqueue(job)
	return nil
}

// RemoveFeed stops scheduling feed. A run already in flight still reports
// its result.
func (s *Scheduler) RemoveFeed(feed solana.PublicKey) bool {
	_, ok := s.jobStore.Pop(feed.String())
	return ok
}

// Jobs lists the registered feeds ordered by key.
func (s *Scheduler) Jobs() []Job {
	jobs := make([]Job, 0, s.jobStore.Count())
	for _, job := range s.jobStore.Items() {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Feed.String() < jobs[j].Feed.String()
	})
	return jobs
}

func (s *Scheduler) Result() <-chan JobResult {
	return s.resultQueue
}

func (s *Scheduler) enqueue(job Job) {
	select {
	case s.jobQueue <- job:
	case <-s.quit:
	}
}

// requeue puts job back after its interval if it is still the registered
// job for its feed.
func (s *Scheduler) requeue(job Job) {
	time.AfterFunc(job.Interval, func() {
		if current, ok := s.jobStore.Get(job.Feed.String()); !ok || current.ID != job.ID {
			return
		}
		s.enqueue(job)
	})
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.jobQueue:
			if current, ok := s.jobStore.Get(job.Feed.String()); !ok || current.ID != job.ID {
				continue
			}
			job.Runs++

			jr := executeJob(s.ctx, s.updater, job, s.retry)
			if jr.Err != nil {
				log.Errorf("failed to update feed %s: %v", job.Feed, jr.Err)
			}

			select {
			case s.resultQueue <- jr:
			case <-s.quit:
				return
			}

			s.requeue(job)

		case <-s.quit:
			return
		}
	}
}
