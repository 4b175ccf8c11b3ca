package scheduler

import (
	"context"
	"time"

	"github.com/armon/go-metrics"

	"github.com/GPTx-global/ondemand/oracle/log"
	"github.com/GPTx-global/ondemand/oracle/pullfeed"
	"github.com/GPTx-global/ondemand/oracle/retry"
)

// executeJob runs one update for job, retrying transient failures. The
// returned result always carries the feed and run number.
func executeJob(ctx context.Context, u Updater, job Job, cfg *retry.Config) JobResult {
	start := time.Now()
	jr := JobResult{
		Feed: job.Feed,
		Run:  job.Runs,
	}

	var update *pullfeed.Update
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		var err error
		update, err = u.Update(ctx, job.Feed)
		return err
	}, retry.DefaultIsRetryable)

	jr.Duration = time.Since(start)
	labels := []metrics.Label{{Name: "feed", Value: job.Feed.String()}}
	if err != nil {
		jr.Err = err
		metrics.IncrCounterWithLabels([]string{"keeper", "update", "failure"}, 1, labels)
		return jr
	}

	jr.Update = update
	metrics.IncrCounterWithLabels([]string{"keeper", "update", "success"}, 1, labels)
	metrics.MeasureSince([]string{"keeper", "update"}, start)
	log.Debugf("%s/%-5d: slot %d, %d signatures", job.Feed, job.Runs, update.Slot, update.SuccessCount)
	return jr
}
