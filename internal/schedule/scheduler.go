package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is a maintenance task run on a cron spec. Runs never overlap: if a
// run is still active when the next tick fires, the tick is skipped.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type CronScheduler struct {
	cron *cron.Cron
	base atomic.Pointer[context.Context]
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
	}
}

// AddJob schedules job on spec. A positive timeout bounds each run with a
// deadline so a stuck job cannot block the next tick forever.
func (c *CronScheduler) AddJob(job Job, spec string, timeout time.Duration) error {
	var running atomic.Bool
	_, err := c.cron.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(context.Background()).Info("maintenance job still running, tick skipped",
				zap.String("job", job.Name()))
			return
		}
		defer running.Store(false)
		c.runJob(job, timeout)
	})
	if err != nil {
		logutil.GetLogger(context.Background()).Error("schedule maintenance job failed",
			zap.String("job", job.Name()), zap.String("cron_spec", spec), zap.Error(err))
		return err
	}
	logutil.GetLogger(context.Background()).Info("maintenance job scheduled",
		zap.String("job", job.Name()), zap.String("cron_spec", spec))
	return nil
}

func (c *CronScheduler) runJob(job Job, timeout time.Duration) {
	ctx := context.Background()
	if base := c.base.Load(); base != nil {
		ctx = *base
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger := logutil.GetLogger(ctx).With(zap.String("job", job.Name()))
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("maintenance job failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return
	}
	logger.Info("maintenance job done", zap.Duration("elapsed", elapsed))
}

// Start begins firing ticks. ctx becomes the parent of every job run, so
// shutting the process down cancels in-flight jobs.
func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.base.Store(&ctx)
	c.cron.Start()
}

// Stop halts ticking and waits for the active run, if any, to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}
