package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry binds a job to its cron spec. A zero Timeout lets a run last until
// the scheduler stops.
type Entry struct {
	Job        Job
	Spec       string
	Timeout    time.Duration
	RunOnStart bool
}

type Scheduler interface {
	Add(entry Entry) error
	Start(ctx context.Context)
	Stop()
}

type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	startup []func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
	}
}

func (c *CronScheduler) Add(entry Entry) error {
	if entry.Job == nil {
		return fmt.Errorf("schedule: nil job")
	}
	name := entry.Job.Name()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("schedule: job %s already added", name)
	}
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", entry.Spec))
	run := c.wrap(entry)
	entryID, err := c.cron.AddFunc(entry.Spec, run)
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	c.entries[name] = entryID
	if entry.RunOnStart {
		c.startup = append(c.startup, run)
	}
	logger.Info("job scheduled", zap.Bool("run_on_start", entry.RunOnStart))
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	for _, run := range c.startup {
		c.wg.Add(1)
		go func(run func()) {
			defer c.wg.Done()
			run()
		}(run)
	}
	c.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (c *CronScheduler) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	done := c.cron.Stop()
	<-done.Done()
	c.wg.Wait()
}

func (c *CronScheduler) wrap(entry Entry) func() {
	var running atomic.Bool
	job := entry.Job
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(context.Background()).With(
				zap.String("job", job.Name()),
				zap.String("spec", entry.Spec),
			).Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if entry.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, entry.Timeout)
			defer cancel()
		}
		logger := logutil.GetLogger(ctx).With(
			zap.String("job", job.Name()),
			zap.String("spec", entry.Spec),
		)
		start := time.Now()
		logger.Debug("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("job finished", zap.Duration("duration", elapsed))
	}
}
