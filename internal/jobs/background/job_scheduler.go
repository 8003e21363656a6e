package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"billdesk/internal/analytics"
	"billdesk/internal/jobs"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

const (
	statsRefreshInterval = 5 * time.Minute
	overdueScanInterval  = time.Hour
	lowStockScanInterval = 30 * time.Minute
	jobTimeout           = 2 * time.Minute
)

// JobScheduler runs the periodic maintenance jobs
type JobScheduler struct {
	scheduler    gocron.Scheduler
	analyticsSvc *analytics.AnalyticsService
	alertSvc     *jobs.InventoryAlertService
	jobs         map[string]gocron.Job
	mu           sync.RWMutex
}

// NewJobScheduler creates a new job scheduler with the standard jobs registered
func NewJobScheduler(analyticsSvc *analytics.AnalyticsService, alertSvc *jobs.InventoryAlertService) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler:    scheduler,
		analyticsSvc: analyticsSvc,
		alertSvc:     alertSvc,
		jobs:         make(map[string]gocron.Job),
	}

	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	logrus.WithField("jobs", js.JobNames()).Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	logrus.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	if err := js.AddJob("bill-stats-refresh", statsRefreshInterval, js.analyticsSvc.RefreshAll); err != nil {
		return err
	}
	if err := js.AddJob("overdue-bills-scan", overdueScanInterval, js.alertSvc.ScheduledOverdueCheck); err != nil {
		return err
	}
	if err := js.AddJob("low-stock-scan", lowStockScanInterval, js.alertSvc.ScheduledLowStockCheck); err != nil {
		return err
	}
	logrus.WithField("count", len(js.jobs)).Info("registered background jobs")
	return nil
}

// AddJob registers fn to run every interval. Runs never overlap.
func (js *JobScheduler) AddJob(name string, interval time.Duration, fn func(context.Context) error) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(runJob, name, fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}
	js.jobs[name] = job
	return nil
}

// RemoveJob removes a job from the scheduler
func (js *JobScheduler) RemoveJob(name string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if job, exists := js.jobs[name]; exists {
		err := js.scheduler.RemoveJob(job.ID())
		delete(js.jobs, name)
		return err
	}
	return nil
}

func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	return names
}

// runJob executes one scheduled run with a timeout. A panic is logged and
// does not stop the scheduler.
func runJob(name string, fn func(context.Context) error) {
	log := logrus.WithField("job", name)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("background job panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := time.Now()
	if err := fn(ctx); err != nil {
		log.WithError(err).Error("background job failed")
		return
	}
	log.WithField("duration", time.Since(started)).Debug("background job finished")
}
