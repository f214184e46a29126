package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/openfinance"
)

// ScheduleTime represents a specific time of day when the scheduler should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// SyncEnqueuer starts syncs and recovers abandoned jobs.
type SyncEnqueuer interface {
	InitiateSyncForItem(ctx context.Context, institutionID int64) (*job.Job, error)
	ReapStaleJobs(ctx context.Context, lease time.Duration) (int, error)
}

// InstitutionLister lists the institutions eligible for periodic sync.
type InstitutionLister interface {
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// EnqueueResult summarizes one scheduled run.
type EnqueueResult struct {
	Enqueued       int
	AlreadySyncing int
	Failed         int
}

// Scheduler enqueues a sync for every active institution at fixed times of
// day and reaps expired job leases every minute. It only writes to the job
// queue; the worker pool does the syncing.
type Scheduler struct {
	enqueuer      SyncEnqueuer
	institutions  InstitutionLister
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobLease      time.Duration
	tick          time.Duration

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastRunDate string
	mu          sync.RWMutex
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	ScheduleTimes []string
	RunOnStartup  bool
	JobLease      time.Duration
}

// NewScheduler creates a new scheduler with the given configuration.
func NewScheduler(enqueuer SyncEnqueuer, institutions InstitutionLister, config SchedulerConfig) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, timeStr := range config.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}

	if len(scheduleTimes) == 0 {
		return nil, fmt.Errorf("at least one schedule time is required")
	}
	if config.JobLease <= 0 {
		return nil, fmt.Errorf("job lease must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())

	log.Printf("Scheduler initialized with %d schedule times: %v, job lease %v", len(scheduleTimes), config.ScheduleTimes, config.JobLease)

	return &Scheduler{
		enqueuer:      enqueuer,
		institutions:  institutions,
		scheduleTimes: scheduleTimes,
		runOnStartup:  config.RunOnStartup,
		jobLease:      config.JobLease,
		tick:          time.Minute,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	if s.runOnStartup {
		log.Println("Scheduler: Enqueueing initial sync batch on startup")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJobs()
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Println("Scheduler started")
}

// scheduleLoop is the main scheduling loop.
func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	log.Printf("Scheduler loop started, checking every %v", s.tick)

	for {
		select {
		case <-s.ctx.Done():
			log.Println("Scheduler loop: Context cancelled, shutting down")
			return

		case now := <-ticker.C:
			s.reapStale()
			if s.shouldRun(now) {
				log.Printf("Scheduler: Triggered at %s", now.Format("15:04"))
				s.runJobs()
			}
		}
	}
}

// shouldRun checks if the current time matches any scheduled time.
func (s *Scheduler) shouldRun(now time.Time) bool {
	currentHour := now.Hour()
	currentMinute := now.Minute()
	currentKey := fmt.Sprintf("%s-%02d:%02d", now.Format("2006-01-02"), currentHour, currentMinute)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRunDate == currentKey {
		return false
	}

	for _, st := range s.scheduleTimes {
		if currentHour == st.Hour && currentMinute == st.Minute {
			s.lastRunDate = currentKey
			return true
		}
	}

	return false
}

func (s *Scheduler) reapStale() {
	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	n, err := s.enqueuer.ReapStaleJobs(ctx, s.jobLease)
	if err != nil {
		log.Printf("Scheduler: Failed to reap stale jobs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Scheduler: Reaped %d jobs with expired leases", n)
	}
}

// runJobs enqueues a sync for every active institution.
func (s *Scheduler) runJobs() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.EnqueueAll(ctx); err != nil {
		log.Printf("Scheduler: %v", err)
	}
}

// EnqueueAll initiates a sync for every active institution. Institutions
// already syncing are skipped; other per-institution failures are logged and
// counted without stopping the run.
func (s *Scheduler) EnqueueAll(ctx context.Context) (EnqueueResult, error) {
	var result EnqueueResult

	ids, err := s.institutions.ListActiveIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list institutions: %w", err)
	}

	if len(ids) == 0 {
		log.Println("Scheduler: No institutions to sync")
		return result, nil
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		_, err := s.enqueuer.InitiateSyncForItem(ctx, id)
		switch {
		case err == nil:
			result.Enqueued++
		case errors.Is(err, openfinance.ErrAlreadySyncing):
			result.AlreadySyncing++
		default:
			result.Failed++
			log.Printf("Scheduler: Failed to enqueue sync for institution %d: %v", id, err)
		}
	}

	log.Printf("Scheduler: Enqueued %d/%d syncs (already syncing: %d, failed: %d)",
		result.Enqueued, len(ids), result.AlreadySyncing, result.Failed)
	return result, nil
}

// Shutdown gracefully stops the scheduler.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	log.Println("Scheduler: Initiating graceful shutdown...")

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Scheduler: Scheduler loop stopped gracefully")
	case <-time.After(timeout):
		log.Println("Scheduler: Timeout waiting for scheduler loop to stop")
	}

	log.Println("Scheduler: Shutdown complete")
}

// GetNextScheduledTime returns the next scheduled run time.
func (s *Scheduler) GetNextScheduledTime() time.Time {
	return nextScheduledTime(time.Now(), s.scheduleTimes)
}

func nextScheduledTime(now time.Time, scheduleTimes []ScheduleTime) time.Time {
	var next time.Time
	for _, st := range scheduleTimes {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next
}

// GetScheduleTimes returns the configured schedule times.
func (s *Scheduler) GetScheduleTimes() []ScheduleTime {
	return s.scheduleTimes
}
