package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"budgetlink/internal/domain/job"
	"budgetlink/internal/shared/telemetry"
)

var (
	jobTracer         = telemetry.Tracer("scheduler")
	jobMeter          = telemetry.Meter("scheduler")
	jobDuration, _    = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _       = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobClaimErrors, _ = jobMeter.Int64Counter("scheduler.job.claim_errors", metric.WithDescription("Failed attempts to claim a job"))
)

// WorkerPoolConfig sizes the pool.
type WorkerPoolConfig struct {
	WorkerCount  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// WorkerPool runs workers that drain the durable job queue. Each worker
// claims one job at a time; idle workers sleep for the poll interval.
// Several pools in different processes may share the queue.
type WorkerPool struct {
	claimer  JobClaimer
	handlers []JobHandler
	config   WorkerPoolConfig

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// jobCtx is cancelled only once the workers stop or the shutdown timeout passes.
	jobCtx    context.Context
	jobCancel context.CancelFunc
}

// NewWorkerPool creates a pool that claims jobs for the given handlers.
func NewWorkerPool(claimer JobClaimer, config WorkerPoolConfig, handlers ...JobHandler) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	jobCtx, jobCancel := context.WithCancel(context.Background())

	return &WorkerPool{
		claimer:   claimer,
		handlers:  handlers,
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
		jobCtx:    jobCtx,
		jobCancel: jobCancel,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	log.Printf("Starting worker pool with %d workers, polling every %v", wp.config.WorkerCount, wp.config.PollInterval)

	for i := 1; i <= wp.config.WorkerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// worker claims and runs jobs until the pool is shut down.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	log.Printf("Worker %d started", id)

	for {
		if wp.ctx.Err() != nil {
			log.Printf("Worker %d shutting down", id)
			return
		}

		if wp.runOnce(id) {
			continue
		}

		select {
		case <-wp.ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		case <-time.After(wp.config.PollInterval):
		}
	}
}

// runOnce tries every handler's job type once. It reports whether a job ran.
func (wp *WorkerPool) runOnce(workerID int) bool {
	for _, h := range wp.handlers {
		j, err := wp.claimer.ClaimNextJob(wp.ctx, h.JobType())
		if err != nil {
			if wp.ctx.Err() == nil {
				jobClaimErrors.Add(wp.ctx, 1, metric.WithAttributes(attribute.String("job.type", h.JobType())))
				log.Printf("Worker %d: Error claiming %s job: %v", workerID, h.JobType(), err)
			}
			continue
		}
		if j == nil {
			continue
		}

		wp.processJob(workerID, h, j)
		return true
	}
	return false
}

// processJob executes a single job with error handling, logging, and telemetry.
func (wp *WorkerPool) processJob(workerID int, h JobHandler, j *job.Job) {
	log.Printf("Worker %d: Processing job %d (%s, attempt %d)", workerID, j.ID, j.JobType, j.Attempts)

	ctx, cancel := context.WithTimeout(wp.jobCtx, wp.config.JobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.Int64("job.id", j.ID),
			attribute.String("job.type", j.JobType),
			attribute.Int("job.attempt", j.Attempts),
		),
	)
	defer span.End()

	start := time.Now()
	typeAttr := attribute.String("job.type", j.JobType)

	if err := h.Execute(ctx, j); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(typeAttr, attribute.String("status", "error")))
		jobDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(typeAttr))
		log.Printf("Worker %d: Error processing job %d: %v", workerID, j.ID, err)
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(typeAttr, attribute.String("status", "success")))
	jobDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(typeAttr))
	log.Printf("Worker %d: Successfully completed job %d in %v", workerID, j.ID, time.Since(start).Round(time.Millisecond))
}

// Shutdown stops claiming new jobs and waits for running ones to finish.
func (wp *WorkerPool) Shutdown() {
	log.Println("Worker pool: Initiating graceful shutdown")

	wp.cancel()

	log.Println("Worker pool: Waiting for workers to finish...")
	wp.wg.Wait()
	wp.jobCancel()

	log.Println("Worker pool: Shutdown complete")
}

// ShutdownWithTimeout shuts down the worker pool and cancels jobs still
// running after timeout. A cancelled job is recorded as failed.
func (wp *WorkerPool) ShutdownWithTimeout(timeout time.Duration) {
	log.Printf("Worker pool: Initiating graceful shutdown with %v timeout", timeout)

	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Worker pool: All workers finished gracefully")
	case <-time.After(timeout):
		log.Println("Worker pool: Timeout reached, cancelling running jobs")
	}
	wp.jobCancel()

	log.Println("Worker pool: Shutdown complete")
}
