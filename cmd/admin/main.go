package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/openfinance"
	"budgetlink/internal/infrastructure/postgres"
	"budgetlink/internal/interfaces/scheduler"
	"budgetlink/internal/shared/config"
)

const usage = `BudgetLink Admin CLI - Management commands for the BudgetLink API

Usage:
  admin <command> [options]

Commands:
  migrate        Apply, roll back or inspect database migrations
  enqueue-sync   Queue a sync job for one or more institutions
  sync-all       Queue a sync job for every active institution
  reap-jobs      Fail running jobs whose lease has expired
  list-jobs      List background jobs by status

Examples:
  admin migrate up
  admin migrate down
  admin migrate version

  # Queue a sync for specific institutions
  admin enqueue-sync --institution-id=12,13

  # Queue a sync for everything, like a scheduled run
  admin sync-all

  # Fail jobs running for more than 10 minutes
  admin reap-jobs --lease=10m

  admin list-jobs --status=failed --limit=20
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "migrate":
		runMigrate(os.Args[2:])
	case "enqueue-sync":
		runEnqueueSync(os.Args[2:])
	case "sync-all":
		runSyncAll(os.Args[2:])
	case "reap-jobs":
		runReapJobs(os.Args[2:])
	case "list-jobs":
		runListJobs(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func mustConnect(cfg *config.Config) *postgres.DB {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")
	return db
}

// newOrchestrator builds an orchestrator without a notifier; admin commands
// never trigger relink notifications.
func newOrchestrator(db *postgres.DB) *openfinance.SyncOrchestrator {
	return openfinance.NewSyncOrchestrator(postgres.NewUnitOfWorkFactory(postgres.NewTxManager(db)), nil)
}

func runMigrate(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: admin migrate <up|down|version>")
		os.Exit(1)
	}

	cfg := mustLoadConfig()
	dbURL := cfg.Database.URL()
	path := cfg.Database.MigrationsPath

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(dbURL, path); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations applied")
	case "down":
		if err := postgres.RollbackMigration(dbURL, path); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rolled back one migration")
	case "version":
		version, dirty, err := postgres.MigrationVersion(dbURL, path)
		if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
	default:
		fmt.Printf("Unknown migrate action: %s\n", args[0])
		os.Exit(1)
	}
}

func runEnqueueSync(args []string) {
	fs := flag.NewFlagSet("enqueue-sync", flag.ExitOnError)
	idsStr := fs.String("institution-id", "", "Institution ID(s) to sync (comma-separated for multiple)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ids, err := parseIDs(*idsStr)
	if err != nil {
		log.Fatalf("Invalid --institution-id: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("Error: must specify --institution-id")
		fs.Usage()
		os.Exit(1)
	}

	cfg := mustLoadConfig()
	db := mustConnect(cfg)
	defer db.Close()

	orchestrator := newOrchestrator(db)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failed := 0
	for _, id := range ids {
		j, err := orchestrator.InitiateSyncForItem(ctx, id)
		if err != nil {
			log.Printf("Institution %d: %v", id, err)
			failed++
			continue
		}
		log.Printf("Institution %d: queued job %d", id, j.ID)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func runSyncAll(args []string) {
	fs := flag.NewFlagSet("sync-all", flag.ExitOnError)
	timeoutStr := fs.String("timeout", "5m", "Timeout for the operation (e.g., 5m, 1h)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}

	cfg := mustLoadConfig()
	db := mustConnect(cfg)
	defer db.Close()

	sched, err := scheduler.NewScheduler(newOrchestrator(db), postgres.NewInstitutionRepository(db), scheduler.SchedulerConfig{
		ScheduleTimes: cfg.Scheduler.ScheduleTimes,
		JobLease:      cfg.Worker.JobLease,
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := sched.EnqueueAll(ctx)
	if err != nil {
		log.Fatalf("Sync-all failed: %v", err)
	}

	fmt.Printf("\n=== Sync-All Summary ===\n")
	fmt.Printf("Enqueued:        %d\n", result.Enqueued)
	fmt.Printf("Already syncing: %d\n", result.AlreadySyncing)
	fmt.Printf("Failed:          %d\n", result.Failed)
}

func runReapJobs(args []string) {
	fs := flag.NewFlagSet("reap-jobs", flag.ExitOnError)
	leaseStr := fs.String("lease", "", "Lease after which a running job is failed (default JOB_LEASE)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := mustLoadConfig()

	lease := cfg.Worker.JobLease
	if *leaseStr != "" {
		var err error
		lease, err = time.ParseDuration(*leaseStr)
		if err != nil || lease <= 0 {
			log.Fatalf("Invalid lease: %q", *leaseStr)
		}
	}

	db := mustConnect(cfg)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := newOrchestrator(db).ReapStaleJobs(ctx, lease)
	if err != nil {
		log.Fatalf("Failed to reap jobs: %v", err)
	}
	log.Printf("Reaped %d jobs running longer than %v", n, lease)
}

func runListJobs(args []string) {
	fs := flag.NewFlagSet("list-jobs", flag.ExitOnError)
	statusStr := fs.String("status", string(job.StatusQueued), "Job status: queued, running, completed or failed")
	limit := fs.Int("limit", 50, "Maximum number of jobs to list")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	status := job.Status(*statusStr)
	switch status {
	case job.StatusQueued, job.StatusRunning, job.StatusCompleted, job.StatusFailed:
	default:
		log.Fatalf("Invalid status: %q", *statusStr)
	}
	if *limit < 1 {
		log.Fatalf("--limit must be positive")
	}

	cfg := mustLoadConfig()
	db := mustConnect(cfg)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs, err := postgres.NewJobRepository(db).ListByStatus(ctx, status, *limit)
	if err != nil {
		log.Fatalf("Failed to list jobs: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tATTEMPTS\tCREATED\tLAST ERROR")
	for _, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = *j.LastError
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.JobType, j.Status, j.Attempts, j.CreatedAt.Format(time.RFC3339), lastErr)
	}
	w.Flush()
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
