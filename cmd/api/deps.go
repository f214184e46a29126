package main

import (
	"context"
	"fmt"
	"log"

	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/notification"
	"budgetlink/internal/domain/openfinance"
	"budgetlink/internal/infrastructure/crypto"
	"budgetlink/internal/infrastructure/firebase"
	ofclient "budgetlink/internal/infrastructure/openfinance"
	"budgetlink/internal/infrastructure/postgres"
	httphandlers "budgetlink/internal/interfaces/http"
	"budgetlink/internal/interfaces/scheduler"
	"budgetlink/internal/shared/auth"
	"budgetlink/internal/shared/config"
	"budgetlink/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	// Handlers
	InstitutionHandler *httphandlers.InstitutionHandler
	AccountHandler     *httphandlers.AccountHandler
	TransactionHandler *httphandlers.TransactionHandler
	HealthHandler      *httphandlers.HealthHandler

	// Auth
	JWT *auth.JWT

	// Background processing
	Orchestrator    *openfinance.SyncOrchestrator
	SyncService     *openfinance.InstitutionSyncService
	InstitutionRepo *postgres.InstitutionRepository
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	// Connect to database
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}

	texts, err := messages.Load(cfg.Messages.File)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load notification messages: %w", err)
	}

	// Repositories outside any transaction
	institutionRepo := postgres.NewInstitutionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)

	txm := postgres.NewTxManager(db)
	newUoW := postgres.NewUnitOfWorkFactory(txm)

	// Push notifications are optional
	var messenger notification.Messenger
	if cfg.Firebase.CredentialsFile != "" {
		fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Printf("Warning: Failed to initialize Firebase, relink notifications disabled: %v", err)
		} else {
			messenger = fcm
		}
	} else {
		log.Println("Firebase credentials not configured, relink notifications disabled")
	}
	notificationService := notification.NewService(messenger, texts)

	ofClient := ofclient.NewClient(ofclient.Config{
		BaseURL:       cfg.Aggregator.BaseURL,
		ClientID:      cfg.Aggregator.ClientID,
		Secret:        cfg.Aggregator.Secret,
		Timeout:       cfg.Aggregator.Timeout,
		RatePerSecond: cfg.Aggregator.RatePerSecond,
		PageSize:      cfg.Aggregator.PageSize,
	})

	// Domain services
	linkingService := openfinance.NewLinkingService(ofClient, encryptor, institutionRepo, newUoW, cfg.Sync.MaxInstitutionsPerUser)
	orchestrator := openfinance.NewSyncOrchestrator(newUoW, notificationService)
	accountSync := openfinance.NewAccountSyncService(ofClient, accountRepo)
	reconciler := openfinance.NewReconciler(ofClient, accountRepo, transactionRepo, cfg.Sync.WindowDays)
	syncService := openfinance.NewInstitutionSyncService(institutionRepo, encryptor, accountSync, reconciler)
	institutionService := institution.NewService(institutionRepo)

	return &Dependencies{
		DB:                 db,
		InstitutionHandler: httphandlers.NewInstitutionHandler(institutionService, linkingService, orchestrator),
		AccountHandler:     httphandlers.NewAccountHandler(institutionService, accountRepo),
		TransactionHandler: httphandlers.NewTransactionHandler(institutionService, transactionRepo),
		HealthHandler:      httphandlers.NewHealthHandler(db),
		JWT:                auth.NewJWT(cfg.JWT.Secret),
		Orchestrator:       orchestrator,
		SyncService:        syncService,
		InstitutionRepo:    institutionRepo,
	}, nil
}

// NewWorkerPool builds the pool that drains the sync job queue.
func (d *Dependencies) NewWorkerPool(cfg *config.Config) *scheduler.WorkerPool {
	return scheduler.NewWorkerPool(d.Orchestrator, scheduler.WorkerPoolConfig{
		WorkerCount:  cfg.Worker.Count,
		PollInterval: cfg.Worker.PollInterval,
		JobTimeout:   cfg.Worker.JobTimeout,
	}, scheduler.NewSyncInstitutionJob(d.SyncService, d.Orchestrator))
}

// NewScheduler builds the scheduler that enqueues periodic syncs.
func (d *Dependencies) NewScheduler(cfg *config.Config) (*scheduler.Scheduler, error) {
	return scheduler.NewScheduler(d.Orchestrator, d.InstitutionRepo, scheduler.SchedulerConfig{
		ScheduleTimes: cfg.Scheduler.ScheduleTimes,
		RunOnStartup:  cfg.Scheduler.RunOnStartup,
		JobLease:      cfg.Worker.JobLease,
	})
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
