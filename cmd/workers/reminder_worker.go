package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/internal/applications"
	"edistrict/certificate-portal/portal-backend/internal/config"
	"edistrict/certificate-portal/portal-backend/internal/notifications"
)

// ReminderWorker nudges the responsible role about applications that have
// sat in one non-terminal status for too long.
type ReminderWorker struct {
	repo   applications.Repository
	email  notifications.EmailChannel
	logger *zap.Logger
	config ReminderWorkerConfig
}

// ReminderWorkerConfig configuration for the reminder worker
type ReminderWorkerConfig struct {
	Schedule     string
	ReminderAge  time.Duration
	BatchTimeout time.Duration
	EscalateTo   string
}

// DefaultReminderWorkerConfig returns default configuration
func DefaultReminderWorkerConfig() ReminderWorkerConfig {
	return ReminderWorkerConfig{
		Schedule:     "0 9 * * *",
		ReminderAge:  72 * time.Hour,
		BatchTimeout: 2 * time.Minute,
		EscalateTo:   "sdo-office@example.gov.in",
	}
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(repo applications.Repository, email notifications.EmailChannel, logger *zap.Logger, config ReminderWorkerConfig) *ReminderWorker {
	return &ReminderWorker{
		repo:   repo,
		email:  email,
		logger: logger,
		config: config,
	}
}

// Run scans for stale applications and sends one reminder per record.
func (w *ReminderWorker) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.config.BatchTimeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-w.config.ReminderAge)
	stale, err := w.repo.ListStale(ctx, cutoff)
	if err != nil {
		w.logger.Error("Failed to list stale applications", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		w.logger.Info("No stale applications")
		return
	}

	w.logger.Info("Sending reminders",
		zap.Int("count", len(stale)),
		zap.Duration("reminder_age", w.config.ReminderAge))

	for _, app := range stale {
		subject := fmt.Sprintf("Reminder: application %s awaiting action", app.ApplicationID)
		body := fmt.Sprintf(
			"Application %s (%s certificate for %s) has been in status %q since %s and needs attention.",
			app.ApplicationID, app.CertificateType, app.FullName,
			app.Status, app.UpdatedAt.Format("02 Jan 2006 15:04"))

		if err := w.email.Send(ctx, w.config.EscalateTo, subject, body); err != nil {
			w.logger.Error("Failed to send reminder",
				zap.String("application_id", app.ApplicationID),
				zap.Error(err))
			continue
		}
		w.logger.Info("Reminder sent",
			zap.String("application_id", app.ApplicationID),
			zap.String("status", string(app.Status)))
	}
}

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on environment")
	}

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerCfg := DefaultReminderWorkerConfig()
	if cfg.Workflow.ReminderAge > 0 {
		workerCfg.ReminderAge = cfg.Workflow.ReminderAge
	}
	if schedule := os.Getenv("REMINDER_SCHEDULE"); schedule != "" {
		workerCfg.Schedule = schedule
	}
	if escalateTo := os.Getenv("REMINDER_ESCALATE_TO"); escalateTo != "" {
		workerCfg.EscalateTo = escalateTo
	}

	var email notifications.EmailChannel = notifications.NoopEmailChannel{}
	if cfg.Notifications.EmailEnabled {
		email, err = notifications.NewSESEmailChannel(ctx, cfg.Notifications.AWSRegion, cfg.Notifications.EmailFrom)
		if err != nil {
			logger.Fatal("Failed to initialize email channel", zap.Error(err))
		}
	}

	worker := NewReminderWorker(applications.NewRepository(db), email, logger, workerCfg)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(workerCfg.Schedule, func() { worker.Run(ctx) }); err != nil {
		logger.Fatal("Invalid reminder schedule", zap.Error(err))
	}

	logger.Info("Starting reminder worker",
		zap.String("schedule", workerCfg.Schedule),
		zap.Duration("reminder_age", workerCfg.ReminderAge))

	// Process stale applications immediately, then on schedule.
	worker.Run(ctx)
	scheduler.Start()

	<-ctx.Done()
	logger.Info("Reminder worker shutting down")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("Reminder worker stopped")
}
