package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/studenthub/internal/application"
	"github.com/example/studenthub/internal/config"
	httptransport "github.com/example/studenthub/internal/http"
	"github.com/example/studenthub/internal/logging"
	"github.com/example/studenthub/internal/notify"
	"github.com/example/studenthub/internal/persistence/sqlite"
	"github.com/example/studenthub/internal/reminder"
	"github.com/example/studenthub/internal/schedule"
	"github.com/example/studenthub/internal/sweep"
)

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	location, err := cfg.Location()
	if err != nil {
		logger.Error("failed to resolve timezone", "error", err)
		os.Exit(1)
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	tokenGenerator := uuid.NewString
	now := func() time.Time { return time.Now().In(location) }

	emitter := notify.NewEmitter(storage, notify.LogSink{Logger: logger},
		notify.WithClock(now),
		notify.WithIDGenerator(idGenerator),
		notify.WithLogger(logger),
	)

	scheduler := reminder.NewScheduler(func(event schedule.Event, occurrence time.Time) {
		if _, _, err := emitter.EmitReminder(context.Background(), event, occurrence); err != nil {
			logger.Error("failed to emit reminder", "event_id", event.ID, "error", err)
		}
	},
		reminder.WithClock(now),
		reminder.WithLogger(logger),
	)
	defer scheduler.Stop()

	feed := application.NewEventFeed(storage, storage, storage)
	reminderSync := newReminderSyncAdapter(feed, scheduler, logger)

	userService := application.NewUserService(storage, nil, idGenerator, now, logger)
	authService := application.NewAuthService(storage, storage, nil, tokenGenerator, now, cfg.SessionTTL, logger)
	courseService := application.NewCourseService(storage, idGenerator, now, reminderSync, logger)
	habitService := application.NewHabitService(storage, idGenerator, now, reminderSync, logger)
	budgetService := application.NewBudgetService(storage, idGenerator, now, logger)
	notificationService := application.NewNotificationService(storage, now, logger)

	// Arm one timer chain per persisted event before the server accepts
	// traffic. Boot goes through the sync adapter so the armed bookkeeping
	// starts populated and a later delete cancels boot-armed timers too.
	if err := reminderSync.ArmAll(ctx); err != nil {
		logger.Error("failed to arm reminders at startup", "error", err)
		os.Exit(1)
	}

	sweeper := sweep.NewSweeper(feed, application.BudgetFeed{Budgets: budgetService}, emitter,
		sweep.WithClock(now),
		sweep.WithLocation(location),
		sweep.WithLogger(logger),
		sweep.WithDigestHour(cfg.DigestHour),
	)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start sweep scheduler", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:              httptransport.NewAuthHandler(authService, logger),
		Users:             httptransport.NewUserHandler(userService, logger),
		Courses:           httptransport.NewCourseHandler(courseService, logger),
		Habits:            httptransport.NewHabitHandler(habitService, logger),
		Budgets:           httptransport.NewBudgetHandler(budgetService, logger),
		Notifications:     httptransport.NewNotificationHandler(notificationService, logger),
		SessionMiddleware: httptransport.RequireSession(authService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("studenthub API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func enabledEvents(events []schedule.Event) []schedule.Event {
	enabled := make([]schedule.Event, 0, len(events))
	for _, event := range events {
		if event.ReminderEnabled {
			enabled = append(enabled, event)
		}
	}
	return enabled
}

// reminderSyncAdapter refreshes the timer table whenever a user's courses or
// habits change. It remembers the event ids it armed for each user so timers
// for deleted or disabled events are cancelled instead of left to fire.
type reminderSyncAdapter struct {
	mu        sync.Mutex
	feed      *application.EventFeed
	scheduler *reminder.Scheduler
	logger    *slog.Logger
	armed     map[string][]string
}

func newReminderSyncAdapter(feed *application.EventFeed, scheduler *reminder.Scheduler, logger *slog.Logger) *reminderSyncAdapter {
	return &reminderSyncAdapter{
		feed:      feed,
		scheduler: scheduler,
		logger:    logger,
		armed:     make(map[string][]string),
	}
}

// ArmAll seeds the timer table for every persisted user. Each user goes
// through SyncUser so its armed set is tracked from the start.
func (a *reminderSyncAdapter) ArmAll(ctx context.Context) error {
	userIDs, err := a.feed.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, userID := range userIDs {
		a.SyncUser(ctx, userID)
	}
	return nil
}

func (a *reminderSyncAdapter) SyncUser(ctx context.Context, userID string) {
	events, err := a.feed.ListActiveEventsForUser(ctx, userID)
	if err != nil {
		a.logger.Error("failed to refresh reminders", "user_id", userID, "error", err)
		return
	}

	enabled := enabledEvents(events)
	current := make(map[string]bool, len(enabled))
	ids := make([]string, 0, len(enabled))
	for _, event := range enabled {
		current[event.ID] = true
		ids = append(ids, event.ID)
	}

	a.mu.Lock()
	previous := a.armed[userID]
	a.armed[userID] = ids
	a.mu.Unlock()

	for _, id := range previous {
		if !current[id] {
			a.scheduler.Cancel(id)
		}
	}
	for _, event := range enabled {
		a.scheduler.Update(event)
	}
}
