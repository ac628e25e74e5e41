// File: carelink/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carelink/config"
	"carelink/cron"
	"carelink/database"
	caregiverRepo "carelink/database/repository/caregiver"
	sessionRepo "carelink/database/repository/session"
	"carelink/handlers"
	"carelink/models"
	"carelink/routes"
	"carelink/services/booking"
	"carelink/services/controls"
	"carelink/services/events"
	"carelink/services/notification"
	"carelink/services/payment"
	"carelink/services/schedulechange"
	"carelink/services/tasks"
	"carelink/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores bundles the persistence chosen by STORE_DRIVER.
type stores struct {
	sessions   sessionRepo.SessionRepository
	caregivers caregiverRepo.CaregiverRepository
	ping       utils.Pinger
}

func openStores(ctx context.Context, logger *zap.Logger) stores {
	switch config.AppConfig.StoreDriver {
	case "memory":
		logger.Warn("Using in-memory stores; data is lost on restart")
		return stores{
			sessions:   sessionRepo.NewMemorySessionRepo(),
			caregivers: caregiverRepo.NewMemoryCaregiverRepo(demoCaregivers()...),
		}
	case "postgres":
		database.InitPostgres()
		sessions := sessionRepo.NewGormSessionRepo(database.PostgresDB)
		if err := sessions.Migrate(); err != nil {
			logger.Fatal("Failed to migrate session tables", zap.Error(err))
		}
		caregivers := caregiverRepo.NewGormCaregiverRepo(database.PostgresDB)
		if err := caregivers.Migrate(); err != nil {
			logger.Fatal("Failed to migrate caregiver table", zap.Error(err))
		}
		return stores{sessions: sessions, caregivers: caregivers, ping: database.Ping}
	default:
		database.InitDB()
		db := database.MongoDatabase()
		sessions := sessionRepo.NewMongoSessionRepo(db)
		if err := sessions.EnsureIndexes(ctx); err != nil {
			logger.Fatal("Failed to create session indexes", zap.Error(err))
		}
		return stores{sessions: sessions, caregivers: caregiverRepo.NewMongoCaregiverRepo(db), ping: database.Ping}
	}
}

func demoCaregivers() []models.Caregiver {
	return []models.Caregiver{
		{ID: "carer-demo-1", Name: "Demo Home Carer", HourlyRate: 250000, Currency: config.AppConfig.BookingCurrency,
			ServiceKinds: []models.ServiceKind{models.ServiceHomeCare, models.ServiceVideoCall}, Active: true},
		{ID: "carer-demo-2", Name: "Demo Video Carer", HourlyRate: 180000, Currency: config.AppConfig.BookingCurrency,
			ServiceKinds: []models.ServiceKind{models.ServiceVideoCall}, Active: true},
	}
}

func newProcessor(logger *zap.Logger) payment.Processor {
	if config.AppConfig.PaymentProcessor == "stripe" {
		if config.AppConfig.StripeKey == "" {
			logger.Fatal("PAYMENT_PROCESSOR=stripe requires STRIPE_KEY")
		}
		return payment.NewStripeProcessor(config.AppConfig.StripeKey, config.AppConfig.StripePaymentMethodTypes)
	}
	return payment.NewSimulatedProcessor(config.AppConfig.PaymentSimulatedLatency)
}

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := utils.InitTracer(ctx, "carelink")
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	memoryMode := config.AppConfig.StoreDriver == "memory"
	st := openStores(ctx, logger)

	// Redis-backed pieces fall back to memory when everything runs in-process.
	var (
		attempts     payment.AttemptStore
		inbox        notification.InboxStore
		hub          controls.Hub
		redisClients []*redis.Client
	)
	if memoryMode {
		attempts = payment.NewMemoryAttemptStore(config.AppConfig.PaymentAttemptTTL, time.Now)
		inbox = notification.NewMemoryInboxStore()
		hub = controls.NewMemoryHub()
	} else {
		cache, payments := utils.GetCacheClient(), utils.GetPaymentClient()
		redisClients = []*redis.Client{cache, payments}
		attempts = payment.NewRedisAttemptStore(payments, config.AppConfig.PaymentAttemptTTL)
		inbox = notification.NewRedisInboxStore(cache)
		hub = controls.NewRedisHub(cache, logger)
	}

	gate := payment.NewPaymentGate(attempts, newProcessor(logger), config.AppConfig.PaymentProcessingTimeout, config.AppConfig.PaymentAttemptTTL, logger)

	notifSvc, err := notification.NewDefaultNotificationService(inbox, logger)
	if err != nil {
		logger.Fatal("Failed to create notification service", zap.Error(err))
	}

	publishers := events.Fanout{notifSvc, events.LogPublisher{Logger: logger}}
	var amqpPublisher *events.AMQPPublisher
	switch config.AppConfig.EventsDriver {
	case "redis":
		if memoryMode {
			logger.Fatal("EVENTS_DRIVER=redis needs a redis-backed deployment")
		}
		publishers = append(publishers, events.NewRedisPublisher(utils.GetCacheClient()))
	case "amqp":
		amqpPublisher, err = events.NewAMQPPublisher(config.AppConfig.AMQPURL, config.AppConfig.AMQPExchange)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		publishers = append(publishers, amqpPublisher)
	}

	var (
		reminders   tasks.ReminderScheduler = tasks.NoopReminderScheduler{}
		asynqClient *asynq.Client
		reminderSrv *asynq.Server
	)
	if config.AppConfig.RemindersEnabled && !memoryMode {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     config.AppConfig.RedisAddr,
			Password: config.AppConfig.RedisPassword,
			DB:       config.AppConfig.RedisReminderQueueDB,
		})
		reminders = tasks.NewAsynqReminderScheduler(asynqClient, config.AppConfig.ReminderLeadTime, logger)
		reminderSrv, err = cron.StartReminderWorker(cron.NewReminderHandler(st.sessions, notifSvc, logger), logger)
		if err != nil {
			logger.Fatal("Failed to start reminder worker", zap.Error(err))
		}
	}

	lifecycle := booking.NewLifecycleService(st.sessions, st.caregivers, gate, publishers, reminders, logger)
	if len(config.AppConfig.BookingDurationOptions) > 0 {
		lifecycle.DurationOptions = config.AppConfig.BookingDurationOptions
	}
	lifecycle.Currency = config.AppConfig.BookingCurrency

	negotiator := schedulechange.NewNegotiator(st.sessions, publishers, reminders, logger)
	controlSvc := controls.NewControlService(hub, st.sessions, logger)

	handlerBundle := &handlers.HandlerBundle{
		Bookings:        handlers.NewBookingHandler(lifecycle),
		ScheduleChanges: handlers.NewScheduleChangeHandler(negotiator),
		Payments:        handlers.NewPaymentHandler(gate),
		Directory:       handlers.NewDirectoryHandler(lifecycle, negotiator, notifSvc, st.caregivers),
		Controls:        handlers.NewControlsHandler(controlSvc),
	}

	storePing := st.ping
	if amqpPublisher != nil {
		storePing = func(ctx context.Context) error {
			if st.ping != nil {
				if err := st.ping(ctx); err != nil {
					return err
				}
			}
			return amqpPublisher.Ping(ctx)
		}
	}
	utils.CheckHealth(ctx, redisClients, storePing)
	healthMonitor := utils.StartHealthMonitor(redisClients, storePing)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	routes.RegisterRoutes(router, handlerBundle, config.AppConfig.MaxRequestsPerMin, func() (bool, any) {
		status := utils.GetHealthStatus()
		healthy := status.Store
		for _, ok := range status.Redis {
			healthy = healthy && ok
		}
		return healthy, status
	})

	port := config.AppConfig.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              "0.0.0.0:" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", srv.Addr), zap.String("store", config.AppConfig.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	<-healthMonitor.Stop().Done()
	if reminderSrv != nil {
		reminderSrv.Shutdown()
	}
	if asynqClient != nil {
		_ = asynqClient.Close()
	}
	if amqpPublisher != nil {
		_ = amqpPublisher.Close()
	}
	if err := shutdownTracer(cleanupCtx); err != nil {
		logger.Warn("Tracer shutdown failed", zap.Error(err))
	}
	database.Close(cleanupCtx)
	logger.Info("Server stopped gracefully")
}
