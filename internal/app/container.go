package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/gravityfall/calendar-booking-backend/internal/api"
	"github.com/gravityfall/calendar-booking-backend/internal/auth"
	"github.com/gravityfall/calendar-booking-backend/internal/availability"
	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	googlecal "github.com/gravityfall/calendar-booking-backend/internal/calendar/google"
	"github.com/gravityfall/calendar-booking-backend/internal/config"
	"github.com/gravityfall/calendar-booking-backend/internal/connection"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/notify"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
	"github.com/gravityfall/calendar-booking-backend/internal/reschedule"
	"github.com/gravityfall/calendar-booking-backend/internal/sync"
	"github.com/gravityfall/calendar-booking-backend/internal/webhook"
)

// Container holds the initialized components that are needed externally.
type Container struct {
	Router     *gin.Engine
	Worker     *sync.Worker
	JWTManager *auth.JWTManager
	Logger     *logging.Logger
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg *config.Config, pool *pgxpool.Pool) *Container {
	logger := logging.New(cfg.LogLevel)

	// Init Components
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTokenTTL)

	oauthConfigs := buildOAuthConfigs(cfg)

	// Provider registry. Microsoft has no adapter yet; only registered
	// builders are reachable.
	factory := calendar.NewFactory()
	if err := factory.Register(calendar.TypeGoogle, googlecal.New); err != nil {
		logger.Error("registering google calendar builder failed", "error", err)
	}

	// Host Module (read-only identity store)
	hostRepo := host.NewPgxRepository(pool)

	// Connection Module
	connRepo := connection.NewPgxRepository(pool)
	connService := connection.NewService(connRepo, cfg.PendingConnectionTTL, logger)
	tokenService := connection.NewTokenService(connRepo, oauthConfigs, logger)

	// Sync Module
	syncCfg := sync.Config{ProviderTimeout: cfg.ProviderTimeout}
	gateway := sync.NewGateway(connRepo, tokenService, hostRepo, factory, syncCfg, logger)

	// Booking Module
	bookingRepo := booking.NewPgxRepository(pool)
	orchestrator := sync.NewOrchestrator(bookingRepo, connRepo, tokenService, hostRepo, factory, syncCfg, logger)

	// Availability Module
	availabilityRepo := availability.NewPgxRepository(pool)
	availabilityService := availability.NewService(availabilityRepo, hostRepo, bookingRepo, gateway, logger)

	sender := notify.NewLogSender(logger)
	bookingService := booking.NewService(bookingRepo, hostRepo, availabilityService, orchestrator, sender, logger)

	// Reschedule Module
	rescheduleService := reschedule.NewService(bookingRepo, hostRepo, orchestrator, sender, logger)

	// Webhook Module
	webhookService := webhook.NewService(
		bookingRepo, availabilityService,
		cfg.WebhookSecret, webhook.ConflictMode(cfg.ConflictMode), logger)

	// Background retry worker
	worker := sync.NewWorker(bookingRepo, orchestrator, connService, sync.WorkerConfig{
		Interval:       cfg.SyncInterval,
		BatchSize:      cfg.SyncBatchSize,
		MaxAttempts:    cfg.SyncMaxAttempts,
		RetryBaseDelay: cfg.SyncRetryBaseDelay,
		RetryWindow:    cfg.SyncRetryWindow,
	}, logger)

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:        cfg.IsProduction,
		ProdOrigins:         cfg.ProdOrigins,
		AvailabilityService: availabilityService,
		BookingService:      bookingService,
		RescheduleService:   rescheduleService,
		ConnectionService:   connService,
		WebhookService:      webhookService,
		HostRepo:            hostRepo,
		OAuthConfigs:        oauthConfigs,
		JWTManager:          jwtManager,
		Logger:              logger,
	})

	return &Container{
		Router:     router,
		Worker:     worker,
		JWTManager: jwtManager,
		Logger:     logger,
	}
}

// buildOAuthConfigs wires an OAuth client per provider. Providers without
// credentials are left out, which disables their connection flow.
func buildOAuthConfigs(cfg *config.Config) map[calendar.Type]*oauth2.Config {
	configs := make(map[calendar.Type]*oauth2.Config)
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		configs[calendar.TypeGoogle] = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		}
	}
	return configs
}
