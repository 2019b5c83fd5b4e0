package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/gravityfall/calendar-booking-backend/internal/auth"
	"github.com/gravityfall/calendar-booking-backend/internal/availability"
	availabilityHttp "github.com/gravityfall/calendar-booking-backend/internal/availability/http"
	"github.com/gravityfall/calendar-booking-backend/internal/booking"
	bookingHttp "github.com/gravityfall/calendar-booking-backend/internal/booking/http"
	"github.com/gravityfall/calendar-booking-backend/internal/calendar"
	"github.com/gravityfall/calendar-booking-backend/internal/connection"
	connectionHttp "github.com/gravityfall/calendar-booking-backend/internal/connection/http"
	"github.com/gravityfall/calendar-booking-backend/internal/host"
	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
	"github.com/gravityfall/calendar-booking-backend/internal/reschedule"
	"github.com/gravityfall/calendar-booking-backend/internal/webhook"
	webhookHttp "github.com/gravityfall/calendar-booking-backend/internal/webhook/http"
)

// Config carries everything the router needs to assemble the HTTP surface.
type Config struct {
	IsProduction bool
	ProdOrigins  string

	AvailabilityService availability.Service
	BookingService      booking.Service
	RescheduleService   reschedule.Service
	ConnectionService   connection.Service
	WebhookService      webhook.Service
	HostRepo            host.Repository
	OAuthConfigs        map[calendar.Type]*oauth2.Config
	JWTManager          *auth.JWTManager
	Logger              *logging.Logger
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information to the console.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(gin.Logger(), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.ProdOrigins, ",")
	} else {
		corsConfig.AllowOrigins = []string{
			"http://localhost:3000",
			"http://localhost:8081", // Swagger
		}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	availabilityHandler := availabilityHttp.NewHandler(cfg.AvailabilityService, cfg.HostRepo)
	bookingHandler := bookingHttp.NewHandler(cfg.BookingService, cfg.RescheduleService)
	connectionHandler := connectionHttp.NewHandler(cfg.ConnectionService, cfg.OAuthConfigs, cfg.Logger)
	webhookHandler := webhookHttp.NewHandler(cfg.WebhookService, cfg.Logger)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		availabilityHttp.RegisterRoutes(v1, availabilityHandler, authMiddleware)
		bookingHttp.RegisterRoutes(v1, bookingHandler, authMiddleware)
		connectionHttp.RegisterRoutes(v1, connectionHandler, authMiddleware)
		webhookHttp.RegisterRoutes(v1, webhookHandler)
	}

	return r
}
