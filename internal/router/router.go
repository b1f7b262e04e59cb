package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-portal/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-portal/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// AuthHandler splits its routes between the public and protected groups.
type AuthHandler interface {
	Handler
	RegisterProtected(*gin.RouterGroup)
	RegisterNavigation(*gin.RouterGroup)
}

// Handlers groups the route owners by who may reach them.
type Handlers struct {
	Health       Handler
	Auth         AuthHandler
	Dashboard    Handler
	Appointments Handler
	MedHistory   Handler
	// patient only
	Booking Handler
	// doctor only
	Schedules     Handler
	Consultations Handler
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	metrics  *prometheus.Handler
}

type RouterConfig struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
	Timeout    middleware.TimeoutConfig
	Security   middleware.SecurityConfig
	// Debug keeps gin in debug mode.
	Debug bool
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, metrics *prometheus.Handler, config RouterConfig) *Router {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		metrics:  metrics,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(
		middleware.Timeout(config.Timeout),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(config.Security),
		middleware.SizeLimit(config.Security),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	if r.metrics != nil {
		r.engine.GET("/metrics", r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}

	// Public routes
	r.handlers.Auth.RegisterRoutes(api)
	nav := api.Group("")
	nav.Use(r.auth.Identify())
	r.handlers.Auth.RegisterNavigation(nav)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.setupProtectedRoutes(protected)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	r.handlers.Auth.RegisterProtected(rg)
	r.handlers.Dashboard.RegisterRoutes(rg)
	r.handlers.Appointments.RegisterRoutes(rg)
	r.handlers.MedHistory.RegisterRoutes(rg)

	patient := rg.Group("")
	patient.Use(r.auth.RequirePage("/patient"))
	r.handlers.Booking.RegisterRoutes(patient)

	doctor := rg.Group("")
	doctor.Use(r.auth.RequirePage("/doctor"))
	r.handlers.Schedules.RegisterRoutes(doctor)
	r.handlers.Consultations.RegisterRoutes(doctor)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Use(middleware ...gin.HandlerFunc) {
	r.engine.Use(middleware...)
}
