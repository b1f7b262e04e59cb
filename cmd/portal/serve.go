package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	appointmentHandler "github.com/jwalitptl/clinic-portal/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-portal/internal/handler/auth"
	bookingHandler "github.com/jwalitptl/clinic-portal/internal/handler/booking"
	consultationHandler "github.com/jwalitptl/clinic-portal/internal/handler/consultation"
	dashboardHandler "github.com/jwalitptl/clinic-portal/internal/handler/dashboard"
	"github.com/jwalitptl/clinic-portal/internal/handler/health"
	medhistoryHandler "github.com/jwalitptl/clinic-portal/internal/handler/medhistory"
	"github.com/jwalitptl/clinic-portal/internal/handler/prometheus"
	scheduleHandler "github.com/jwalitptl/clinic-portal/internal/handler/schedule"
	"github.com/jwalitptl/clinic-portal/internal/middleware"
	"github.com/jwalitptl/clinic-portal/internal/router"
	"github.com/jwalitptl/clinic-portal/internal/service/appointment"
	"github.com/jwalitptl/clinic-portal/internal/service/booking"
	"github.com/jwalitptl/clinic-portal/internal/service/consultation"
	"github.com/jwalitptl/clinic-portal/internal/service/dashboard"
	"github.com/jwalitptl/clinic-portal/internal/service/medhistory"
	"github.com/jwalitptl/clinic-portal/internal/service/schedule"
	"github.com/jwalitptl/clinic-portal/internal/worker"
	"github.com/jwalitptl/clinic-portal/pkg/circuitbreaker"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the portal web backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			return runServer(cmd, debug)
		},
	}
	cmd.Flags().Bool("debug", false, "Run gin in debug mode")
	return cmd
}

func runServer(cmd *cobra.Command, debug bool) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd, storeFromConfig)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	// Initialize services
	reconciler := worker.NewReconciler(worker.ReconcilerConfig{
		PollInterval:   cfg.Worker.ReconcileInterval,
		MaxRetries:     cfg.Worker.MaxRetries,
		AttemptTimeout: cfg.API.Timeout,
		Gauge:          a.metrics.PendingCompletions,
	}, a.log)
	bookingSvc := booking.NewService(booking.Config{
		DateSource: cfg.Booking.DateSource,
		WindowDays: cfg.Booking.WindowDays,
		WizardTTL:  cfg.Booking.WizardTTL,
	}, a.events, a.validate, a.log, a.metrics)
	consultationSvc := consultation.NewService(cfg.Session.TTL, reconciler, a.validate, a.log, a.metrics)
	appointmentSvc := appointment.NewService(a.events, a.validate, a.log)
	scheduleSvc := schedule.NewService(10*time.Minute, a.validate, a.log)
	medhistorySvc := medhistory.NewService(a.events, a.validate, a.log)
	dashboardSvc := dashboard.NewService(a.log)

	a.sessions.OnTeardown(bookingSvc.DropSession)
	a.sessions.OnTeardown(consultationSvc.DropSession)

	// Initialize handlers
	checks := []health.Check{}
	if a.redis != nil {
		checks = append(checks, health.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}})
	}
	if a.breaker != nil {
		checks = append(checks, health.Check{Name: "clinic-api", Ping: func(context.Context) error {
			if a.breaker.State() == circuitbreaker.StateOpen {
				return circuitbreaker.ErrOpen
			}
			return nil
		}})
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.AllowedOrigins
	}
	secure := !debug

	r := router.NewRouter(
		middleware.NewAuthMiddleware(a.sessions),
		router.Handlers{
			Health:        health.NewHandler(checks...),
			Auth:          authHandler.NewHandler(a.sessions, secure),
			Dashboard:     dashboardHandler.NewHandler(dashboardSvc),
			Appointments:  appointmentHandler.NewHandler(appointmentSvc),
			MedHistory:    medhistoryHandler.NewHandler(medhistorySvc),
			Booking:       bookingHandler.NewHandler(bookingSvc),
			Schedules:     scheduleHandler.NewHandler(scheduleSvc),
			Consultations: consultationHandler.NewHandler(consultationSvc),
		},
		prometheus.New(a.metrics),
		router.RouterConfig{
			RateLimit:  rate.Limit(cfg.Server.RateLimit),
			RateBurst:  cfg.Server.RateBurst,
			CORSConfig: cors,
			Timeout:    middleware.TimeoutConfig{Duration: time.Duration(cfg.Server.TimeoutSeconds) * time.Second},
			Security:   middleware.DefaultSecurityConfig(),
			Debug:      debug,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go reconciler.Start(ctx)
	go func() {
		err := a.events.Listen(ctx, func(ev eventRecord) {
			a.log.Debug("portal event", "type", ev.Type, "id", ev.ID)
		})
		if err != nil {
			a.log.Error(err, "event listener stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("portal listening", "addr", srv.Addr, "api", cfg.API.BaseURL, "sessions", cfg.Session.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if pending := reconciler.Pending(); len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.AppointmentID)
		}
		a.log.Warn("appointment completions still pending at shutdown", "appointments", strings.Join(ids, ","))
	}
	fmt.Fprintln(os.Stderr, "server exited")
	return nil
}
