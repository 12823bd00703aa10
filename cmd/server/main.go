package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/cache"
	"appointment-booking-api/internal/config"
	"appointment-booking-api/internal/handler"
	"appointment-booking-api/internal/health"
	"appointment-booking-api/internal/jobs"
	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/metrics"
	"appointment-booking-api/internal/middleware"
	"appointment-booking-api/internal/seed"
	"appointment-booking-api/internal/service"
	"appointment-booking-api/internal/store"
	"appointment-booking-api/internal/store/memstore"
)

// backend is what both storage implementations provide.
type backend interface {
	service.AppointmentStore
	service.BranchStore
	service.UserStore
	service.TokenStore
	seed.Store
	jobs.TokenPurger
	health.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logging.New("appointment-booking-api", cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// storage
	var st backend
	switch cfg.Storage {
	case "memory":
		st = memstore.New()
		log.Warn("using in-memory storage, data is lost on exit")
	default:
		if err := store.Migrate(cfg.DatabaseURL, log); err != nil {
			return err
		}
		log.Info("migrations applied")
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		log.Info("connected to postgres")
		st = store.New(pool)
	}

	// reference data
	seedFile, err := seed.Load(cfg.SeedFile)
	if err != nil {
		return err
	}
	if err := seed.New(st, log.WithField("component", "seed")).Run(ctx, seedFile, cfg.SeedSample); err != nil {
		return err
	}

	// optional branch cache
	var branchCache service.BranchCache
	if cfg.RedisURL != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, branch cache disabled")
		} else {
			defer rdb.Close()
			bc := cache.NewBranchCache(rdb, cfg.BranchCacheTTL, log)
			if err := bc.Invalidate(ctx); err != nil {
				log.WithError(err).Warn("branch cache invalidate failed")
			}
			branchCache = bc
			log.Info("branch cache enabled")
		}
	}

	m := metrics.New()
	appts := service.NewAppointmentService(st, st, m, log)
	authSvc := service.NewAuthService(st, st, service.AuthConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, m, log)
	branches := service.NewBranchService(st, branchCache, log)

	rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rl.Stop()

	checker := health.NewChecker(st, log.WithField("component", "health"))
	go checker.Run(ctx, health.DefaultInterval)

	sched := jobs.NewScheduler(log.WithField("component", "jobs"))
	if err := sched.Add(cfg.TokenPurgeSchedule, "refresh-token-purge",
		jobs.PurgeExpiredTokens(st, m, log, time.Minute)); err != nil {
		return err
	}
	sched.Start()

	h := handler.New(appts, authSvc, branches, log, nil)
	routes := h.Routes(handler.RouterConfig{
		Secret:         cfg.JWTSecret,
		Limiter:        rl,
		Metrics:        m,
		MetricsHandler: m.Handler(),
		Health:         checker,
		Origins:        cfg.Origins(),
	})
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := health.NewGRPCServer(checker, log.WithField("component", "grpc"))
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() {
		log.Infof("grpc health on :%s", cfg.GRPCPort)
		errc <- grpcSrv.Serve(lis)
	}()
	go func() {
		log.Infof("http on :%s", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errc:
		log.WithError(runErr).Error("listener failed, shutting down")
	}

	// graceful shutdown
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	grpcSrv.GracefulStop()
	sched.Stop(sctx)
	stop()
	return runErr
}
