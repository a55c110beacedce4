package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fnsdeividy/base-arch-sub000/internal/cache"
	"github.com/fnsdeividy/base-arch-sub000/internal/config"
	"github.com/fnsdeividy/base-arch-sub000/internal/domain"
	"github.com/fnsdeividy/base-arch-sub000/internal/httpapi"
	"github.com/fnsdeividy/base-arch-sub000/internal/lock"
	"github.com/fnsdeividy/base-arch-sub000/internal/logger"
	"github.com/fnsdeividy/base-arch-sub000/internal/metrics"
	"github.com/fnsdeividy/base-arch-sub000/internal/service"
	"github.com/fnsdeividy/base-arch-sub000/internal/store"
	"github.com/fnsdeividy/base-arch-sub000/internal/store/memory"
	pgstore "github.com/fnsdeividy/base-arch-sub000/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	lg := logger.New(cfg.LogLevel, os.Stdout)
	if err := validateSecurityConfig(cfg); err != nil {
		lg.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			lg.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				lg.Fatalf("migrations failed: %v", err)
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		lg.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		lg.Info("repository: in-memory")
	}

	opts := service.Options{
		CacheTTL: time.Duration(cfg.CostCacheTTLSeconds) * time.Second,
		Logger:   lg,
		Defaults: domain.ProductionSettings{
			CostingMethod:          domain.CostingMethod(cfg.DefaultCostingMethod),
			DefaultOverheadPercent: cfg.DefaultOverheadPercent,
			DefaultPackagingCost:   cfg.DefaultPackagingCost,
		},
	}

	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCostCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			lg.Warnf("redis unavailable (%v), using noop cache and local locks", err)
		} else {
			opts.Cache = redisCache
			opts.Locker = lock.NewRedisLocker(redisCache.Client(), "costing:lock:")
			closers = append(closers, redisCache.Close)
			lg.Info("cache: redis")
		}
	} else {
		lg.Info("cache: noop")
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
		opts.Metrics = rec
	}

	svc := service.New(repo, opts)
	auth, err := httpapi.NewAuthManager(ctx, httpapi.AuthConfig{
		Secret:          cfg.AuthSecret,
		TokenTTL:        time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		RefreshInterval: time.Duration(cfg.AuthRefreshSeconds) * time.Second,
		Logger:          logrus.NewEntry(lg),
	}, repo)
	if err != nil {
		lg.Fatalf("auth setup failed: %v", err)
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, lg, rec)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Infof("costing service listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			lg.Errorf("close error: %v", err)
		}
	}

	lg.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AllowedOrigin == "*" && cfg.DatabaseURL != "" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin when running against postgres")
	}
	return nil
}
