package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/lifeline/internal/auth"
	"github.com/example/lifeline/internal/config"
	"github.com/example/lifeline/internal/dispatch"
	"github.com/example/lifeline/internal/eta"
	"github.com/example/lifeline/internal/geo"
	"github.com/example/lifeline/internal/httpapi"
	"github.com/example/lifeline/internal/ingest"
	"github.com/example/lifeline/internal/logging"
	"github.com/example/lifeline/internal/match"
	"github.com/example/lifeline/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var st store.Store
	if cfg.PGDSN != "" {
		pg, err := store.NewPostgresStore(cfg.PGDSN, cfg.BcryptCost)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql")); err == nil {
				if _, err := pg.DB().Exec(string(b)); err != nil {
					logger.Error("migration failed", "error", err)
					os.Exit(1)
				}
				logger.Info("migration applied", "file", "001_init.sql")
			}
		}
		st = pg
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var drivers geo.Index
	if cfg.RedisAddr != "" {
		drivers = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.DriversGeoKey)
	} else {
		drivers = geo.NewMemIndex()
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("token issuer init failed", "error", err)
		os.Exit(1)
	}

	wsReg := dispatch.NewWSRegistry(logger)
	dispatcher := dispatch.NewDispatcher(logger)
	if err := dispatcher.Initialize(wsReg); err != nil {
		logger.Error("dispatcher init failed", "error", err)
		os.Exit(1)
	}

	engine := &match.Service{
		Store:               st,
		Drivers:             drivers,
		Dispatch:            dispatcher,
		ETACache:            eta.NewCache(5 * time.Minute),
		Logger:              logger,
		DefaultRadiusMeters: cfg.DefaultRadiusMeters,
		UrgentRadiusMeters:  cfg.UrgentRadiusMeters,
		DefaultSpeedMps:     cfg.DefaultSpeedMps,
		CandidateLimit:      cfg.CandidateLimit,
	}

	api, err := httpapi.New(httpapi.Options{
		Store:    st,
		Match:    engine,
		Tokens:   tokens,
		Dispatch: dispatcher,
		WSReg:    wsReg,
		Drivers:  drivers,
		Kafka:    kp,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("lifeline listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
