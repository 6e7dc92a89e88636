package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"school_bus/internal/blob"
	"school_bus/internal/cloud"
	"school_bus/internal/config"
	"school_bus/internal/controllers"
	"school_bus/internal/identity"
	"school_bus/internal/logger"
	"school_bus/internal/middleware"
	"school_bus/internal/realtime"
	"school_bus/internal/routes"
)

func main() {
	cfg := config.Load()

	// Initialize structured logging to file
	logger.Setup(cfg.LogFile, cfg.LogLevel)
	middleware.Configure(cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)

	if err := config.InitDB(cfg); err != nil {
		logrus.WithError(err).Fatal("Database setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	defer hub.Close()

	deps := controllers.Deps{
		DB:        config.GetDB(),
		Hub:       hub,
		Identity:  identity.Static{},
		Blobs:     blob.Disabled{},
		BatchSize: cfg.BatchSize,
	}

	if cfg.FirebaseEnabled() {
		app, err := cloud.NewFirebaseApp(ctx, cfg)
		if err != nil {
			logrus.WithError(err).Fatal("Firebase setup failed")
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			logrus.WithError(err).Fatal("Firebase auth setup failed")
		}
		deps.Identity = identity.NewFirebase(authClient, cfg.DefaultCountryCode)

		if cfg.FirebaseRTDBURL != "" {
			rtdb, err := app.Database(ctx)
			if err != nil {
				logrus.WithError(err).Fatal("Firebase database setup failed")
			}
			deps.Live = realtime.NewFirebaseStore(rtdb, hub)
			logrus.Info("Realtime updates served from Firebase")
		}
	}

	if deps.Live == nil {
		live := realtime.NewDBStore(deps.DB, hub)
		deps.Live = live
		go func() {
			if err := realtime.Listen(ctx, cfg.DSN(), live, hub); err != nil {
				logrus.WithError(err).Error("Realtime listener stopped")
			}
		}()
	}

	if cfg.StorageBucket != "" {
		client, err := cloud.NewStorageClient(ctx, cfg)
		if err != nil {
			logrus.WithError(err).Fatal("Storage setup failed")
		}
		defer client.Close()
		deps.Blobs = blob.NewGCS(client, cfg.StorageBucket)
	}

	r := routes.SetupRouter(controllers.New(deps))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           middleware.EnableCORS(cfg.CORSOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("🚀 Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}
