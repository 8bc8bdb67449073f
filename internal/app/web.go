package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/relabs-tech/motionsense/internal/auth"
	"github.com/relabs-tech/motionsense/internal/config"
	"github.com/relabs-tech/motionsense/internal/labeling"
	"github.com/relabs-tech/motionsense/internal/persist"
	"github.com/relabs-tech/motionsense/internal/predict"
	"github.com/relabs-tech/motionsense/internal/stream"
)

// RunWeb serves the labeling dashboard until SIGINT or SIGTERM.
func RunWeb() error {
	cfg := config.Get()
	logger := config.InitLogger(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	// 1) Activity catalog and labeling controller
	catalog := labeling.DefaultCatalog()
	if cfg.CatalogFile != "" {
		c, err := labeling.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			return err
		}
		catalog = c
	}
	controller := labeling.NewController(catalog, labeling.WithLogger(logger))

	// 2) Stream session tagged by the controller. Transport errors go to
	// the live feed; the session is configured only after the server exists.
	var server *Server
	session := stream.NewSession(controller.Tag,
		stream.WithLogger(logger),
		stream.WithWindowSize(cfg.WindowSize),
		stream.WithErrorHandler(func(err error) { server.OnStreamError(err) }),
	)
	controller.Bind(session)

	// 3) Sink and auth store
	store, err := persist.Open(cfg.SinkDriver, cfg.SinkDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	userDB, closeUsers, err := openUserDB(cfg, store)
	if err != nil {
		return err
	}
	defer closeUsers()

	secret := cfg.JWTSecret
	if secret == "" {
		secret = rand.Text()
		logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}
	authService, err := auth.NewService(userDB, secret,
		auth.WithLogger(logger),
		auth.WithTTL(time.Duration(cfg.JWTTTLMinutes)*time.Minute),
	)
	if err != nil {
		return err
	}

	// 4) HTTP server, then start dialing the broker
	hub := NewHub(logger, cfg.CORSOrigins)
	server = NewServer(ServerConfig{
		Log:        logger,
		Auth:       authService,
		Controller: controller,
		Session:    session,
		Persister:  persist.NewPersister(store, persist.WithLogger(logger)),
		Predictor: predict.New(
			predict.WithMinSamples(cfg.PredictMinSamples),
			predict.WithOverrideProbability(cfg.PredictOverrideProbability),
		),
		Hub:         hub,
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   "web",
	})
	if err := session.Configure(streamConfig(cfg, cfg.MQTTClientIDWeb)); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web server listening", "addr", srv.Addr, "broker", cfg.MQTTBroker, "sink", cfg.SinkDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := session.Disconnect(shutdownCtx); err != nil {
		logger.Error("stream disconnect", "error", err)
	}
	hub.Close()
	return nil
}

// openUserDB shares the sink database for users when it is a gorm store,
// and falls back to a sqlite file at AUTH_DSN for the CSV sink.
func openUserDB(cfg *config.Config, store persist.Store) (*gorm.DB, func(), error) {
	if gs, ok := store.(*persist.GormSink); ok {
		return gs.DB(), func() {}, nil
	}
	db, err := persist.OpenDB(persist.DriverSQLite, cfg.AuthDSN)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				slog.Error("close user database", "error", err)
			}
		}
	}, nil
}
