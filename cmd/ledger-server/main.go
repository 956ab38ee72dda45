package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/ledger_backend/api"
	"github.com/mmdatafocus/ledger_backend/config"
	"github.com/mmdatafocus/ledger_backend/middlewares"
	"github.com/mmdatafocus/ledger_backend/storage"
	"github.com/mmdatafocus/ledger_backend/storage/cachestore"
	"github.com/mmdatafocus/ledger_backend/storage/memstore"
	"github.com/mmdatafocus/ledger_backend/storage/sqlstore"
	"github.com/mmdatafocus/ledger_backend/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	settings := config.LoadSettings()
	logger := config.NewLogger(settings.LogLevel)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	store, closeStore, err := openStore(settings)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal(err.Error())
	}
	defer closeStore()

	rdb, lockClient := config.ConnectRedis(sigCtx, settings)
	if rdb != nil {
		defer rdb.Close()
		store = cachestore.New(store, rdb, logger)
	}

	opts := []workflow.Option{workflow.WithLogger(logger)}
	if lockClient != nil {
		opts = append(opts, workflow.WithLocker(workflow.NewPostingLocker(lockClient, settings.LockTTL, logger)))
	}
	if settings.PubSubTopic != "" {
		publisher, err := config.NewPubSubPublisher(settings)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("ledger events disabled: " + err.Error())
		} else {
			defer publisher.Close()
			opts = append(opts, workflow.WithPublisher(publisher))
		}
	}
	engine := workflow.NewEngine(store, opts...)

	srv := &http.Server{
		Addr:    ":" + port(settings),
		Handler: newRouter(settings, engine, rdb, logger),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{
		"field":  "http",
		"driver": settings.DBDriver,
	}).Info("ledger api listening on ", srv.Addr)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

func port(s config.Settings) string {
	if s.ApiPort != "" {
		return s.ApiPort
	}
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return defaultPort
}

// openStore picks the persistence backend named by DB_DRIVER.
func openStore(s config.Settings) (storage.Store, func(), error) {
	if s.DBDriver == config.DriverMemory {
		return memstore.New(), func() {}, nil
	}
	db, err := config.OpenDatabase(s)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return sqlstore.New(db), closeFn, nil
}

func newRouter(s config.Settings, engine *workflow.Engine, rdb *redis.Client, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	if len(s.CorsOrigins) > 0 {
		corsConfig.AllowOrigins = s.CorsOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader, middlewares.UserHeader)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.CorrelationHeader)
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.SessionMiddleware(rdb, s.TrustUserHeader))
	r.Use(middlewares.NewRateLimiter(rdb, s.RateLimitMaxRequests, s.RateLimitWindow).Middleware())
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1", middlewares.RequireUser())
	api.RegisterRoutes(v1, engine)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "kind": "NotFound"})
	})
	return r
}
