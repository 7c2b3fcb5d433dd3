// server/cmd/api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"upcycle-api-server/config"
	"upcycle-api-server/internal/api/routes"
	"upcycle-api-server/internal/auth"
	"upcycle-api-server/internal/blockchain"
	"upcycle-api-server/internal/database"
	"upcycle-api-server/internal/events"
	"upcycle-api-server/internal/ledger"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/marketplace"
	"upcycle-api-server/internal/observability"
	"upcycle-api-server/internal/s3"
	"upcycle-api-server/internal/store/mongostore"
	"upcycle-api-server/internal/store/sqlstore"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	appLog, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Could not create logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing
	shutdownTracing, err := observability.InitTracing(ctx, appLog, cfg.Otel)
	if err != nil {
		appLog.Fatal("Failed to init tracing", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			appLog.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	// 3. Store
	db, err := openStore(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to open store", "driver", cfg.Store.Driver, "error", err)
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			appLog.Warn("Store close failed", "error", err)
		}
	}()
	if cfg.Store.Seed {
		if err := database.SeedDemoData(ctx, db, appLog); err != nil {
			appLog.Fatal("Failed to seed demo data", "error", err)
		}
	}

	// 4. Observers: log, kafka and fabric are all optional sinks
	observers := []marketplace.Observer{marketplace.LogObserver{Log: appLog}}
	if cfg.Kafka.Enabled() {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, appLog)
		defer publisher.Close()
		observers = append(observers, publisher)
	}
	if cfg.Fabric.Enabled {
		fabricSetup, err := blockchain.Initialize(cfg.Fabric)
		if err != nil {
			appLog.Fatal("Failed to initialize Fabric setup", "error", err)
		}
		defer fabricSetup.Close()
		observers = append(observers, fabricSetup.Recorder(appLog))
	}

	// 5. Evidence uploads stay disabled without a bucket
	var uploader marketplace.Uploader
	if cfg.S3.Enabled() {
		s3Uploader, err := s3.NewUploader(ctx, cfg.S3)
		if err != nil {
			appLog.Fatal("Failed to create S3 uploader", "error", err)
		}
		uploader = s3Uploader
	}

	engine := marketplace.NewEngine(db, ledger.New(appLog), appLog,
		marketplace.WithCompletionPolicy(marketplace.CompletionPolicy(cfg.Allocation.CompletionPolicy)),
		marketplace.WithObservers(observers...),
	)

	gin.SetMode(cfg.Server.Mode)
	serviceName := ""
	if observability.Enabled(cfg.Otel) {
		serviceName = cfg.Otel.ServiceName
	}
	router := routes.SetupRouter(routes.Deps{
		Engine:         engine,
		Feedback:       marketplace.NewFeedbackService(db, appLog),
		Reports:        marketplace.NewReportService(db, uploader, appLog),
		Tokens:         auth.NewService(cfg.JWT.Secret, cfg.JWT.TTL()),
		Log:            appLog,
		ServiceName:    serviceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// 6. Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Info("Starting API server", "port", cfg.Server.Port, "store", cfg.Store.Driver, "completion_policy", engine.Policy())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down API server")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		appLog.Error("Graceful shutdown failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, log *logger.Logger) (database.Target, error) {
	switch cfg.Store.Driver {
	case "mongo":
		return mongostore.Open(ctx, cfg.Mongo.URI, cfg.Mongo.DBName, log)
	case "postgres":
		return sqlstore.OpenPostgres(cfg.Postgres.DSN, log)
	case "sqlite":
		return sqlstore.OpenSQLite(cfg.SQLite.Path, log)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
