package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/abtest"
	"github.com/ignite/outreach-engine/internal/api"
	"github.com/ignite/outreach-engine/internal/bounce"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/lifecycle"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/repository/postgres"
	"github.com/ignite/outreach-engine/internal/service/lead"
	"github.com/ignite/outreach-engine/internal/service/suppression"
	"github.com/ignite/outreach-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		logger.Error("pre-flight check failed", "error", err)
		os.Exit(1)
	}

	if cfg.Database.URL == "" {
		logger.Error("database url is required (config database.url or DATABASE_URL)")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}
	cancelPing()
	logger.Info("database connected")

	// Redis is optional: without it, retry scheduling and inbox health
	// tracking are off and the optimizer lock falls back to Postgres.
	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, continuing without it", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	machine := lifecycle.NewMachine(func(change domain.LeadStateChange) {
		logger.Info("lead transition",
			"lead_id", change.LeadID,
			"from", string(change.PreviousStatus),
			"to", string(change.NewStatus),
			"event", string(change.Event))
	})

	leadSvc := lead.NewService(machine, postgres.NewLeadRepo(db))
	supSvc := suppression.NewService(postgres.NewSuppressionRepo(db))

	var inboxHealth *bounce.InboxHealth
	if rdb != nil && cfg.InboxHealth.Enabled {
		inboxHealth = bounce.NewInboxHealth(rdb)
	}

	var retries *worker.RetryScheduler
	if rdb != nil && cfg.Retry.Enabled {
		retries = worker.NewRetryScheduler(rdb, func(ctx context.Context, job worker.RetryJob) error {
			// A due retry puts the lead back on the sending path; the
			// sequence scheduler picks it up from there.
			_, _, err := leadSvc.ApplyEventByID(ctx, job.OrganizationID, job.LeadID,
				domain.EventEmailSent, map[string]string{"retry_count": fmt.Sprint(job.RetryCount)})
			return err
		}, cfg.Retry.DrainInterval())
		retries.Start()
		defer retries.Stop()
	}

	var optimizer *worker.Optimizer
	if cfg.Optimizer.Enabled {
		lock := distlock.NewLock(rdb, db, "optimizer:tick", cfg.Optimizer.Interval())
		optimizer = worker.NewOptimizer(db, lock, abtest.Metric(cfg.Optimizer.Metric), cfg.Optimizer.Interval())
		optimizer.Start()
		defer optimizer.Stop()
	}

	webhooks := worker.NewWebhookReceiver(leadSvc, supSvc, retries, inboxHealth)
	router := api.SetupRoutes(api.NewServer(leadSvc, supSvc, optimizer, webhooks, inboxHealth))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	db.Close()
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("stopped")
}
