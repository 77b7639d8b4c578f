// @title			Convodist API
// @version		1.0
// @description	Automatic distribution of open conversations to available agents.
// @BasePath		/api/v1

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/convodist/internal/client"
	"github.com/mtlprog/convodist/internal/config"
	"github.com/mtlprog/convodist/internal/database"
	"github.com/mtlprog/convodist/internal/events"
	"github.com/mtlprog/convodist/internal/handler"
	"github.com/mtlprog/convodist/internal/logger"
	"github.com/mtlprog/convodist/internal/repository"
	"github.com/mtlprog/convodist/internal/service"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "convodist",
		Usage: "Automatic conversation distribution service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:     "database-url",
				Aliases:  []string{"d"},
				Value:    config.DefaultDatabaseURL,
				Usage:    "PostgreSQL database URL",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "amqp-url",
				Value:   config.DefaultAMQPURL,
				Usage:   "RabbitMQ connection URL",
				EnvVars: []string{"AMQP_URL"},
			},
			&cli.StringFlag{
				Name:    "collaborator-url",
				Usage:   "Base URL of the conversation platform API",
				EnvVars: []string{"COLLABORATOR_URL"},
			},
			&cli.StringFlag{
				Name:    "collaborator-token",
				Usage:   "Bearer token for the conversation platform API",
				EnvVars: []string{"COLLABORATOR_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "api-token",
				Usage:   "Bearer token protecting the admin API",
				EnvVars: []string{"API_TOKEN"},
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Value:   config.DefaultBatchSize,
				Usage:   "Pending conversations pulled per workspace per pass",
				EnvVars: []string{"DISTRIBUTION_BATCH_SIZE"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(logger.ParseLevel(c.String("log-level")))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the distribution service",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   config.DefaultPort,
						Usage:   "HTTP server port",
						EnvVars: []string{"PORT"},
					},
				},
				Action: runServe,
			},
			{
				Name:   "distribute",
				Usage:  "Run a single distribution pass and exit",
				Action: runDistribute,
			},
		},
		Action: runServe,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

// buildEngine wires the distribution engine from repositories and
// collaborator clients.
func buildEngine(c *cli.Context, pool *pgxpool.Pool) *service.Engine {
	base := client.New(c.String("collaborator-url"), c.String("collaborator-token"))

	return &service.Engine{
		Rules:         repository.NewDistributionRuleRepository(pool),
		Pending:       repository.NewPendingDistributionRepository(pool),
		Log:           repository.NewAssignmentLogRepository(pool),
		Conversations: base,
		Teams:         client.NewTeamClient(base),
		Users:         client.NewUserClient(base),
		Gate:          &service.EnvGate{Var: "DISTRIBUTION_ENABLED"},
		BatchSize:     c.Int("batch-size"),
	}
}

func runServe(c *cli.Context) error {
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	port := c.String("port")
	if port == "" {
		port = config.DefaultPort
	}
	databaseURL := c.String("database-url")

	db, err := database.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Eligibility tracker over the event subscription
	conn, err := events.DialWithRetry(ctx, events.DialOptions{
		URL:           c.String("amqp-url"),
		RetryAttempts: 5,
		Delay:         time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	subscriber, err := events.NewSubscriber(conn, config.DefaultExchange)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}

	tracker := events.NewEligibilityTracker(repository.NewPendingDistributionRepository(db.Pool()))
	tracker.Bind(subscriber)

	if err := subscriber.Start(config.DefaultQueue); err != nil {
		return fmt.Errorf("failed to start subscriber: %w", err)
	}
	defer subscriber.Close()

	// Distribution engine on its fixed period
	engine := buildEngine(c, db.Pool())
	go engine.Start(ctx, config.TickPeriod)

	// Admin API
	h := handler.New(db.Pool(), c.String("api-token"))

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "server_addr", "http://localhost:"+port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-done:
		slog.Info("shutting down server")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func runDistribute(c *cli.Context) error {
	ctx := c.Context
	databaseURL := c.String("database-url")

	db, err := database.New(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db.Pool()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	engine := buildEngine(c, db.Pool())

	stats, err := engine.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("distribution pass failed: %w", err)
	}

	slog.Info("distribution pass finished",
		"workspaces", stats.Workspaces,
		"processed", stats.Processed,
		"assigned", stats.Assigned,
		"failed", stats.Failed,
	)
	return nil
}
