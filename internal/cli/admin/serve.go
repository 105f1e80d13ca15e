package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/database"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/queue"
	"github.com/cloo-solutions/docchat/internal/server"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docchat API server, the ingest queue consumer and the stale document reclaimer",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-consumer", false, "Do not consume the ingest queue in this process")
	cmd.Flags().Duration("reclaim-interval", time.Minute, "How often stale processing documents are failed")
	cmd.Flags().Int64("max-upload-bytes", 50*1024*1024, "Largest accepted upload")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTelemetry := initTelemetry(cfg)
	defer shutdownTelemetry()

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL, database.DefaultMigrationsSource); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var consumer *queue.Consumer
	noConsumer, _ := cmd.Flags().GetBool("no-consumer")
	if a.amqp != nil && !noConsumer {
		consumer = queue.NewConsumer(a.amqp, cfg.IngestQueue, cfg.IngestPrefetch, jobs.IngestHandler(a.ingestion))
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start ingest consumer: %w", err)
		}
	}

	reclaimInterval, _ := cmd.Flags().GetDuration("reclaim-interval")
	reclaimer := jobs.NewWorker("reclaimer", jobs.NewStaleReclaimer(a.docs, cfg.StaleProcessingAfter), reclaimInterval)
	go reclaimer.Start(ctx)

	maxUpload, _ := cmd.Flags().GetInt64("max-upload-bytes")
	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(a.documents, a.ingestion),
		ChatHandler:     handlers.NewChatHandler(a.search, a.conversation),
		MaxUploadBytes:  maxUpload,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	reclaimer.Stop()
	if consumer != nil {
		consumer.Close()
	}

	log.Println("server exited")
	return nil
}
