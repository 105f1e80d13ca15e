package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cloo-solutions/docchat/internal/api/handlers"
	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/jobs"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	return ingestCommand("ingest <document-id>", "Ingest a document now",
		"Run extraction, chunking and embedding for an idle document and print the result",
		func(a *app) func(context.Context, string) (*domain.Document, error) { return a.ingestion.Ingest })
}

// ReingestCmd returns the reingest command
func ReingestCmd() *cobra.Command {
	return ingestCommand("reingest <document-id>", "Re-index a document",
		"Retry a failed document, or one whose processing run went stale, and print the result",
		func(a *app) func(context.Context, string) (*domain.Document, error) { return a.ingestion.Reingest })
}

func ingestCommand(use, short, long string, pick func(*app) func(context.Context, string) (*domain.Document, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			shutdownTelemetry := initTelemetry(cfg)
			defer shutdownTelemetry()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := pick(a)(ctx, args[0])
			if err != nil {
				return fmt.Errorf("document %s: %s", args[0], domain.UserMessage(err))
			}
			return printDocument(doc)
		},
	}
	return cmd
}

// ListCmd returns the list command
func ListCmd() *cobra.Command {
	var (
		status string
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List documents",
		Long:    "Print one page of documents, newest first, as JSON. Pass the printed cursor to --cursor for the next page.",
		Example: "docchatd list --status failed --limit 50",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.documents.List(ctx, service.ListInput{
				Status: domain.ProcessingStatus(status),
				Limit:  limit,
				Cursor: cursor,
			})
			if err != nil {
				return errors.New(domain.UserMessage(err))
			}

			items := make([]*handlers.DocumentResponse, 0, len(page.Items))
			for _, d := range page.Items {
				items = append(items, handlers.DocumentFromDomain(d))
			}
			return printJSON(handlers.DocumentListResponse{Items: items, Cursor: page.Cursor, HasMore: page.HasMore})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only documents in this status (idle, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", service.DefaultListLimit, "Page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Cursor from the previous page")
	return cmd
}

// ReclaimCmd returns the reclaim command
func ReclaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Fail documents stuck in processing",
		Long:  "Mark documents that have been processing for longer than DOCCHAT_STALE_PROCESSING_AFTER as failed so they can be retried",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := jobs.NewStaleReclaimer(a.docs, cfg.StaleProcessingAfter).Reclaim(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			fmt.Fprintf(os.Stderr, "reclaimed %d document(s)\n", len(ids))
			return nil
		},
	}
}

func printDocument(doc *domain.Document) error {
	return printJSON(handlers.DocumentFromDomain(doc))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
