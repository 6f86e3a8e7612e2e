package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docchat/internal/di"
	"docchat/internal/infra"
	"docchat/internal/infra/config"
	"docchat/internal/infra/logger"
	"docchat/internal/usecase"
)

var sessionID string

var rootCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest PDF files into a session's indexes",
	Long: `Ingest PDF files directly, without going through the HTTP API.

Each file is extracted, chunked, embedded, stored in Postgres, and
registered in the full-text index under the given session.

Examples:
  ingest --session demo report.pdf
  ingest --session demo docs/*.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id owning the documents (required)")
	_ = rootCmd.MarkFlagRequired("session")
}

func runIngest(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New()
	slog.SetDefault(log)

	ctx := cmd.Context()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	dbPool, err := infra.NewPostgresDB(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer dbPool.Close()

	components := di.NewApplicationComponents(cfg, dbPool, log)
	if err := components.SearchIndex.EnsureIndex(ctx); err != nil {
		log.Warn("lexical_index_setup_failed", "error", err)
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		out, err := components.IngestUsecase.Ingest(ctx, usecase.IngestDocumentInput{
			FileName:  filepath.Base(path),
			Data:      data,
			SessionID: sessionID,
		})
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: document %s, %d chunks\n",
			filepath.Base(path), out.DocumentID, out.ChunkCount)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
