package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/seanblong/docquery/internal/ai"
	"github.com/seanblong/docquery/internal/chunker"
	"github.com/seanblong/docquery/internal/config"
	"github.com/seanblong/docquery/internal/drive"
	"github.com/seanblong/docquery/internal/ingest"
	"github.com/seanblong/docquery/internal/local"
	"github.com/seanblong/docquery/internal/pdf"
	"github.com/seanblong/docquery/internal/store"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("docquery-ingester", pflag.ExitOnError)
	limit := fs.Int("limit", 0, "Maximum number of documents to ingest (0 = all)")
	ensureIndex := fs.Bool("ensure-index", true, "Create the index with the hybrid mapping if missing")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger

	provider := strings.ToLower(cfg.Provider)
	log.Printf("using provider: %s", provider)
	clientConfig, err := buildClientConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	c, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatal(err)
	}
	if c.Dim() == 0 {
		log.Fatal("embedding dimension must be set")
	}

	st, err := store.New(store.Config{
		URL:        cfg.ElasticURL,
		Username:   cfg.ElasticUsername,
		Password:   cfg.ElasticPassword,
		Index:      cfg.ElasticIndex,
		ELSERModel: cfg.ELSERModel,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	source, err := buildSource(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	o := &ingest.Orchestrator{
		Source:    source,
		Extractor: pdf.NewExtractor(),
		Chunker:   chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		Client:    c,
		Store:     st,
		Workers:   cfg.IngestWorkers,
	}

	report, err := o.Run(ctx, *limit, *ensureIndex)
	if err != nil {
		log.Fatalf("ingestion failed: %v", err)
	}

	if cfg.ReportPath != "" {
		if err := ingest.WriteReport(report, cfg.ReportPath); err != nil {
			log.Printf("failed to write report: %v", err)
		} else {
			logger.Info().Str("path", cfg.ReportPath).Msg("ingestion report written")
		}
	}

	failed := 0
	for _, f := range report.Files {
		if f.Error != "" {
			failed++
		}
	}
	logger.Info().
		Str("run_id", report.RunID).
		Int("files", report.FilesSeen).
		Int("failed", failed).
		Int("chunks", report.ChunksTotal).
		Int("upserted", report.Upserted).
		Msg("done")
}

func buildClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		return &ai.ClientConfig{
			BaseURL:    cfg.OllamaURL,
			EmbedModel: cfg.EmbedModel,
			GenModel:   cfg.GenModel,
			Dim:        cfg.Dim,
			Provider:   ai.ProviderOllama,
		}, nil
	case "openai":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			GenModel:   cfg.GenModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Provider:   ai.ProviderOpenAI,
		}, nil
	case "gemini", "google":
		return &ai.ClientConfig{
			APIKey:     cfg.APIKey,
			EmbedModel: cfg.EmbedModel,
			GenModel:   cfg.GenModel,
			Dim:        cfg.Dim,
			ProjectID:  cfg.ProjectID,
			Location:   cfg.Location,
			Provider:   ai.ProviderGemini,
		}, nil
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func buildSource(ctx context.Context, cfg config.Specification) (ingest.FileSource, error) {
	if cfg.DocsDir != "" {
		return local.NewSource(cfg.DocsDir)
	}
	return drive.NewSource(ctx, cfg.DriveCredentials, cfg.DriveFolderID)
}
