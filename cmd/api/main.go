package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/docquery/internal/ai"
	"github.com/seanblong/docquery/internal/answer"
	"github.com/seanblong/docquery/internal/chunker"
	"github.com/seanblong/docquery/internal/config"
	"github.com/seanblong/docquery/internal/drive"
	"github.com/seanblong/docquery/internal/ingest"
	"github.com/seanblong/docquery/internal/local"
	"github.com/seanblong/docquery/internal/pdf"
	"github.com/seanblong/docquery/internal/search"
	"github.com/seanblong/docquery/internal/store"
	"github.com/seanblong/docquery/pkg/models"
	"github.com/spf13/pflag"
)

type queryRequest struct {
	Q    string `json:"q"`
	K    int    `json:"k"`
	Mode string `json:"mode"`
}

type queryResponse struct {
	Answer    string                `json:"answer"`
	Citations []string              `json:"citations"`
	Status    string                `json:"status"`
	Hits      []models.RetrievalHit `json:"hits"`
}

type ingestRequest struct {
	Limit int  `json:"limit"`
	Index bool `json:"index"`
}

// server holds the wired dependencies behind the HTTP surface.
// Detailed errors stay in the log; clients only ever see generic
// failure messages.
type server struct {
	cfg       config.Specification
	client    ai.Client
	store     store.DocumentStore
	gen       *answer.Generator
	logger    zerolog.Logger
	newSource func(ctx context.Context) (ingest.FileSource, error)

	// One ingestion run at a time; concurrent requests get a 409.
	ingestMu sync.Mutex
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/ingest", s.handleIngest)
	return mux
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]bool{
		"elasticsearch": s.store.Ping(ctx) == nil,
		"llm":           s.client.Ping(ctx) == nil,
	}
	status := http.StatusOK
	for _, ok := range health {
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode health response")
	}
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Q) == "" {
		http.Error(w, "missing question q", http.StatusBadRequest)
		return
	}
	k := req.K
	if k <= 0 {
		k = s.cfg.TopK
	}
	mode := search.ParseMode(req.Mode)

	ctx, cancel := context.WithTimeout(r.Context(), 150*time.Second)
	defer cancel()

	result, evidence, err := s.gen.Answer(ctx, req.Q, k, mode)
	if err != nil {
		// The error chain can carry raw engine responses; those are
		// for the log, never the client.
		s.logger.Error().Err(err).Str("mode", string(mode)).Msg("query failed")
		http.Error(w, "retrieval failed", http.StatusInternalServerError)
		return
	}

	resp := queryResponse{
		Answer:    result.Answer,
		Citations: result.Citations,
		Status:    string(result.Status),
		Hits:      search.Hits(evidence),
	}
	if resp.Hits == nil {
		resp.Hits = []models.RetrievalHit{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode query response")
	}

	hlog.FromRequest(r).Info().
		Str("path", "/query").
		Str("mode", string(mode)).
		Int("k", k).
		Str("status", string(result.Status)).
		Dur("dur", time.Since(start)).
		Msg("served")
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ingestRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	if !s.ingestMu.TryLock() {
		http.Error(w, "ingestion already running", http.StatusConflict)
		return
	}
	defer s.ingestMu.Unlock()

	source, err := s.newSource(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to build ingestion source")
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	o := &ingest.Orchestrator{
		Source:    source,
		Extractor: pdf.NewExtractor(),
		Chunker:   chunker.New(s.cfg.ChunkSize, s.cfg.ChunkOverlap),
		Client:    s.client,
		Store:     s.store,
		Workers:   s.cfg.IngestWorkers,
	}

	report, err := o.Run(r.Context(), req.Limit, req.Index)
	if err != nil {
		s.logger.Error().Err(err).Msg("ingestion run failed")
		http.Error(w, "ingestion failed", http.StatusInternalServerError)
		return
	}

	// The report is a persisted artifact, same as for the one-shot
	// ingester; a write failure is logged but does not fail the run.
	if s.cfg.ReportPath != "" {
		if err := ingest.WriteReport(report, s.cfg.ReportPath); err != nil {
			s.logger.Error().Err(err).Str("path", s.cfg.ReportPath).Msg("failed to write ingestion report")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode ingestion report")
	}
}

func main() {
	fs := pflag.NewFlagSet("docquery-api", pflag.ExitOnError)

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
	logger.Info().Str("provider", cfg.Provider).Str("index", cfg.ElasticIndex).Str("log_level", cfg.LogLevel).Msg("starting docquery api")

	clientConfig, err := buildClientConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}

	c, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	logger.Info().Int("embedding_dim", c.Dim()).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	st, err := store.New(store.Config{
		URL:        cfg.ElasticURL,
		Username:   cfg.ElasticUsername,
		Password:   cfg.ElasticPassword,
		Index:      cfg.ElasticIndex,
		ELSERModel: cfg.ELSERModel,
	})
	if err != nil {
		log.Fatalf("Failed to create document store: %v", err)
	}

	svc := search.NewService(c, st, cfg.SnippetLength)
	gen := answer.NewGenerator(c, svc)
	gen.Temperature = cfg.GenTemperature
	gen.MaxTokens = cfg.GenMaxTokens

	srv := &server{
		cfg:    cfg,
		client: c,
		store:  st,
		gen:    gen,
		logger: logger,
		newSource: func(ctx context.Context) (ingest.FileSource, error) {
			return buildSource(ctx, cfg)
		},
	}

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(srv.routes()),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
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

// buildSource prefers a local docs directory when configured, otherwise
// a Google Drive folder.
func buildSource(ctx context.Context, cfg config.Specification) (ingest.FileSource, error) {
	if cfg.DocsDir != "" {
		return local.NewSource(cfg.DocsDir)
	}
	return drive.NewSource(ctx, cfg.DriveCredentials, cfg.DriveFolderID)
}
