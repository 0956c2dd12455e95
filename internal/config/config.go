package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel string `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	GenModel   string `yaml:"providerGenModel" envconfig:"PROVIDER_GENERATION_MODEL"`
	ProjectID  string `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location   string `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	Dim        int    `yaml:"providerDim" envconfig:"EMBED_DIM"`
	OllamaURL  string `yaml:"ollamaURL" envconfig:"OLLAMA_URL"`

	ElasticURL      string `yaml:"elasticURL" envconfig:"ELASTIC_URL"`
	ElasticUsername string `yaml:"elasticUsername" split_words:"true"`
	ElasticPassword string `yaml:"elasticPassword" split_words:"true"`
	ElasticIndex    string `yaml:"elasticIndex" split_words:"true"`
	ELSERModel      string `yaml:"elserModel" envconfig:"ELSER_MODEL"`

	DriveFolderID    string `yaml:"driveFolderID" envconfig:"DRIVE_FOLDER_ID"`
	DriveCredentials string `yaml:"driveCredentials" split_words:"true"`
	DocsDir          string `yaml:"docsDir" split_words:"true"`

	ChunkSize    int `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap int `yaml:"chunkOverlap" split_words:"true"`

	TopK           int     `yaml:"topK" envconfig:"TOP_K"`
	SnippetLength  int     `yaml:"snippetLength" split_words:"true"`
	GenTemperature float32 `yaml:"genTemperature" split_words:"true"`
	GenMaxTokens   int     `yaml:"genMaxTokens" split_words:"true"`

	IngestWorkers int    `yaml:"ingestWorkers" split_words:"true"`
	ReportPath    string `yaml:"reportPath" split_words:"true"`

	LogLevel string `yaml:"logLevel" split_words:"true"`
	Port     int    `yaml:"port" split_words:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

const envPrefix = "DOCQUERY"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/docquery.yaml",
				"config/config.yaml",
				"./docquery.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	// Minimal sanity
	if strings.TrimSpace(cfg.ElasticURL) == "" {
		return Specification{}, fmt.Errorf("DOCQUERY_ELASTIC_URL is required (env/file/flag)")
	}
	if cfg.ChunkSize <= 0 {
		return Specification{}, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return Specification{}, fmt.Errorf("chunk overlap %d must be in [0, %d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (e.g., stub, ollama, openai, gemini)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-generation-model", c.GenModel, "Provider generation model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")
	fs.String("ollama-url", c.OllamaURL, "Ollama base URL")

	fs.String("elastic-url", c.ElasticURL, "Elasticsearch URL")
	fs.String("elastic-username", c.ElasticUsername, "Elasticsearch username")
	fs.String("elastic-password", c.ElasticPassword, "Elasticsearch password")
	fs.String("elastic-index", c.ElasticIndex, "Elasticsearch index name")
	fs.String("elser-model", c.ELSERModel, "ELSER model id for sparse expansion")

	fs.String("drive-folder-id", c.DriveFolderID, "Google Drive folder ID to ingest from")
	fs.String("drive-credentials", c.DriveCredentials, "Path to service account credentials JSON")
	fs.String("docs-dir", c.DocsDir, "Local directory of PDFs (overrides Drive)")

	fs.Int("chunk-size", c.ChunkSize, "Chunk window size in tokens")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Chunk overlap in tokens")

	fs.Int("top-k", c.TopK, "Default number of results per query")
	fs.Int("snippet-length", c.SnippetLength, "Maximum snippet length in bytes")
	fs.Float32("gen-temperature", c.GenTemperature, "Generation temperature")
	fs.Int("gen-max-tokens", c.GenMaxTokens, "Generation token cap")

	fs.Int("ingest-workers", c.IngestWorkers, "Ingestion worker count")
	fs.String("report-path", c.ReportPath, "Ingestion report output path")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat32 := func(name string, dst *float32) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat32(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-generation-model", &c.GenModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setInt("embed-dim", &c.Dim)
	setStr("ollama-url", &c.OllamaURL)

	setStr("elastic-url", &c.ElasticURL)
	setStr("elastic-username", &c.ElasticUsername)
	setStr("elastic-password", &c.ElasticPassword)
	setStr("elastic-index", &c.ElasticIndex)
	setStr("elser-model", &c.ELSERModel)

	setStr("drive-folder-id", &c.DriveFolderID)
	setStr("drive-credentials", &c.DriveCredentials)
	setStr("docs-dir", &c.DocsDir)

	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)

	setInt("top-k", &c.TopK)
	setInt("snippet-length", &c.SnippetLength)
	setFloat32("gen-temperature", &c.GenTemperature)
	setInt("gen-max-tokens", &c.GenMaxTokens)

	setInt("ingest-workers", &c.IngestWorkers)
	setStr("report-path", &c.ReportPath)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
}

func setDefaults(c *Specification) {
	c.Provider = "ollama"
	c.Location = "us-central1"
	c.Dim = 0
	c.OllamaURL = "http://127.0.0.1:11434"
	c.ElasticURL = "http://localhost:9200"
	c.ElasticIndex = "rag_documents_v1"
	c.ELSERModel = ".elser_model_2"
	c.ChunkSize = 300
	c.ChunkOverlap = 60
	c.TopK = 5
	c.SnippetLength = 200
	c.GenTemperature = 0.1
	c.GenMaxTokens = 256
	c.IngestWorkers = 4
	c.ReportPath = "./tmp/ingestion_report.json"
	c.LogLevel = "info"
	c.Port = 8080
}
