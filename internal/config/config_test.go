package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestSpecificationDefaults(t *testing.T) {
	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "ollama" {
		t.Errorf("Expected Provider 'ollama', got %q", cfg.Provider)
	}
	if cfg.ElasticURL != "http://localhost:9200" {
		t.Errorf("Expected ElasticURL 'http://localhost:9200', got %q", cfg.ElasticURL)
	}
	if cfg.ElasticIndex != "rag_documents_v1" {
		t.Errorf("Expected ElasticIndex 'rag_documents_v1', got %q", cfg.ElasticIndex)
	}
	if cfg.ELSERModel != ".elser_model_2" {
		t.Errorf("Expected ELSERModel '.elser_model_2', got %q", cfg.ELSERModel)
	}
	if cfg.ChunkSize != 300 || cfg.ChunkOverlap != 60 {
		t.Errorf("Expected chunk 300/60, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TopK != 5 {
		t.Errorf("Expected TopK 5, got %d", cfg.TopK)
	}
	if cfg.GenTemperature != 0.1 {
		t.Errorf("Expected GenTemperature 0.1, got %v", cfg.GenTemperature)
	}
	if cfg.GenMaxTokens != 256 {
		t.Errorf("Expected GenMaxTokens 256, got %d", cfg.GenMaxTokens)
	}
	if cfg.IngestWorkers != 4 {
		t.Errorf("Expected IngestWorkers 4, got %d", cfg.IngestWorkers)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected LogLevel 'info', got %q", cfg.LogLevel)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected Port 8080, got %d", cfg.Port)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "test-config.yaml")

	yamlContent := `
provider: "openai"
providerApiKey: "test-api-key"
providerEmbedModel: "text-embedding-3-small"
providerGenModel: "gpt-4o-mini"
providerDim: 1536
elasticURL: "http://es.internal:9200"
elasticIndex: "docs_test"
elserModel: ".elser_model_2_linux-x86_64"
driveFolderID: "folder-abc"
chunkSize: 200
chunkOverlap: 40
topK: 8
logLevel: "debug"
`

	if err := os.WriteFile(configFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load(configFile, fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "openai" {
		t.Errorf("Expected Provider 'openai', got %q", cfg.Provider)
	}
	if cfg.APIKey != "test-api-key" {
		t.Errorf("Expected APIKey 'test-api-key', got %q", cfg.APIKey)
	}
	if cfg.ElasticURL != "http://es.internal:9200" {
		t.Errorf("Expected ElasticURL 'http://es.internal:9200', got %q", cfg.ElasticURL)
	}
	if cfg.ElasticIndex != "docs_test" {
		t.Errorf("Expected ElasticIndex 'docs_test', got %q", cfg.ElasticIndex)
	}
	if cfg.Dim != 1536 {
		t.Errorf("Expected Dim 1536, got %d", cfg.Dim)
	}
	if cfg.ChunkSize != 200 || cfg.ChunkOverlap != 40 {
		t.Errorf("Expected chunk 200/40, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TopK != 8 {
		t.Errorf("Expected TopK 8, got %d", cfg.TopK)
	}
}

func TestLoadFromEnvironmentVariables(t *testing.T) {
	clearTestEnv(t)

	envVars := map[string]string{
		"DOCQUERY_PROVIDER":                  "gemini",
		"DOCQUERY_PROVIDER_API_KEY":          "env-api-key",
		"DOCQUERY_PROVIDER_EMBEDDING_MODEL":  "env-embed-model",
		"DOCQUERY_PROVIDER_GENERATION_MODEL": "env-gen-model",
		"DOCQUERY_PROVIDER_PROJECT_ID":       "env-project-id",
		"DOCQUERY_EMBED_DIM":                 "768",
		"DOCQUERY_ELASTIC_URL":               "http://env-es:9200",
		"DOCQUERY_ELASTIC_INDEX":             "env_index",
		"DOCQUERY_DRIVE_FOLDER_ID":           "env-folder",
		"DOCQUERY_TOP_K":                     "10",
		"DOCQUERY_LOG_LEVEL":                 "warn",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "gemini" {
		t.Errorf("Expected Provider 'gemini', got %q", cfg.Provider)
	}
	if cfg.ElasticURL != "http://env-es:9200" {
		t.Errorf("Expected ElasticURL 'http://env-es:9200', got %q", cfg.ElasticURL)
	}
	if cfg.ElasticIndex != "env_index" {
		t.Errorf("Expected ElasticIndex 'env_index', got %q", cfg.ElasticIndex)
	}
	if cfg.Dim != 768 {
		t.Errorf("Expected Dim 768, got %d", cfg.Dim)
	}
	if cfg.TopK != 10 {
		t.Errorf("Expected TopK 10, got %d", cfg.TopK)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected LogLevel 'warn', got %q", cfg.LogLevel)
	}
}

func TestLoadFromFlags(t *testing.T) {
	clearTestEnv(t)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	args := []string{
		"--provider", "stub",
		"--elastic-url", "http://flag-es:9200",
		"--elastic-index", "flag_index",
		"--embed-dim", "2048",
		"--chunk-size", "500",
		"--chunk-overlap", "100",
		"--log-level", "error",
	}

	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = append([]string{"test"}, args...)

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "stub" {
		t.Errorf("Expected Provider 'stub', got %q", cfg.Provider)
	}
	if cfg.ElasticURL != "http://flag-es:9200" {
		t.Errorf("Expected ElasticURL 'http://flag-es:9200', got %q", cfg.ElasticURL)
	}
	if cfg.Dim != 2048 {
		t.Errorf("Expected Dim 2048, got %d", cfg.Dim)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 {
		t.Errorf("Expected chunk 500/100, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("Expected LogLevel 'error', got %q", cfg.LogLevel)
	}
}

func TestConfigPrecedence(t *testing.T) {
	// Flags override environment variables
	clearTestEnv(t)
	t.Setenv("DOCQUERY_PROVIDER", "env-provider")
	t.Setenv("DOCQUERY_LOG_LEVEL", "env-level")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"test", "--provider", "flag-provider"}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "flag-provider" {
		t.Errorf("Expected Provider 'flag-provider' (flag should override env), got %q", cfg.Provider)
	}
	if cfg.LogLevel != "env-level" {
		t.Errorf("Expected LogLevel 'env-level' (from env), got %q", cfg.LogLevel)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "empty elastic url",
			env:     map[string]string{"DOCQUERY_ELASTIC_URL": "   "},
			wantErr: "DOCQUERY_ELASTIC_URL is required",
		},
		{
			name:    "zero chunk size",
			env:     map[string]string{"DOCQUERY_CHUNK_SIZE": "0"},
			wantErr: "chunk size",
		},
		{
			name: "overlap not below size",
			env: map[string]string{
				"DOCQUERY_CHUNK_SIZE":    "100",
				"DOCQUERY_CHUNK_OVERLAP": "100",
			},
			wantErr: "chunk overlap",
		},
		{
			name:    "negative overlap",
			env:     map[string]string{"DOCQUERY_CHUNK_OVERLAP": "-1"},
			wantErr: "chunk overlap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

			_, err := Load("", fs)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestInvalidYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
provider: "test"
invalid: yaml: content: [
`

	if err := os.WriteFile(configFile, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write invalid YAML file: %v", err)
	}

	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	_, err := Load(configFile, fs)
	if err == nil {
		t.Fatal("Expected error for invalid YAML file")
	}
	if !strings.Contains(err.Error(), "load yaml") {
		t.Errorf("Expected YAML load error, got: %v", err)
	}
}

func TestNonExistentConfigFile(t *testing.T) {
	clearTestEnv(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	_, err := Load("/non/existent/config.yaml", fs)
	if err == nil {
		t.Fatal("Expected error for non-existent config file")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Expected: config file not found, got: %v", err)
	}
}

func TestConfigFileFromEnvironment(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "custom-config.yaml")

	if err := os.WriteFile(configFile, []byte(`provider: "env-config"`), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	clearTestEnv(t)
	t.Setenv("DOCQUERY_CONFIG", configFile)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != "env-config" {
		t.Errorf("Expected Provider 'env-config' (from DOCQUERY_CONFIG), got %q", cfg.Provider)
	}
}

func TestAllFlagsAreBound(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := Specification{}

	bindFlags(fs, &cfg)

	expectedFlags := []string{
		"config", "provider", "provider-api-key", "provider-embedding-model",
		"provider-generation-model", "provider-project-id", "provider-location",
		"embed-dim", "ollama-url", "elastic-url", "elastic-username",
		"elastic-password", "elastic-index", "elser-model", "drive-folder-id",
		"drive-credentials", "docs-dir", "chunk-size", "chunk-overlap",
		"top-k", "snippet-length", "gen-temperature", "gen-max-tokens",
		"ingest-workers", "report-path", "log-level", "port",
	}

	for _, flagName := range expectedFlags {
		if fs.Lookup(flagName) == nil {
			t.Errorf("Flag %q not found", flagName)
		}
	}
}

// Helper function to clear test environment variables
func clearTestEnv(t *testing.T) {
	t.Helper()

	envVars := []string{
		"DOCQUERY_CONFIG",
		"DOCQUERY_PROVIDER",
		"DOCQUERY_PROVIDER_API_KEY",
		"DOCQUERY_PROVIDER_EMBEDDING_MODEL",
		"DOCQUERY_PROVIDER_GENERATION_MODEL",
		"DOCQUERY_PROVIDER_PROJECT_ID",
		"DOCQUERY_PROVIDER_LOCATION",
		"DOCQUERY_EMBED_DIM",
		"DOCQUERY_OLLAMA_URL",
		"DOCQUERY_ELASTIC_URL",
		"DOCQUERY_ELASTIC_USERNAME",
		"DOCQUERY_ELASTIC_PASSWORD",
		"DOCQUERY_ELASTIC_INDEX",
		"DOCQUERY_ELSER_MODEL",
		"DOCQUERY_DRIVE_FOLDER_ID",
		"DOCQUERY_DRIVE_CREDENTIALS",
		"DOCQUERY_DOCS_DIR",
		"DOCQUERY_CHUNK_SIZE",
		"DOCQUERY_CHUNK_OVERLAP",
		"DOCQUERY_TOP_K",
		"DOCQUERY_SNIPPET_LENGTH",
		"DOCQUERY_GEN_TEMPERATURE",
		"DOCQUERY_GEN_MAX_TOKENS",
		"DOCQUERY_INGEST_WORKERS",
		"DOCQUERY_REPORT_PATH",
		"DOCQUERY_LOG_LEVEL",
		"DOCQUERY_PORT",
	}

	for _, envVar := range envVars {
		if err := os.Unsetenv(envVar); err != nil {
			t.Logf("Failed to unset environment variable %s: %v", envVar, err)
		}
	}
}
