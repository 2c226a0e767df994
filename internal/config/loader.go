package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, RETRIEVAL_TOP_K, LLM_API_KEY, ...)
//  2. YAML config file (default ~/.config/superdaddy/config.yaml)
//  3. Defaults from NewDefaultConfig
//
// Environment variables use an underscore separator and are uppercased. The
// transformer splits on the first underscore only, mapping the section prefix
// to a koanf path:
//
//	SERVER_PORT              -> server.port
//	RETRIEVAL_TOP_K          -> retrieval.top_k
//	INGESTION_CHUNK_SIZE     -> ingestion.chunk_size
//	VECTORSTORE_PROVIDER     -> vectorstore.provider
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "superdaddy", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDerivedDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envTransformer maps SECTION_FIELD_NAME environment variables onto koanf
// paths, splitting on the first underscore only so compound field names keep
// their underscores.
func envTransformer(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyDerivedDefaults fills values that depend on other fields.
func applyDerivedDefaults(cfg *Config) {
	if cfg.Ingestion.SourceID == "" && cfg.Ingestion.SourcePath != "" {
		cfg.Ingestion.SourceID = filepath.Base(cfg.Ingestion.SourcePath)
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
}
