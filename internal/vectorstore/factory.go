package vectorstore

import (
	"fmt"

	"github.com/zoontopia/superdaddy/internal/config"
	"github.com/zoontopia/superdaddy/internal/logging"
)

// NewStore creates a Store from configuration.
//
// The chromem provider (default) is embedded and needs no external service;
// qdrant talks to an external server over gRPC.
func NewStore(cfg config.VectorStoreConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Provider {
	case config.ProviderChromem, "":
		return NewChromemStore(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger)
	case config.ProviderQdrant:
		return NewQdrantStore(QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			RequestTimeout: cfg.Qdrant.RequestTimeout.Duration(),
			RetryAttempts:  cfg.Qdrant.RetryAttempts,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
