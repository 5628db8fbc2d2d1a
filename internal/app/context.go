package app

import (
	"fmt"
	"io"
	"strings"

	"dayplan/internal/classifier"
	"dayplan/internal/config"
	"dayplan/internal/embedding"
	"dayplan/internal/logx"
)

// LoadConfig reads an explicit config file, else dayplan.yml in workspace,
// else the built-in defaults.
func LoadConfig(workspace, path string) (*config.Config, error) {
	if strings.TrimSpace(path) != "" {
		cfg, err := config.FromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.LoadOptional(workspace)
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config) (logx.Logger, io.Closer, error) {
	return logx.New(logx.Config{Level: cfg.Log.Level, Console: cfg.Log.Console, File: cfg.Log.File})
}

// ArtifactsDir resolves the prototype artifact directory against workspace.
func ArtifactsDir(workspace string, cfg *config.Config) string {
	return config.Resolve(workspace, cfg.Classifier.ArtifactsDir)
}

// Resolver locates embedding files for cfg.
func Resolver(workspace string, cfg *config.Config) embedding.Resolver {
	return embedding.Resolver{
		ModelsDir: config.Resolve(workspace, cfg.Classifier.ModelsDir),
		Path:      config.Resolve(workspace, cfg.Classifier.Embeddings),
	}
}

// NewClassifier returns the classifier selected by classifier.mode.
func NewClassifier(workspace string, cfg *config.Config, log logx.Logger) (classifier.Classifier, error) {
	switch cfg.Classifier.Mode {
	case "", config.ModeLocal:
		return classifier.NewLocal(ArtifactsDir(workspace, cfg), Resolver(workspace, cfg), log), nil
	case config.ModeRemote:
		if strings.TrimSpace(cfg.Classifier.RemoteURL) == "" {
			return nil, fmt.Errorf("classifier.remote_url is required in remote mode")
		}
		return classifier.NewRemote(cfg.Classifier.RemoteURL, cfg.Server.BasePath,
			cfg.Classifier.RequestTimeout(), cfg.Classifier.HealthCheckTimeout(), log), nil
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", cfg.Classifier.Mode)
	}
}

// ClassifyOptions returns the configured defaults for a classify call.
func ClassifyOptions(cfg *config.Config) classifier.Options {
	return classifier.Options{
		TopK:             cfg.Classifier.TopKOrDefault(),
		UnknownThreshold: cfg.Classifier.ThresholdOrDefault(),
	}
}
