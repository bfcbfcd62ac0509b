package cli

import (
	"fmt"

	"github.com/nanda/kirana/internal/config"
	"github.com/nanda/kirana/internal/logger"
)

// loadEnvironment loads configuration and builds the process logger,
// honoring the global flags.
func loadEnvironment() (*config.Config, *logger.Logger, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, lg, nil
}
