package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noni/smptweaks/internal/config"
	"github.com/noni/smptweaks/internal/pkg/logger"
)

func configPath(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil || path == "" {
		return config.DefaultFileName
	}
	return path
}

// loadRuntime reads the config file named by --config and builds the logger
// its log_mode asks for.
func loadRuntime(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
