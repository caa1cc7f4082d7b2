package app

import (
	"fmt"
	"path/filepath"

	"github.com/noni/smptweaks/internal/config"
	"github.com/noni/smptweaks/internal/data/store"
	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/progression"
)

// storeConfig translates the store.* options into the form the backends take.
func storeConfig(cfg config.Config) (store.Config, error) {
	kind, err := store.ParseKind(cfg.Store.Kind)
	if err != nil {
		return store.Config{}, err
	}
	dialect, err := store.ParseDialect(cfg.Store.Dialect)
	if err != nil {
		return store.Config{}, err
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	return store.Config{
		Kind:           kind,
		Dialect:        dialect,
		DataDir:        filepath.Clean(dataDir),
		TableName:      cfg.Store.TableName,
		Host:           cfg.Store.Host,
		Port:           cfg.Store.Port,
		Database:       cfg.Store.Database,
		Username:       cfg.Store.Username,
		Password:       cfg.Store.Password,
		PoolSize:       cfg.Store.PoolSize,
		ConnectTimeout: cfg.Store.ConnectTimeout,
		Location:       cfg.Store.Location(),
	}, nil
}

func managerConfig(cfg config.Config, metrics *observability.Metrics) progression.ManagerConfig {
	return progression.ManagerConfig{
		Curve:           progression.Curve{BaseXP: cfg.ServerLevels.BaseXP, StepXP: cfg.ServerLevels.StepXP},
		XPMultiplier:    cfg.XPMultiplier,
		LevelsDisabled:  !cfg.ServerLevels.Enabled,
		RewardCooldown:  cfg.Rewards.Cooldown,
		RewardsDisabled: !cfg.Rewards.Enabled,
		Workers:         cfg.Workers.Concurrency,
		Metrics:         metrics,
	}
}

func describeStore(cfg store.Config) string {
	if cfg.Kind == store.KindNetworked {
		return fmt.Sprintf("%s %s/%s", cfg.Dialect, cfg.Host, cfg.Database)
	}
	return filepath.Join(cfg.DataDir, store.DefaultFileName)
}
