package store

import (
	"time"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/noni/smptweaks/internal/pkg/logger"
)

type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.SugaredLogger.Warnf(format, args...)
}

func gormConfig(log *logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: gormLogger.New(
			gormWriter{log: log.With("component", "gorm")},
			gormLogger.Config{
				SlowThreshold:             1 * time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		TranslateError:       true,
		DisableAutomaticPing: true,
	}
}
