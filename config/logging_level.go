package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.viam.com/pubtf/logging"
)

// InitLoggingSettings sets the global log level from the command line debug flag and the
// configured level, then applies the configured level to logger.
func InitLoggingSettings(logger logging.Logger, cmdLineDebugFlag bool, cfg Config) {
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		level = logging.INFO
	}

	var newLevel zapcore.Level
	if cmdLineDebugFlag || level == logging.DEBUG {
		// If anything wants debug logs, set the level to `Debug`.
		newLevel = zap.DebugLevel
		level = logging.DEBUG
	} else {
		newLevel = zap.InfoLevel
	}
	logging.GlobalLogLevel.SetLevel(newLevel)
	logger.SetLevel(level)
	logger.Debugw("log level initialized", "level", level.String())
}
