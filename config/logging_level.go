package config

import (
	"sync"

	"go.uber.org/zap/zapcore"

	"go.viam.com/augment/logging"
)

// debugSources tracks every place that can ask for debug logs. The global level is debug while
// any of them does.
var debugSources struct {
	mu       sync.Mutex
	logger   logging.Logger
	cmdLine  bool
	fromFile bool
}

// InitLoggingSettings records the command line debug flag and sets the global level from it.
func InitLoggingSettings(logger logging.Logger, cmdLineDebugFlag bool) {
	debugSources.mu.Lock()
	defer debugSources.mu.Unlock()

	debugSources.logger = logger
	debugSources.cmdLine = cmdLineDebugFlag
	applyLogLevelInLock()
	logger.Debugw("log level initialized", "level", logging.GlobalLogLevel.Level().String())
}

// UpdateFileConfigDebug is called with the debug field of every config that is read.
func UpdateFileConfigDebug(fileDebug bool) {
	debugSources.mu.Lock()
	defer debugSources.mu.Unlock()

	debugSources.fromFile = fileDebug
	if changed := applyLogLevelInLock(); changed && debugSources.logger != nil {
		debugSources.logger.Infow("new log level", "level", logging.GlobalLogLevel.Level().String())
	}
}

func applyLogLevelInLock() bool {
	level := zapcore.InfoLevel
	if debugSources.cmdLine || debugSources.fromFile {
		level = zapcore.DebugLevel
	}
	if logging.GlobalLogLevel.Level() == level {
		return false
	}
	logging.GlobalLogLevel.SetLevel(level)
	return true
}
