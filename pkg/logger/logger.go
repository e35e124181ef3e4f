package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

func init() { // usable logger even before Init is called
	globalLogger = zap.NewNop()
}

// Init configures the global logger at the provided level. Unknown level
// strings fall back to info.
func Init(level string) error {
	cfg := zap.NewProductionConfig()

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	built, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	globalLogger = built
	return nil
}

// Logger returns the configured global logger.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return globalLogger
}

// WithModule returns a child logger annotated with the component name.
// This is the entry point the rest of the codebase uses.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Sync flushes buffered log entries.
func Sync() error {
	return Logger().Sync()
}
