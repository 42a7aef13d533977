// Package logger is a thin wrapper over go.uber.org/zap that threads the
// orchestration engine's recurring structured fields (agent id, task id,
// role, wave) through every component. Stages, providers, and tools share
// one *Logger and derive scoped children instead of formatting ids into
// message strings.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig selects level, format, and destination.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console/text, or "" for auto
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or a file path
}

// Logger is a leveled, structured logger scoped to a set of fields.
type Logger struct {
	zap *zap.Logger
}

var (
	defaultMu sync.RWMutex
	defaultL  *Logger
)

// Default returns the process-wide logger, creating an info-level one with
// auto-detected format on first use.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultL
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultL == nil {
		l, err := NewLogger(LoggingConfig{Level: "info"})
		if err != nil {
			// Never fail the caller over logging setup.
			z, _ := zap.NewProduction()
			l = &Logger{zap: z}
		}
		defaultL = l
	}
	return defaultL
}

// SetDefault replaces the process-wide logger, typically right after the
// CLI shell has loaded its config.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultL = l
	defaultMu.Unlock()
}

// NewLogger builds a Logger from cfg. An unparseable level falls back to
// info; an empty format is auto-detected from the environment.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	sink, err := openSink(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(buildEncoder(cfg.Format), sink, level)
	return &Logger{zap: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))}, nil
}

func buildEncoder(format string) zapcore.Encoder {
	if format == "" {
		format = autoFormat()
	}

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "console", "text":
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	default:
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
}

// autoFormat picks console output on developer machines and JSON anywhere
// that looks like a deployment. ROUTA_LOG_FORMAT wins outright when set.
func autoFormat() string {
	if f := os.Getenv("ROUTA_LOG_FORMAT"); f != "" {
		return f
	}
	if env := os.Getenv("ROUTA_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	return "console"
}

func openSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "", "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(f), nil
	}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// WithFields derives a child logger carrying extra fields.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// WithError attaches err to every entry of the derived logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(zap.Error(err))
}

// WithAgentID scopes the logger to one agent's turns.
func (l *Logger) WithAgentID(agentID string) *Logger {
	return l.WithFields(zap.String("agent_id", agentID))
}

// WithTaskID scopes the logger to one task's execution.
func (l *Logger) WithTaskID(taskID string) *Logger {
	return l.WithFields(zap.String("task_id", taskID))
}

// WithWorkspace scopes the logger to one workspace's run.
func (l *Logger) WithWorkspace(workspaceID string) *Logger {
	return l.WithFields(zap.String("workspace_id", workspaceID))
}

// WithRole tags entries with the acting role (ROUTA, CRAFTER, GATE).
func (l *Logger) WithRole(role string) *Logger {
	return l.WithFields(zap.String("role", role))
}

// WithWave tags entries with the pipeline wave number.
func (l *Logger) WithWave(wave int) *Logger {
	return l.WithFields(zap.Int("wave", wave))
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }
