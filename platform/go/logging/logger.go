package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger: JSON on stdout with Cloud Logging
// severity names. component tags every entry with the emitting binary and
// level sets the minimum severity (empty defaults to info).
func NewLogger(component, level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, err
		}
	}

	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "severity",
		MessageKey:     "message",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    severityEncoder,
	})

	logger := zap.New(
		zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl),
		zap.AddCaller(),
	)
	if component != "" {
		logger = logger.With(zap.String("component", component))
	}
	return logger, nil
}

var severityNames = map[zapcore.Level]string{
	zapcore.DebugLevel:  "DEBUG",
	zapcore.InfoLevel:   "INFO",
	zapcore.WarnLevel:   "WARNING",
	zapcore.ErrorLevel:  "ERROR",
	zapcore.DPanicLevel: "ALERT",
	zapcore.PanicLevel:  "ALERT",
	zapcore.FatalLevel:  "CRITICAL",
}

// severityEncoder writes Cloud Logging severity names so levels survive
// ingestion unchanged.
func severityEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if name, ok := severityNames[l]; ok {
		enc.AppendString(name)
		return
	}
	enc.AppendString(strings.ToUpper(l.String()))
}
