package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Log = (*Logger)(nil)

var (
	processLogger *Logger
	processOnce   sync.Once
)

// Logger is the zap-backed Log. Loggers derived with With share one atomic
// level, so SetLevel on any of them affects the whole family.
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// New builds a JSON logger writing to stderr. The first logger created also
// becomes the process-wide logger returned by Provide.
func New(level Level) *Logger {
	logger := build(level)
	processOnce.Do(func() { processLogger = logger })
	return logger
}

func build(level Level) *Logger {
	atomicLevel := zap.NewAtomicLevelAt(toZapLevel(level))
	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "ts"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder

	// Per-tick position traffic can log at debug; sampling keeps it bounded.
	z, err := zap.Config{
		Level:            atomicLevel,
		Sampling:         &zap.SamplingConfig{Initial: 100, Thereafter: 100},
		Encoding:         "json",
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}.Build()
	if err != nil {
		panic(err)
	}
	return &Logger{zap: z, level: atomicLevel}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zap.ErrorLevel)}
}

// Provide returns the process-wide logger, creating an info-level one if
// nothing has been built yet.
func Provide() *Logger {
	processOnce.Do(func() { processLogger = build(LevelInfo) })
	return processLogger
}

func (l *Logger) Debug(msg string, fields ...Field) { l.zap.Debug(msg, toZapFields(fields)...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.zap.Info(msg, toZapFields(fields)...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.zap.Warn(msg, toZapFields(fields)...) }
func (l *Logger) Error(msg string, fields ...Field) { l.zap.Error(msg, toZapFields(fields)...) }

func (l *Logger) With(fields ...Field) Log {
	return &Logger{zap: l.zap.With(toZapFields(fields)...), level: l.level}
}

func (l *Logger) SetLevel(level Level) { l.level.SetLevel(toZapLevel(level)) }

func (l *Logger) GetLevel() Level {
	switch l.level.Level() {
	case zap.DebugLevel:
		return LevelDebug
	case zap.WarnLevel:
		return LevelWarn
	case zap.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case BoolType:
			out[i] = zap.Bool(f.Key, f.Value.(bool))
		case Float32Type:
			out[i] = zap.Float32(f.Key, f.Value.(float32))
		case IntType:
			out[i] = zap.Int(f.Key, f.Value.(int))
		case Int64Type:
			out[i] = zap.Int64(f.Key, f.Value.(int64))
		case StringType:
			out[i] = zap.String(f.Key, f.Value.(string))
		case Uint64Type:
			out[i] = zap.Uint64(f.Key, f.Value.(uint64))
		case ErrorType:
			if err, ok := f.Value.(error); ok && err != nil {
				out[i] = zap.NamedError(f.Key, err)
			} else {
				out[i] = zap.Skip()
			}
		case StringerType:
			out[i] = zap.Stringer(f.Key, f.Value.(fmt.Stringer))
		default:
			out[i] = zap.Any(f.Key, f.Value)
		}
	}
	return out
}
