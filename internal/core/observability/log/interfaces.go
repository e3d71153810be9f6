package log

import (
	"fmt"
	"strings"
)

// Log is the structured logger every component receives. Components derive
// their own logger with With and tag it with a "component" field.
type Log interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Log

	SetLevel(level Level)
	GetLevel() Level
}

type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

// ParseLevel maps a configuration string onto a Level. The empty string is info.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i), nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// Field is a typed key/value pair. Type selects how Value is encoded.
type Field struct {
	Key   string
	Type  FieldType
	Value any
}

type FieldType uint8

const (
	UnknownType FieldType = iota
	BoolType
	Float32Type
	IntType
	Int64Type
	StringType
	Uint64Type
	ErrorType
	StringerType
)

func Bool(key string, val bool) Field       { return Field{Key: key, Type: BoolType, Value: val} }
func Float32(key string, val float32) Field { return Field{Key: key, Type: Float32Type, Value: val} }
func Int(key string, val int) Field         { return Field{Key: key, Type: IntType, Value: val} }
func Int64(key string, val int64) Field     { return Field{Key: key, Type: Int64Type, Value: val} }
func String(key string, val string) Field   { return Field{Key: key, Type: StringType, Value: val} }
func Uint64(key string, val uint64) Field   { return Field{Key: key, Type: Uint64Type, Value: val} }

// Error is keyed "error". A nil error is dropped from the entry.
func Error(err error) Field { return Field{Key: "error", Type: ErrorType, Value: err} }

// Stringer renders val lazily, only when the entry is actually written.
func Stringer(key string, val fmt.Stringer) Field {
	return Field{Key: key, Type: StringerType, Value: val}
}
