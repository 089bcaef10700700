package rpclog

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Level mirrors the six-value log level enumeration of the configuration
// surface: trace, debug, info, warn, error, critical. zap has no native
// trace level, so Trace maps onto Debug with a "trace" marker field.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	default:
		return "info"
	}
}

// ParseLevel parses one of the six configuration level strings.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return LevelInfo, fmt.Errorf("rpclog: unknown log level %q", s)
	}
}

// zapLevel maps a Level onto the nearest zapcore.Level. Trace and Debug
// both map to zapcore.DebugLevel; the Trace call site adds a "trace"
// field so it can still be filtered downstream if desired. Critical maps
// to zapcore.DPanicLevel's numeric neighbor, zapcore.FatalLevel being too
// strong (it would exit the process) — critical here just means "above
// error", realized as zapcore.ErrorLevel plus a severity field.
func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError, LevelCritical:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
