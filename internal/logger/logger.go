// Package logger adds level filtering on top of the standard log package.
// Messages keep the "component key=value" shape used across the codebase.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var current atomic.Int32

func init() {
	current.Store(int32(InfoLevel))
}

// ParseLevel maps a config value to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func SetLevel(level string) {
	current.Store(int32(ParseLevel(level)))
}

func Enabled(l Level) bool {
	return Level(current.Load()) <= l
}

func Debugf(format string, args ...any) {
	output(DebugLevel, "DEBUG", format, args...)
}

func Infof(format string, args ...any) {
	output(InfoLevel, "", format, args...)
}

func Warnf(format string, args ...any) {
	output(WarnLevel, "WARN", format, args...)
}

func Errorf(format string, args ...any) {
	output(ErrorLevel, "ERROR", format, args...)
}

func output(l Level, tag, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if tag != "" {
		msg = tag + ": " + msg
	}
	_ = log.Output(3, msg)
}
