// Package xlog is a small tagged logger over the standard library's log
// package, matching the bracketed "[tag] message" style used throughout the
// teacher codebase's own log.Printf calls, with level filtering the way the
// Rust original's env_logger is configured from a loglevel string.
package xlog

import (
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	std   = log.New(os.Stderr, "", log.LstdFlags)
	level atomic.Int32
)

func init() {
	level.Store(int32(LevelInfo))
}

// SetLevel parses a loglevel string ("error","warn","info","debug") the way
// ClientConfig/ServerConfig carry it, defaulting to Info on anything else.
func SetLevel(s string) {
	switch strings.ToLower(s) {
	case "error":
		level.Store(int32(LevelError))
	case "warn", "warning":
		level.Store(int32(LevelWarn))
	case "debug", "trace":
		level.Store(int32(LevelDebug))
	default:
		level.Store(int32(LevelInfo))
	}
}

func enabled(l Level) bool { return int32(l) <= level.Load() }

func Errorf(tag, format string, args ...any) {
	logAt(LevelError, tag, format, args...)
}

func Warnf(tag, format string, args ...any) {
	logAt(LevelWarn, tag, format, args...)
}

func Infof(tag, format string, args ...any) {
	logAt(LevelInfo, tag, format, args...)
}

func Debugf(tag, format string, args ...any) {
	logAt(LevelDebug, tag, format, args...)
}

func logAt(l Level, tag, format string, args ...any) {
	if !enabled(l) {
		return
	}
	std.Printf("["+tag+"] "+format, args...)
}

// NewConnID returns a short correlation ID to thread through a single
// connection's or circuit's log lines, so concurrent handlers' output can be
// told apart without a custom structured logger.
func NewConnID() string {
	return uuid.NewString()[:8]
}
