// Copyright 2025 James Ross
// Package obslog builds the structured logger used throughout the plugin.
// Every invocation runs as a short-lived subprocess whose stdout is
// reserved for the JSON response envelope, so all logging goes to
// stderr, framed with the host's line protocol: each line is prefixed
// with \x01<level>\x02 so the host can demultiplex plugin logs from
// plugin output without parsing JSON on the hot path.
package obslog

import (
	"bytes"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	frameStart = '\x01'
	frameEnd   = '\x02'
)

// frameWriter prefixes every write with the host's \x01<level>\x02
// control frame, so the same JSON encoder zap ships with can be reused
// unmodified.
type frameWriter struct {
	w     io.Writer
	level string
}

func (f *frameWriter) Write(p []byte) (int, error) {
	var buf bytes.Buffer
	buf.WriteByte(frameStart)
	buf.WriteString(f.level)
	buf.WriteByte(frameEnd)
	buf.Write(p)
	if _, err := f.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *frameWriter) Sync() error {
	if s, ok := f.w.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// NewLogger builds a zap.Logger at the given level, writing host-framed
// JSON lines to w (normally os.Stderr). One core per zap level is used
// so each emitted line carries the correct frame tag.
func NewLogger(level string, w io.Writer) (*zap.Logger, error) {
	minLevel := parseLevel(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	levels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	var cores []zapcore.Core
	for _, lvl := range levels {
		lvl := lvl
		if lvl < minLevel {
			continue
		}
		sync := zapcore.AddSync(&frameWriter{w: w, level: lvl.String()})
		cores = append(cores, zapcore.NewCore(enc, sync, zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l == lvl })))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Convenience typed fields, kept for call-site brevity across packages.
func String(k, v string) zap.Field      { return zap.String(k, v) }
func Int(k string, v int) zap.Field     { return zap.Int(k, v) }
func Bool(k string, v bool) zap.Field   { return zap.Bool(k, v) }
func Err(err error) zap.Field           { return zap.Error(err) }
func Any(k string, v any) zap.Field     { return zap.Any(k, v) }
