package raft

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// LevelTrace sits below slog's debug level and carries raft's trace output.
const LevelTrace = slog.LevelDebug - 4

var hclogLevels = []struct {
	hc hclog.Level
	sl slog.Level
}{
	{hclog.Trace, LevelTrace},
	{hclog.Debug, slog.LevelDebug},
	{hclog.Info, slog.LevelInfo},
	{hclog.Warn, slog.LevelWarn},
	{hclog.Error, slog.LevelError},
}

func toSlogLevel(level hclog.Level) slog.Level {
	for _, l := range hclogLevels {
		if l.hc == level {
			return l.sl
		}
	}
	return slog.LevelInfo
}

// NewHCLogger exposes a slog logger through the hclog interface that
// hashicorp/raft expects. Raft subsystems show up under the "subsystem" key.
func NewHCLogger(logger *slog.Logger) hclog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &hclogBridge{logger: logger}
}

type hclogBridge struct {
	logger  *slog.Logger
	name    string
	implied []interface{}
}

func (b *hclogBridge) emit(level hclog.Level, msg string, args []interface{}) {
	if level == hclog.Off {
		return
	}
	sl := toSlogLevel(level)
	ctx := context.Background()
	if !b.logger.Enabled(ctx, sl) {
		return
	}
	b.logger.Log(ctx, sl, msg, args...)
}

func (b *hclogBridge) Log(level hclog.Level, msg string, args ...interface{}) {
	b.emit(level, msg, args)
}

func (b *hclogBridge) Trace(msg string, args ...interface{}) { b.emit(hclog.Trace, msg, args) }
func (b *hclogBridge) Debug(msg string, args ...interface{}) { b.emit(hclog.Debug, msg, args) }
func (b *hclogBridge) Info(msg string, args ...interface{})  { b.emit(hclog.Info, msg, args) }
func (b *hclogBridge) Warn(msg string, args ...interface{})  { b.emit(hclog.Warn, msg, args) }
func (b *hclogBridge) Error(msg string, args ...interface{}) { b.emit(hclog.Error, msg, args) }

func (b *hclogBridge) enabled(level hclog.Level) bool {
	return b.logger.Enabled(context.Background(), toSlogLevel(level))
}

func (b *hclogBridge) IsTrace() bool { return b.enabled(hclog.Trace) }
func (b *hclogBridge) IsDebug() bool { return b.enabled(hclog.Debug) }
func (b *hclogBridge) IsInfo() bool  { return b.enabled(hclog.Info) }
func (b *hclogBridge) IsWarn() bool  { return b.enabled(hclog.Warn) }
func (b *hclogBridge) IsError() bool { return b.enabled(hclog.Error) }

// GetLevel reports the lowest level the slog handler lets through.
func (b *hclogBridge) GetLevel() hclog.Level {
	for _, l := range hclogLevels {
		if b.enabled(l.hc) {
			return l.hc
		}
	}
	return hclog.Off
}

// SetLevel is ignored; the slog handler decides.
func (b *hclogBridge) SetLevel(hclog.Level) {}

func (b *hclogBridge) ImpliedArgs() []interface{} {
	return b.implied
}

func (b *hclogBridge) With(args ...interface{}) hclog.Logger {
	implied := make([]interface{}, 0, len(b.implied)+len(args))
	implied = append(append(implied, b.implied...), args...)
	return &hclogBridge{logger: b.logger.With(args...), name: b.name, implied: implied}
}

func (b *hclogBridge) Name() string {
	return b.name
}

func (b *hclogBridge) Named(name string) hclog.Logger {
	if b.name != "" {
		name = b.name + "." + name
	}
	return b.ResetNamed(name)
}

func (b *hclogBridge) ResetNamed(name string) hclog.Logger {
	return &hclogBridge{logger: b.logger.With("subsystem", name), name: name, implied: b.implied}
}

func (b *hclogBridge) StandardLogger(*hclog.StandardLoggerOptions) *log.Logger {
	return slog.NewLogLogger(b.logger.Handler(), slog.LevelInfo)
}

func (b *hclogBridge) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return b.StandardLogger(opts).Writer()
}
