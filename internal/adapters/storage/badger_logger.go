package storage

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
)

type badgerLogger struct {
	logger *slog.Logger
}

// NewBadgerLogger routes badger's printf-style logging into slog. Info and
// debug chatter is dropped.
func NewBadgerLogger(logger *slog.Logger) badger.Logger {
	return &badgerLogger{logger: logger}
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.logger.Error(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.logger.Warn(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {}
