// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging builds the zap logger shared by every pipeline stage.
package logging

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger flavour.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Development switches to a colored console encoder.
	Development bool
}

// New returns a production JSON logger, or a development console logger
// when opts.Development is set.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if opts.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", opts.Level, err)
		}
	}
	config.Level = zap.NewAtomicLevelAt(level)

	return config.Build()
}

// OrNop returns log, or a no-op logger when log is nil.
func OrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// badgerAdapter routes badger's printf-style logs through zap.
type badgerAdapter struct {
	log *zap.SugaredLogger
}

var _ badger.Logger = (*badgerAdapter)(nil)

// Badger adapts log for badger.Options.Logger. Badger is chatty at info,
// so its info lines are demoted to debug.
func Badger(log *zap.Logger) badger.Logger {
	return &badgerAdapter{log: OrNop(log).Named("badger").Sugar()}
}

func (b *badgerAdapter) Errorf(msg string, items ...any) {
	b.log.Errorf(strings.TrimSpace(msg), items...)
}

func (b *badgerAdapter) Warningf(msg string, items ...any) {
	b.log.Warnf(strings.TrimSpace(msg), items...)
}

func (b *badgerAdapter) Infof(msg string, items ...any) {
	b.log.Debugf(strings.TrimSpace(msg), items...)
}

func (b *badgerAdapter) Debugf(msg string, items ...any) {
	b.log.Debugf(strings.TrimSpace(msg), items...)
}
