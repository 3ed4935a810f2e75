// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logger builds the zap loggers of the jesd commands.
package logger // import "github.com/go-lpc/jesd/internal/logger"

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes where and how log records are written.
type Config struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout, stderr or a file name

	// rotation of file outputs.
	MaxSize    int  `mapstructure:"max_size"` // megabytes
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"` // days
	Compress   bool `mapstructure:"compress"`
}

// New creates a new logger named name from the provided configuration.
// The returned closer flushes and releases the log output.
func New(name string, cfg Config) (*zap.Logger, io.Closer, error) {
	lvl, err := level(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	w, closer, err := output(cfg)
	if err != nil {
		return nil, nil, err
	}

	enc, err := encoder(cfg.Format)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	msg := zap.New(
		zapcore.NewCore(enc, w, lvl),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Named(name)

	return msg, &syncCloser{msg: msg, c: closer}, nil
}

// NewWriter creates a new logger writing console records to w.
func NewWriter(name string, w io.Writer, lvl zapcore.Level) *zap.Logger {
	enc, _ := encoder("console")
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl)).Named(name)
}

func level(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	err := lvl.UnmarshalText([]byte(name))
	if err != nil {
		return lvl, fmt.Errorf("logger: invalid log level %q: %w", name, err)
	}
	return lvl, nil
}

func encoder(format string) (zapcore.Encoder, error) {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder

	switch format {
	case "", "json":
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("logger: invalid log format %q", format)
	}
}

func output(cfg Config) (zapcore.WriteSyncer, io.Closer, error) {
	switch cfg.Output {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), nopCloser{}, nil
	case "stdout":
		return zapcore.Lock(os.Stdout), nopCloser{}, nil
	}

	err := os.MkdirAll(filepath.Dir(cfg.Output), 0755)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: could not create log directory: %w", err)
	}

	f := &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	return zapcore.AddSync(f), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type syncCloser struct {
	msg *zap.Logger
	c   io.Closer
}

func (sc *syncCloser) Close() error {
	// syncing stdout/stderr may fail on terminals.
	_ = sc.msg.Sync()
	return sc.c.Close()
}
