// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"io"

	"github.com/cockroachdb/snapfile/internal/base"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newZapLogger returns a console logger writing to w. Info messages are
// only logged when verbose.
func newZapLogger(w io.Writer, verbose bool) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		MessageKey:     "M",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
	}
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core)
}

// zapLogger adapts a zap logger to base.Logger, which the engine and the
// snapshotter log through.
type zapLogger struct {
	s *zap.SugaredLogger
}

var _ base.Logger = zapLogger{}

func (l zapLogger) Infof(format string, args ...interface{}) {
	l.s.Infof(format, args...)
}

func (l zapLogger) Errorf(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}

func (l zapLogger) Fatalf(format string, args ...interface{}) {
	l.s.Fatalf(format, args...)
}
