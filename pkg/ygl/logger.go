// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package ygl is the coordination layer's ambient structured logger. It
// mirrors the singleton-plus-level-functions shape of a typical logging
// shim: a process-wide logger held behind an atomic pointer, swappable for
// tests, with package-level Debug/Info/Warn/Error helpers.
package ygl

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	singleton.Store(newDefault())
}

func newDefault() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a bare logger rather than leaving the singleton nil.
		l = zap.NewNop()
		l.Sugar().Errorw("failed to build production logger, falling back to noop", "error", err)
	}
	return l.Sugar()
}

// Get returns the current singleton logger.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

// SetLogger replaces the singleton logger. Intended for tests and for
// process startup configuration.
func SetLogger(l *zap.SugaredLogger) {
	singleton.Store(l)
}

// UnstructuredLogs reports whether human-readable (as opposed to JSON)
// logging is requested via the YGGDRASIL_UNSTRUCTURED_LOGS environment
// variable. Default is true, matching local/interactive use.
func UnstructuredLogs() bool {
	v := os.Getenv("YGGDRASIL_UNSTRUCTURED_LOGS")
	switch v {
	case "false":
		return false
	default:
		return true
	}
}

func Debug(args ...any)                  { Get().Debug(args...) }
func Debugf(template string, args ...any) { Get().Debugf(template, args...) }
func Debugw(msg string, kv ...any)       { Get().Debugw(msg, kv...) }
func Info(args ...any)                    { Get().Info(args...) }
func Infof(template string, args ...any)  { Get().Infof(template, args...) }
func Infow(msg string, kv ...any)        { Get().Infow(msg, kv...) }
func Warn(args ...any)                    { Get().Warn(args...) }
func Warnf(template string, args ...any)  { Get().Warnf(template, args...) }
func Warnw(msg string, kv ...any)        { Get().Warnw(msg, kv...) }
func Error(args ...any)                   { Get().Error(args...) }
func Errorf(template string, args ...any) { Get().Errorf(template, args...) }
func Errorw(msg string, kv ...any)       { Get().Errorw(msg, kv...) }
