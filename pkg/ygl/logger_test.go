// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package ygl

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferedLogger(buf *bytes.Buffer) *zap.SugaredLogger {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

func withSingleton(t *testing.T, l *zap.SugaredLogger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	var buf bytes.Buffer
	withSingleton(t, bufferedLogger(&buf))

	Debug("debug msg")
	Infof("info %s", "formatted")
	Warnw("warn kv", "key", "val")
	Error("error msg")

	out := buf.String()
	assert.Contains(t, out, "debug msg")
	assert.Contains(t, out, "info formatted")
	assert.Contains(t, out, "warn kv")
	assert.Contains(t, out, "error msg")
}

func TestGet(t *testing.T) { //nolint:paralleltest // mutates singleton
	var buf bytes.Buffer
	l := bufferedLogger(&buf)
	withSingleton(t, l)

	got := Get()
	require.NotNil(t, got)
	got.Info("get test")
	assert.Contains(t, buf.String(), "get test")
}

func TestUnstructuredLogsDefault(t *testing.T) {
	t.Setenv("YGGDRASIL_UNSTRUCTURED_LOGS", "")
	assert.True(t, UnstructuredLogs())

	t.Setenv("YGGDRASIL_UNSTRUCTURED_LOGS", "false")
	assert.False(t, UnstructuredLogs())
}
