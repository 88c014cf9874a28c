package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectLogsRestoresOutput(t *testing.T) {
	logger := logrus.StandardLogger()
	prevOut, prevLevel := logger.Out, logger.GetLevel()
	t.Cleanup(func() {
		logger.SetOutput(prevOut)
		logger.SetLevel(prevLevel)
	})

	var term bytes.Buffer
	logger.SetOutput(&term)
	logger.SetLevel(logrus.InfoLevel)

	path := filepath.Join(t.TempDir(), "stockflow.log")
	restore := redirectLogs(path)
	logrus.Info("while live")
	restore()
	logrus.Info("after live")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "while live")
	assert.NotContains(t, string(data), "after live")
	assert.Contains(t, term.String(), "after live")
	assert.NotContains(t, term.String(), "while live")
	assert.Same(t, &term, logger.Out)
}

func TestRedirectLogsUnwritablePath(t *testing.T) {
	logger := logrus.StandardLogger()
	prevOut := logger.Out
	t.Cleanup(func() { logger.SetOutput(prevOut) })

	var term bytes.Buffer
	logger.SetOutput(&term)

	restore := redirectLogs(filepath.Join(t.TempDir(), "missing", "stockflow.log"))
	defer restore()
	assert.Same(t, &term, logger.Out)
	assert.Contains(t, term.String(), "cannot open log file")
}
