package main

import (
	"path/filepath"
	"testing"

	"github.com/lk2023060901/consensus-backend/internal/conf"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	config := &conf.Config{Log: conf.LogConfig{
		Level:  "debug",
		Format: "console",
		Output: "file",
		File:   conf.FileLogConfig{Filename: filepath.Join(t.TempDir(), "server.log"), MaxSize: 1},
	}}

	log, err := newLogger(config)
	require.NoError(t, err)
	defer log.Sync()

	logger.InitGlobal(log)
	assert.Same(t, log, logger.L())
	assert.Equal(t, "debug", log.Config().Level)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := newLogger(&conf.Config{Log: conf.LogConfig{Level: "loud", Format: "json", Output: "console"}})
	assert.Error(t, err)
}
