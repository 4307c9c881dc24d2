package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sdko-org/beacon-analytics/internal/config"
	"github.com/sdko-org/beacon-analytics/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ListenAddr:             "127.0.0.1:0",
		DBDriver:               "sqlite",
		SQLitePath:             filepath.Join(t.TempDir(), "analytics.db"),
		SQLiteReadConns:        1,
		AdminUser:              "admin",
		AdminPassword:          "s3cret",
		Salt:                   "pepper",
		RateLimitSweepInterval: 10 * time.Millisecond,
		LogLevel:               "info",
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int, 1)
	go func() { done <- run(ctx, cfg, quietLogger()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return")
	}

	h, err := database.NewSQLiteDB(quietLogger(), cfg.SQLitePath, 1)
	require.NoError(t, err)
	assert.NoError(t, h.Close())
}

func TestRunReportsStartupFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "oracle"
	assert.Equal(t, 1, run(context.Background(), cfg, quietLogger()))

	cfg = testConfig(t)
	cfg.ListenAddr = "127.0.0.1:-1"
	assert.Equal(t, 1, run(context.Background(), cfg, quietLogger()))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := newLogger(&config.Config{LogLevel: "chatty", LogFormat: "json"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
