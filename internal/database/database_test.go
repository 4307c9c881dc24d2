package database

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sdko-org/beacon-analytics/internal/config"
	"github.com/sdko-org/beacon-analytics/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSQLiteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "analytics.db")

	h, err := NewSQLiteDB(quietLogger(), path, 2)
	require.NoError(t, err)
	defer h.Close()

	m := h.Writer.Migrator()
	assert.True(t, m.HasTable(&models.Pageview{}))
	assert.True(t, m.HasTable(&models.Event{}))
	for _, idx := range []string{"idx_pv_ts", "idx_pv_visitor"} {
		assert.True(t, m.HasIndex(&models.Pageview{}, idx), idx)
	}
	for _, idx := range []string{"idx_ev_ts", "idx_ev_name"} {
		assert.True(t, m.HasIndex(&models.Event{}, idx), idx)
	}
}

func TestSQLiteReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analytics.db")

	first, err := NewSQLiteDB(quietLogger(), path, 1)
	require.NoError(t, err)
	require.NoError(t, first.Writer.Create(&models.Event{Name: "x", Data: "{}", VisitorHash: "0123456789abcdef", Path: "/"}).Error)
	require.NoError(t, first.Close())

	second, err := NewSQLiteDB(quietLogger(), path, 1)
	require.NoError(t, err)
	defer second.Close()

	var count int64
	require.NoError(t, second.Reader.Model(&models.Event{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReaderRejectsWrites(t *testing.T) {
	h, err := NewSQLiteDB(quietLogger(), filepath.Join(t.TempDir(), "analytics.db"), 1)
	require.NoError(t, err)
	defer h.Close()

	err = h.Reader.Create(&models.Event{Name: "x", Data: "{}", VisitorHash: "0123456789abcdef", Path: "/"}).Error
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(quietLogger(), &config.Config{DBDriver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
