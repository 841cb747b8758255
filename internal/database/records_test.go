package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/model"
)

func initTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitSQLite(config.SQLiteConfig{
		Path:            filepath.Join(t.TempDir(), "data", "test.db"),
		ConnMaxLifetime: time.Hour,
	}))
	t.Cleanup(func() {
		_ = Close()
		db = nil
	})
}

func TestRuns(t *testing.T) {
	initTestDB(t)
	require.NoError(t, Health())

	now := time.Now()
	older := &model.CrawlRun{ID: "run-1", Seed: "10.0.0.1", Trigger: model.TriggerCLI, Status: model.RunStatusSuccess, StartTime: now.Add(-time.Hour)}
	newer := &model.CrawlRun{ID: "run-2", Seed: "10.0.0.1", Trigger: model.TriggerAPI, Status: model.RunStatusRunning, StartTime: now}
	require.NoError(t, CreateRun(older))
	require.NoError(t, CreateRun(newer))

	newer.Status = model.RunStatusSuccess
	newer.Reported = 3
	require.NoError(t, SaveRun(newer))

	got, err := GetRun("run-2")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, got.Status)
	assert.Equal(t, 3, got.Reported)

	runs, err := ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID, "最新的在前")

	_, err = GetRun("missing")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUpsertDevice(t *testing.T) {
	initTestDB(t)

	require.NoError(t, UpsertDevice(&model.DeviceRecord{Hostname: "sw1", Address: "10.0.0.1", LastSeen: time.Now()}))
	require.NoError(t, UpsertDevice(&model.DeviceRecord{Hostname: "sw1", Address: "10.0.0.9", Changed: true, LastSeen: time.Now()}))
	require.NoError(t, UpsertDevice(&model.DeviceRecord{Hostname: "access-1", Address: "10.0.1.1", LastSeen: time.Now()}))

	devices, err := ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "access-1", devices[0].Hostname)
	assert.Equal(t, "10.0.0.9", devices[1].Address)
	assert.True(t, devices[1].Changed)
}

func TestNotInitialized(t *testing.T) {
	_, err := ListDevices()
	assert.True(t, errors.Is(err, ErrNotInitialized))
	assert.Error(t, Health())
}

func TestIsBusyError(t *testing.T) {
	assert.True(t, IsBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsBusyError(errors.New("no such table")))
	assert.False(t, IsBusyError(nil))
}
