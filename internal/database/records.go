package database

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sshcollectorpro/switchdoc/internal/model"
)

// ErrNotInitialized 数据库未初始化
var ErrNotInitialized = errors.New("database not initialized")

const (
	retryAttempts = 5
	retrySleep    = 50 * time.Millisecond
)

// CreateRun 写入一条遍历记录
func CreateRun(run *model.CrawlRun) error {
	if db == nil {
		return ErrNotInitialized
	}
	return WithRetry(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	}, retryAttempts, retrySleep)
}

// SaveRun 更新遍历记录
func SaveRun(run *model.CrawlRun) error {
	if db == nil {
		return ErrNotInitialized
	}
	return WithRetry(func(tx *gorm.DB) error {
		return tx.Save(run).Error
	}, retryAttempts, retrySleep)
}

// GetRun 按 id 查询遍历记录，不存在返回 gorm.ErrRecordNotFound
func GetRun(id string) (*model.CrawlRun, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	var run model.CrawlRun
	if err := db.First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns 按开始时间倒序返回最近的遍历记录
func ListRuns(limit int) ([]model.CrawlRun, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []model.CrawlRun
	err := db.Order("start_time DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// UpsertDevice 按主机名插入或更新设备记录
func UpsertDevice(rec *model.DeviceRecord) error {
	if db == nil {
		return ErrNotInitialized
	}
	return WithRetry(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "hostname"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"address", "identity_key", "last_run_id", "last_snapshot",
				"last_report", "changed", "last_seen", "updated_at",
			}),
		}).Create(rec).Error
	}, retryAttempts, retrySleep)
}

// ListDevices 按主机名排序返回全部设备记录
func ListDevices() ([]model.DeviceRecord, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	var devices []model.DeviceRecord
	err := db.Order("hostname").Find(&devices).Error
	return devices, err
}
