package model

import (
	"time"
)

// CrawlRun 一次拓扑遍历的执行记录
type CrawlRun struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Seed      string    `json:"seed" gorm:"type:varchar(64);not null"`
	MaxDepth  int       `json:"max_depth" gorm:"not null;default:0"`
	Trigger   string    `json:"trigger" gorm:"type:varchar(16);not null"`
	Status    string    `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	Reported  int       `json:"reported" gorm:"not null;default:0"`
	Failed    int       `json:"failed" gorm:"not null;default:0"`
	Reports   string    `json:"reports" gorm:"type:text"` // JSON 数组 [{hostname, location}]
	ErrorMsg  string    `json:"error_msg" gorm:"type:text"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  int64     `json:"duration"` // 执行时长，毫秒
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (CrawlRun) TableName() string {
	return "crawl_runs"
}

// CrawlRun 状态枚举
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// CrawlRun 触发来源
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// DeviceRecord 已文档化设备的最近状态
type DeviceRecord struct {
	Hostname     string    `json:"hostname" gorm:"primaryKey;type:varchar(128)"`
	Address      string    `json:"address" gorm:"type:varchar(64);not null"`
	IdentityKey  string    `json:"identity_key" gorm:"type:varchar(128);index"`
	LastRunID    string    `json:"last_run_id" gorm:"type:varchar(64)"`
	LastSnapshot string    `json:"last_snapshot" gorm:"type:varchar(512)"`
	LastReport   string    `json:"last_report" gorm:"type:varchar(512)"`
	Changed      bool      `json:"changed"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (DeviceRecord) TableName() string {
	return "device_records"
}
