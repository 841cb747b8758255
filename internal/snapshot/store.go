// Package snapshot 按设备保存带时间戳的不可变快照，写入采用临时文件加原子重命名
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// DefaultMaxKeep 每台设备默认保留的快照数量
const DefaultMaxKeep = 10

const (
	historyDir = "_history"
	tempPrefix = "snap_"
	fileSuffix = ".json"
)

// ErrNotFound 指定快照不存在
var ErrNotFound = errors.New("snapshot not found")

// ErrExists 同一设备同一时间戳的快照已存在，快照写入后不再覆盖
var ErrExists = errors.New("snapshot already exists")

// Store 快照存储，目录结构 <base>/_history/<hostname>/<timestamp>.json
type Store struct {
	baseDir string
	maxKeep int
	remove  func(name string) error
}

// NewStore 创建快照存储；maxKeep 非正数时使用 DefaultMaxKeep
func NewStore(baseDir string, maxKeep int) *Store {
	if maxKeep <= 0 {
		maxKeep = DefaultMaxKeep
	}
	return &Store{baseDir: baseDir, maxKeep: maxKeep, remove: os.Remove}
}

// BaseDir 存储根目录
func (s *Store) BaseDir() string {
	return s.baseDir
}

// MaxKeep 保留数量
func (s *Store) MaxKeep() int {
	return s.maxKeep
}

// Path 快照文件路径
func (s *Store) Path(hostname, timestamp string) string {
	return filepath.Join(s.hostDir(hostname), timestamp+fileSuffix)
}

func (s *Store) hostDir(hostname string) string {
	return filepath.Join(s.baseDir, historyDir, safeName(hostname))
}

// Save 写入快照并执行保留策略，返回最终文件路径
func (s *Store) Save(hostname, timestamp string, items []model.CommandResult, meta model.SnapshotMeta) (string, error) {
	if strings.TrimSpace(hostname) == "" || strings.TrimSpace(timestamp) == "" {
		return "", fmt.Errorf("hostname and timestamp are required")
	}
	dir := s.hostDir(hostname)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create history dir: %w", err)
	}

	snap := model.Snapshot{
		Hostname:  hostname,
		Timestamp: timestamp,
		Items:     normalizeItems(items),
		Meta:      meta,
	}
	if snap.Meta.Metrics == nil {
		snap.Meta.Metrics = map[string]float64{}
	}

	dst := s.Path(hostname, timestamp)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("%w: %s/%s", ErrExists, hostname, timestamp)
	}
	if err := WriteJSONAtomic(dir, tempPrefix+"*"+fileSuffix, dst, snap); err != nil {
		return "", err
	}

	s.prune(hostname)
	return dst, nil
}

// WriteJSONAtomic 在 dir 中写临时文件，fsync 后重命名为 dst
func WriteJSONAtomic(dir, pattern, dst string, v interface{}) error {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to encode json: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// prune 删除超出保留数量的旧快照，失败只记录日志
func (s *Store) prune(hostname string) {
	stamps, err := s.List(hostname)
	if err != nil {
		logger.WithFields(logrus.Fields{"hostname": hostname}).Warnf("Snapshot retention skipped: %v", err)
		return
	}
	if len(stamps) <= s.maxKeep {
		return
	}
	for _, ts := range stamps[:len(stamps)-s.maxKeep] {
		if err := s.remove(s.Path(hostname, ts)); err != nil {
			logger.WithFields(logrus.Fields{"hostname": hostname, "timestamp": ts}).
				Warnf("Failed to delete old snapshot: %v", err)
			continue
		}
		logger.WithFields(logrus.Fields{"hostname": hostname, "timestamp": ts}).Debug("Old snapshot deleted")
	}
}

// List 返回设备的全部快照时间戳（升序）；没有历史目录时返回空
func (s *Store) List(hostname string) ([]string, error) {
	entries, err := os.ReadDir(s.hostDir(hostname))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var stamps []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		stamps = append(stamps, strings.TrimSuffix(name, fileSuffix))
	}
	sort.Strings(stamps)
	return stamps, nil
}

// Load 读取指定快照
func (s *Store) Load(hostname, timestamp string) (*model.Snapshot, error) {
	return readSnapshot(s.Path(hostname, timestamp))
}

// LastTwo 返回最近两份快照 (prev, curr)；只有一份时 prev 为 nil，都没有时均为 nil。
// 按文件保存的历史为空时读取旧版聚合文件 <base>/<hostname>_history.json
func (s *Store) LastTwo(hostname string) (prev, curr *model.Snapshot, err error) {
	stamps, err := s.List(hostname)
	if err != nil {
		return nil, nil, err
	}
	switch len(stamps) {
	case 0:
		return s.legacyLastTwo(hostname)
	case 1:
		curr, err = s.Load(hostname, stamps[0])
		return nil, curr, err
	}
	if prev, err = s.Load(hostname, stamps[len(stamps)-2]); err != nil {
		return nil, nil, err
	}
	if curr, err = s.Load(hostname, stamps[len(stamps)-1]); err != nil {
		return nil, nil, err
	}
	return prev, curr, nil
}

func readSnapshot(path string) (*model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", filepath.Base(path), err)
	}
	return &snap, nil
}

func normalizeItems(items []model.CommandResult) []model.CommandResult {
	out := make([]model.CommandResult, len(items))
	for i, it := range items {
		if it.Headers == nil {
			it.Headers = []string{}
		}
		if it.Rows == nil {
			it.Rows = [][]string{}
		}
		out[i] = it
	}
	return out
}

// safeName 去掉主机名中的路径分隔符
func safeName(hostname string) string {
	name := strings.TrimSpace(hostname)
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "unknown"
	}
	return name
}
