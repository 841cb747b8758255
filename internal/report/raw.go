package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sshcollectorpro/switchdoc/internal/model"
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9_]+`)

// Slug 命令名转文件名片段
func Slug(cmd string) string {
	s := strings.ToLower(strings.TrimSpace(cmd))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "-")
	s = slugInvalid.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown_cmd"
	}
	return s
}

// RawWriter 每条命令写一个 <host>_<slug>.txt，内容为带头部注释的原始回显
type RawWriter struct {
	// Dir 非空时替代调用方给出的目录
	Dir string
	// TimestampSubdir 按时间戳建子目录
	TimestampSubdir bool
}

// WriteRaw 写入原始回显，返回输出目录；baseDir 已以主机名结尾时不再追加主机目录
func (w *RawWriter) WriteRaw(hostname, timestamp string, items []model.CommandResult, baseDir string) (string, error) {
	host := hostname
	if host == "" {
		host = "unknown"
	}
	if w.Dir != "" {
		baseDir = w.Dir
	}
	outDir := baseDir
	if filepath.Base(filepath.Clean(baseDir)) != host {
		outDir = filepath.Join(baseDir, host)
	}
	if w.TimestampSubdir && timestamp != "" {
		outDir = filepath.Join(outDir, strings.NewReplacer(":", "-", " ", "_").Replace(timestamp))
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create raw output dir: %w", err)
	}

	for _, it := range items {
		var b strings.Builder
		fmt.Fprintf(&b, "# Hostname: %s\n# Command: %s\n# Timestamp: %s\n# ---\n", host, it.Command, timestamp)
		b.WriteString(it.Raw)
		path := filepath.Join(outDir, host+"_"+Slug(it.Command)+".txt")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return outDir, fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
		}
	}
	return outDir, nil
}
