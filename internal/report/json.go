package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sshcollectorpro/switchdoc/internal/snapshot"
)

// JSONRenderer 将报告写为 <workdir>/<host>_report.json
type JSONRenderer struct{}

// Render 原子写入 JSON 报告并返回文件路径
func (JSONRenderer) Render(ctx context.Context, in Input) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := in.WorkDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	host := in.Hostname
	if host == "" {
		host = "unknown"
	}
	dst := filepath.Join(dir, host+"_report.json")
	if err := snapshot.WriteJSONAtomic(dir, "report_*.json", dst, Build(in)); err != nil {
		return "", err
	}
	return dst, nil
}
