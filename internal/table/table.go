// Package table 提供表头别名匹配与行到字段映射的工具
package table

import (
	"strings"

	"github.com/sshcollectorpro/switchdoc/internal/model"
)

// Aliases 字段的候选列名：先精确匹配 Exact，再做子串匹配 Contains
type Aliases struct {
	Exact    []string
	Contains []string
}

// NormalizeHeader 忽略大小写、空格与下划线后的表头
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	return h
}

// NormalizeKey 字段名小写，空格与连字符折叠为下划线
func NormalizeKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

// Index 按别名顺序查找列下标，找不到返回 -1
func (a Aliases) Index(headers []string) int {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = NormalizeHeader(h)
	}
	for _, cand := range a.Exact {
		c := NormalizeHeader(cand)
		for i, h := range norm {
			if h == c {
				return i
			}
		}
	}
	for _, cand := range a.Contains {
		c := NormalizeHeader(cand)
		if c == "" {
			continue
		}
		for i, h := range norm {
			if strings.Contains(h, c) {
				return i
			}
		}
	}
	return -1
}

// Fields 行转换为 NormalizeKey(header) -> 值 的映射
func Fields(headers []string, row []string) map[string]string {
	m := make(map[string]string, len(headers))
	for i, h := range headers {
		k := NormalizeKey(h)
		if k == "" {
			continue
		}
		if _, ok := m[k]; ok {
			continue
		}
		m[k] = strings.TrimSpace(model.Cell(row, i))
	}
	return m
}

// Records 整张表转换为字段映射列表
func Records(item model.CommandResult) []map[string]string {
	if len(item.Headers) == 0 {
		return nil
	}
	out := make([]map[string]string, 0, len(item.Rows))
	for _, row := range item.Rows {
		out = append(out, Fields(item.Headers, row))
	}
	return out
}

// Pick 依次取第一个非空的键值
func Pick(fields map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(fields[k]); v != "" {
			return v
		}
	}
	return ""
}
