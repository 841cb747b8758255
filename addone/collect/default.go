package collect

import (
	"regexp"
	"strings"
)

// 解析来源
const (
	ParserTextFSM  = "textfsm"
	ParserFallback = "fallback"
)

// ParseContext 解析上下文
type ParseContext struct {
	Platform string
	Command  string
	Hostname string
}

// ParseOutput 解析输出；Headers 为空表示仅保留原始回显
type ParseOutput struct {
	Platform string
	Command  string
	Raw      string
	Headers  []string
	Rows     [][]string
	// Parser 产出表格的解析器（textfsm/fallback），未解析时为空
	Parser string
}

// Parsed 是否得到了非空表格
func (o ParseOutput) Parsed() bool {
	return len(o.Headers) > 0 && len(o.Rows) > 0
}

// CollectPlugin 采集插件接口
type CollectPlugin interface {
	Name() string
	// SystemCommands 返回该平台系统内置采集命令
	SystemCommands() []string
	// Parse 将原始命令输出解析为表格
	Parse(ctx ParseContext, raw string) (ParseOutput, error)
}

// DefaultPlugin 系统默认采集插件
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

// SystemCommands 默认平台不提供内置命令
func (p *DefaultPlugin) SystemCommands() []string { return []string{} }

func (p *DefaultPlugin) Parse(ctx ParseContext, raw string) (ParseOutput, error) {
	// 默认不解析，直接返回原始数据包裹
	return ParseOutput{
		Platform: ctx.Platform,
		Command:  ctx.Command,
		Raw:      raw,
	}, nil
}

var (
	promptOnlyLine = regexp.MustCompile(`(?m)^\S+[>#]\s*$`)
	commandEcho    = regexp.MustCompile(`(?i)^\s*show\s+\S.*$`)
	ansiEscape     = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
)

// CleanOutput 去掉 ANSI 控制符并统一换行
func CleanOutput(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return ansiEscape.ReplaceAllString(s, "")
}

// CleanForTextFSM 去掉仅含提示符的行与首行命令回显，并裁剪首尾空行
func CleanForTextFSM(raw string) string {
	if raw == "" {
		return ""
	}
	s := promptOnlyLine.ReplaceAllString(CleanOutput(raw), "")
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && commandEcho.MatchString(lines[0]) {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
