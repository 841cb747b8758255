package cisco_ios

import (
	"embed"
	"path"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/addone/collect"
	"github.com/sshcollectorpro/switchdoc/internal/textfsm"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

//go:embed templates/*.textfsm
var templateFS embed.FS

// Plugin 为 cisco_ios 平台采集插件
type Plugin struct{}

func (p *Plugin) Name() string { return "cisco_ios" }

// SystemCommands 返回系统内置的 Cisco IOS 采集命令
func (p *Plugin) SystemCommands() []string {
	return []string{
		"show inventory",
		"show version",
		"show interfaces status",
		"show interfaces trunk",
		"show vlan brief",
		"show cdp neighbors detail",
		"show lldp neighbors detail",
		"show etherchannel summary",
		"show spanning-tree",
	}
}

// templateIndex 命令到模板文件，按顺序匹配
var templateIndex = []struct {
	command string
	file    string
}{
	{"show interfaces status", "show_interfaces_status.textfsm"},
	{"show vlan brief", "show_vlan_brief.textfsm"},
	{"show inventory", "show_inventory.textfsm"},
	{"show cdp neighbors detail", "show_cdp_neighbors_detail.textfsm"},
	{"show lldp neighbors detail", "show_lldp_neighbors_detail.textfsm"},
	{"show version", "show_version.textfsm"},
	{"show etherchannel summary", "show_etherchannel_summary.textfsm"},
}

var (
	templatesOnce sync.Once
	templates     map[string]*textfsm.Template
)

func loadTemplates() {
	templates = make(map[string]*textfsm.Template, len(templateIndex))
	for _, e := range templateIndex {
		data, err := templateFS.ReadFile(path.Join("templates", e.file))
		if err != nil {
			logger.Warnf("TextFSM template %s missing: %v", e.file, err)
			continue
		}
		tpl, err := textfsm.Compile(string(data))
		if err != nil {
			logger.Warnf("TextFSM template %s invalid: %v", e.file, err)
			continue
		}
		templates[e.command] = tpl
	}
}

// templateFor 返回命令对应的模板，无则 nil
func templateFor(cmd string) *textfsm.Template {
	templatesOnce.Do(loadTemplates)
	for _, e := range templateIndex {
		if strings.Contains(cmd, e.command) {
			return templates[e.command]
		}
	}
	return nil
}

// Parse 先用内置 TextFSM 模板解析，无结果时按命令回退到正则解析
func (p *Plugin) Parse(ctx collect.ParseContext, raw string) (collect.ParseOutput, error) {
	out := collect.ParseOutput{Platform: ctx.Platform, Command: ctx.Command, Raw: raw}
	cmd := strings.ToLower(strings.TrimSpace(ctx.Command))
	fields := logrus.Fields{"host": ctx.Hostname, "command": ctx.Command}

	if tpl := templateFor(cmd); tpl != nil {
		rows, err := tpl.ParseText(collect.CleanForTextFSM(raw))
		switch {
		case err != nil:
			logger.WithFields(fields).Debugf("TextFSM miss: %v", err)
		case len(rows) > 0:
			out.Headers, out.Rows, out.Parser = tpl.Header(), rows, collect.ParserTextFSM
			logger.WithFields(fields).Debugf("TextFSM parsed %d rows", len(rows))
			return out, nil
		default:
			logger.WithFields(fields).Debug("TextFSM produced no rows")
		}
	}

	if fb := fallbackFor(cmd); fb != nil {
		headers, rows := fb(collect.CleanOutput(raw))
		if len(headers) > 0 && len(rows) > 0 {
			out.Headers, out.Rows, out.Parser = headers, rows, collect.ParserFallback
			logger.WithFields(fields).Debugf("Fallback parsed %d rows", len(rows))
			return out, nil
		}
		logger.WithFields(fields).Debug("Fallback produced no table")
	}
	return out, nil
}

func init() { collect.Register("cisco_ios", &Plugin{}) }
