package cisco_ios

import "github.com/sshcollectorpro/switchdoc/addone/interact"

// Plugin 为 cisco_ios 平台交互插件
type Plugin struct{}

func (p *Plugin) Name() string { return "cisco_ios" }

func (p *Plugin) Defaults() interact.InteractDefaults {
	return interact.InteractDefaults{
		Timeout:           60,
		Retries:           2,
		CommandIntervalMS: 100,
		PromptSuffixes:    []string{">", "#"},
		ExitCommands:      []string{"exit"},
		AutoInteractions: []interact.AutoInteraction{
			{ExpectOutput: "--More--", AutoSend: " ", Repeat: true, NoNewline: true},
		},
	}
}

// TransformCommands 按需插入 enable，并关闭分页、放宽行宽
// metadata["enable"] 为 true 时进入特权模式，默认不进入
func (p *Plugin) TransformCommands(in interact.CommandTransformInput) interact.CommandTransformOutput {
	prelude := make([]string, 0, 3)
	if v, ok := in.Metadata["enable"].(bool); ok && v {
		prelude = append(prelude, "enable")
	}
	prelude = append(prelude, "terminal width 511", "terminal length 0")
	return interact.CommandTransformOutput{
		Prelude:  prelude,
		Commands: append([]string{}, in.Commands...),
	}
}

func init() {
	// 注册到交互插件中心
	interact.Register("cisco_ios", &Plugin{})
}
