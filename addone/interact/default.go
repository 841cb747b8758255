package interact

// InteractDefaults 定义交互层的默认运行参数
type InteractDefaults struct {
	Timeout           int // 秒，单条命令
	Retries           int // 连接重试次数
	CommandIntervalMS int
	PromptSuffixes    []string
	ExitCommands      []string
	AutoInteractions  []AutoInteraction
}

// AutoInteraction 输出命中 ExpectOutput 时自动发送 AutoSend
type AutoInteraction struct {
	ExpectOutput string
	AutoSend     string
	Repeat       bool // 分页提示等每次出现都响应
	NoNewline    bool
}

// CommandTransformInput 输入命令与元数据
type CommandTransformInput struct {
	Commands []string
	Metadata map[string]interface{}
}

// CommandTransformOutput 输出转换后的命令
// Prelude 为会话准备命令（特权、关闭分页），其输出不作为采集结果
type CommandTransformOutput struct {
	Prelude  []string
	Commands []string
}

// All 返回完整执行序列
func (o CommandTransformOutput) All() []string {
	out := make([]string, 0, len(o.Prelude)+len(o.Commands))
	out = append(out, o.Prelude...)
	return append(out, o.Commands...)
}

// InteractPlugin 交互插件接口
type InteractPlugin interface {
	// Name 插件名称（如：default、cisco_ios）
	Name() string
	// Defaults 返回插件的默认运行参数
	Defaults() InteractDefaults
	// TransformCommands 根据平台特性转换命令序列（如进入特权模式）
	TransformCommands(in CommandTransformInput) CommandTransformOutput
}

// DefaultPlugin 系统默认交互插件
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

func (p *DefaultPlugin) Defaults() InteractDefaults {
	return InteractDefaults{
		Timeout:        30,
		Retries:        1,
		PromptSuffixes: []string{">", "#", "$"},
		ExitCommands:   []string{"exit"},
	}
}

func (p *DefaultPlugin) TransformCommands(in CommandTransformInput) CommandTransformOutput {
	// 默认不做任何转换
	return CommandTransformOutput{Commands: append([]string{}, in.Commands...)}
}
