package collector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/addone/collect"
	"github.com/sshcollectorpro/switchdoc/addone/interact"
	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/util"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
	"github.com/sshcollectorpro/switchdoc/pkg/ssh"
)

// SSHCollector 通过 SSH 交互会话采集设备命令输出
type SSHCollector struct {
	pool     *ssh.Pool
	platform string
	baseDir  string
	filter   config.OutputFilterConfig
	sshCfg   config.SSHConfig
	now      func() time.Time
}

// New 创建采集器；pool 由调用方负责关闭
func New(cfg *config.Config, pool *ssh.Pool) *SSHCollector {
	platform := cfg.Crawl.Platform
	if platform == "" {
		platform = "cisco_ios"
	}
	return &SSHCollector{
		pool:     pool,
		platform: platform,
		baseDir:  cfg.Snapshot.BaseDir,
		filter:   cfg.Collector.OutputFilter,
		sshCfg:   cfg.SSH,
		now:      time.Now,
	}
}

// NewPool 按配置创建 SSH 连接池
func NewPool(cfg *config.Config) *ssh.Pool {
	maxActive := cfg.SSH.MaxSessions
	if maxActive <= 0 {
		maxActive = 4
	}
	return ssh.NewPool(&ssh.PoolConfig{
		MaxIdle:     maxActive,
		MaxActive:   maxActive,
		IdleTimeout: 5 * time.Minute,
		SSHConfig: &ssh.Config{
			Timeout:        cfg.SSH.ConnectTimeout,
			KeepAlive:      cfg.SSH.KeepAliveInterval,
			CommandTimeout: cfg.SSH.CommandTimeout,
		},
	})
}

// Collect 登录设备执行命令并解析输出
func (c *SSHCollector) Collect(ctx context.Context, address string, creds Credentials, commands []string) (*Result, error) {
	if len(commands) == 0 {
		commands = collect.Get(c.platform).SystemCommands()
		if len(commands) == 0 {
			commands = DefaultCommands
		}
	}
	ip := interact.Get(c.platform)
	defaults := ip.Defaults()

	info := &ssh.ConnectionInfo{
		Host:          address,
		Port:          creds.Port,
		Username:      creds.Username,
		Password:      creds.Password,
		KeyFile:       creds.KeyFile,
		KeyPassphrase: creds.KeyPassphrase,
	}
	log := logger.WithFields(logrus.Fields{"host": address, "platform": c.platform})

	client, err := c.connect(ctx, info, defaults.Retries)
	if err != nil {
		log.WithError(err).Warn("SSH connect failed")
		return nil, classify(err)
	}

	tr := ip.TransformCommands(interact.CommandTransformInput{
		Commands: commands,
		Metadata: map[string]interface{}{"enable": creds.EnablePassword != ""},
	})
	interval := c.sshCfg.CommandIntervalMS
	if interval <= 0 {
		interval = defaults.CommandIntervalMS
	}
	opts := &ssh.InteractiveOptions{
		EnablePassword:    creds.EnablePassword,
		ExitCommands:      defaults.ExitCommands,
		CommandIntervalMS: interval,
		AutoInteractions:  toAutoInteractions(defaults.AutoInteractions),
	}

	start := time.Now()
	results, err := client.ExecuteInteractiveCommands(ctx, tr.All(), defaults.PromptSuffixes, opts)
	if err != nil {
		_ = c.pool.CloseConnection(info, client)
		log.WithError(err).Warn("Interactive session failed")
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, address, err)
	}
	hostname := HostnameFromPrompt(client.Prompt(), address)
	c.pool.ReleaseConnection(info, client)

	ts := model.FormatTimestamp(c.now())
	items := c.buildItems(hostname, commands, results, len(tr.Prelude))
	log.WithFields(logrus.Fields{
		"hostname": hostname,
		"commands": len(items),
		"elapsed":  time.Since(start).String(),
	}).Info("Device collected")

	return &Result{
		Hostname:  hostname,
		Timestamp: ts,
		Items:     items,
		WorkDir:   filepath.Join(c.baseDir, hostname),
	}, nil
}

// connect 从连接池取连接；认证失败不重试
func (c *SSHCollector) connect(ctx context.Context, info *ssh.ConnectionInfo, retries int) (*ssh.Client, error) {
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		client, err := c.pool.GetConnection(ctx, info)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if errors.Is(err, ssh.ErrAuth) || ctx.Err() != nil {
			break
		}
		logger.Debugf("SSH connect attempt %d/%d to %s failed: %v", attempt, retries, info.Host, err)
	}
	return nil, lastErr
}

// buildItems 跳过准备命令的输出，对每条采集命令做编码修正、行过滤与解析
func (c *SSHCollector) buildItems(hostname string, commands []string, results []*ssh.CommandResult, skip int) []model.CommandResult {
	plugin := collect.Get(c.platform)
	items := make([]model.CommandResult, 0, len(commands))
	for i, cmd := range commands {
		raw := ""
		if idx := skip + i; idx < len(results) && results[idx] != nil {
			r := results[idx]
			if r.Error != "" {
				logger.WithFields(logrus.Fields{"host": hostname, "command": cmd}).Warnf("Command error: %s", r.Error)
			}
			raw = ApplyLineFilter(c.filter, util.DeviceOutput(r.Output))
		}
		logger.DebugCommandOutput(hostname, cmd, raw, 5)

		parsed, err := plugin.Parse(collect.ParseContext{Platform: c.platform, Command: cmd, Hostname: hostname}, raw)
		if err != nil {
			logger.WithFields(logrus.Fields{"host": hostname, "command": cmd}).Warnf("Parse failed: %v", err)
		}
		items = append(items, model.CommandResult{
			Command: cmd,
			Raw:     raw,
			Headers: parsed.Headers,
			Rows:    parsed.Rows,
		})
	}
	return items
}

func toAutoInteractions(in []interact.AutoInteraction) []ssh.AutoInteraction {
	out := make([]ssh.AutoInteraction, 0, len(in))
	for _, ai := range in {
		out = append(out, ssh.AutoInteraction{
			ExpectOutput: ai.ExpectOutput,
			AutoSend:     ai.AutoSend,
			Repeat:       ai.Repeat,
			NoNewline:    ai.NoNewline,
		})
	}
	return out
}

// classify 将 SSH 层错误映射为 ErrAuthentication / ErrConnection
func classify(err error) error {
	if errors.Is(err, ssh.ErrAuth) {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// HostnameFromPrompt 去掉提示符中的 # 与 >，为空时使用地址
func HostnameFromPrompt(prompt, address string) string {
	h := strings.TrimSpace(strings.Trim(strings.TrimSpace(prompt), "#>"))
	if i := strings.Index(h, "("); i > 0 {
		h = h[:i]
	}
	h = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(h)
	if h == "" {
		return address
	}
	return h
}

// ApplyLineFilter 按前缀/包含规则移除行（分页残留等）
func ApplyLineFilter(f config.OutputFilterConfig, s string) string {
	if s == "" {
		return s
	}
	norm := func(x string, trim bool) string {
		if trim {
			x = strings.TrimSpace(x)
		}
		if f.CaseInsensitive {
			x = strings.ToLower(x)
		}
		return x
	}
	pref := make([]string, 0, len(f.Prefixes))
	for _, p := range f.Prefixes {
		if p = norm(p, true); p != "" {
			pref = append(pref, p)
		}
	}
	subs := make([]string, 0, len(f.Contains))
	for _, v := range f.Contains {
		if v = norm(v, true); v != "" {
			subs = append(subs, v)
		}
	}

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		cmp := norm(line, f.TrimSpace)
		if matchAny(cmp, pref, strings.HasPrefix) || matchAny(cmp, subs, strings.Contains) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func matchAny(s string, patterns []string, fn func(string, string) bool) bool {
	for _, p := range patterns {
		if fn(s, p) {
			return true
		}
	}
	return false
}
