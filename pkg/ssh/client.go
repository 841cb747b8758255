package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

var (
	// ErrDial TCP 建连失败
	ErrDial = errors.New("ssh dial failed")
	// ErrAuth 认证失败
	ErrAuth = errors.New("ssh authentication failed")
	// ErrNotConnected 连接未建立
	ErrNotConnected = errors.New("SSH connection not established")
)

// Config SSH配置
type Config struct {
	Timeout        time.Duration `yaml:"timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Client SSH客户端
type Client struct {
	config     *Config
	connection *ssh.Client
	mutex      sync.RWMutex
	// 最近一次成功连接的参数，会话创建遇到 EOF 时用于重连
	info   *ConnectionInfo
	stop   chan struct{}
	prompt string
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"-"`
	KeyFile       string `json:"key_file,omitempty"`
	KeyPassphrase string `json:"-"`
}

// Address host:port
func (i *ConnectionInfo) Address() string {
	port := i.Port
	if port <= 0 {
		port = 22
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(port))
}

// CommandResult 命令执行结果
type CommandResult struct {
	Command  string        `json:"command"`
	Output   string        `json:"output"`
	Error    string        `json:"error"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// InteractiveOptions 交互会话选项
type InteractiveOptions struct {
	EnablePassword    string
	ExitCommands      []string
	CommandIntervalMS int
	AutoInteractions  []AutoInteraction
}

// AutoInteraction 输出包含 ExpectOutput（大小写不敏感）时自动发送 AutoSend
type AutoInteraction struct {
	ExpectOutput string
	AutoSend     string
	// Repeat 每次出现都响应（分页提示），否则每条命令只响应一次
	Repeat bool
	// NoNewline 发送时不追加 CRLF
	NoNewline bool
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{Timeout: 30 * time.Second}
	}
	return &Client{config: config}
}

// legacyAlgorithms 兼容老旧网络设备的算法集合
var legacyAlgorithms = ssh.Config{
	KeyExchanges: []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group-exchange-sha1",
		"diffie-hellman-group1-sha1",
	},
	Ciphers: []string{
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-cbc",
		"aes192-cbc",
		"aes256-cbc",
		"3des-cbc",
	},
	MACs: []string{
		"hmac-sha2-256-etm@openssh.com",
		"hmac-sha2-256",
		"hmac-sha1",
		"hmac-sha1-96",
	},
}

// AuthMethods 按连接信息构造认证方式：密钥文件优先，其次密码与 keyboard-interactive
func AuthMethods(info *ConnectionInfo) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if info.KeyFile != "" {
		pem, err := os.ReadFile(info.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		var signer ssh.Signer
		if info.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(info.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if info.Password != "" {
		password := info.Password
		methods = append(methods,
			ssh.Password(password),
			// 网络设备常以 keyboard-interactive 询问密码
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no password or key file", ErrAuth)
	}
	return methods, nil
}

// Connect 连接SSH服务器
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connectLocked(ctx, info)
}

func (c *Client) connectLocked(ctx context.Context, info *ConnectionInfo) error {
	c.info = info

	auth, err := AuthMethods(info)
	if err != nil {
		return err
	}
	sshConfig := &ssh.ClientConfig{
		User:            info.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.Timeout,
		Config:          legacyAlgorithms,
		HostKeyAlgorithms: []string{
			"ssh-ed25519",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"rsa-sha2-512",
			"rsa-sha2-256",
			"ssh-rsa",
		},
	}

	address := info.Address()
	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDial, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return fmt.Errorf("%w: handshake: %v", ErrDial, err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)
	c.stop = make(chan struct{})
	go c.keepAlive(c.stop)
	return nil
}

// Prompt 首个提示符去掉后缀后的部分，通常即设备主机名
func (c *Client) Prompt() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.prompt
}

// newSessionWithRetry 创建会话（带重试）
// 部分设备登录后立即打开通道会返回 "administratively prohibited" 或 EOF，做短延迟重试
func (c *Client) newSessionWithRetry(ctx context.Context) (*ssh.Session, error) {
	backoffs := []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond, time.Second, 2 * time.Second}
	var lastErr error
	for _, d := range backoffs {
		if d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		c.mutex.Lock()
		conn := c.connection
		c.mutex.Unlock()
		if conn == nil {
			lastErr = ErrNotConnected
			continue
		}
		sess, err := conn.NewSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		if strings.Contains(strings.ToLower(err.Error()), "eof") && c.info != nil {
			c.mutex.Lock()
			c.closeLocked()
			rctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
			_ = c.connectLocked(rctx, c.info)
			cancel()
			c.mutex.Unlock()
		}
	}
	return nil, lastErr
}

// sanitize 移除 ANSI 转义序列与不可见控制符
func sanitize(s string) string {
	b := make([]byte, 0, len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if skip {
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
				skip = false
			}
			continue
		}
		if ch == 0x1b {
			skip = true
			continue
		}
		if ch < 0x20 && ch != '\t' {
			continue
		}
		b = append(b, ch)
	}
	return strings.TrimSpace(string(b))
}

// pagerMarker 分页提示不以换行结束，需要按残留片段识别
const pagerMarker = "--more--"

// pumpLines 将读到的数据按行推送；CR 去除。
// 不以换行结束的分页提示、密码提示与提示符（以 suffixes 之一结尾）作为独立行立即推送
func pumpLines(r io.Reader, ch chan<- string, done chan<- struct{}, suffixes []string) {
	if done != nil {
		defer close(done)
	}
	buf := make([]byte, 4096)
	var acc strings.Builder
	for {
		n, err := r.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			s := strings.ReplaceAll(acc.String(), "\r\n", "\n")
			s = strings.ReplaceAll(s, "\r", "")
			lines := strings.Split(s, "\n")
			acc.Reset()
			tail := lines[len(lines)-1]
			for _, line := range lines[:len(lines)-1] {
				ch <- strings.TrimSpace(line)
			}
			if flushable(tail, suffixes) {
				ch <- strings.TrimSpace(tail)
			} else {
				acc.WriteString(tail)
			}
		}
		if err != nil {
			if rest := strings.TrimSpace(acc.String()); rest != "" {
				ch <- rest
			}
			return
		}
	}
}

func flushable(tail string, suffixes []string) bool {
	clean := sanitize(tail)
	lower := strings.ToLower(clean)
	return strings.Contains(lower, pagerMarker) || strings.HasSuffix(lower, "password:") || endsWithAny(clean, suffixes)
}

func endsWithAny(s string, suffixes []string) bool {
	if s == "" {
		return false
	}
	for _, suf := range suffixes {
		if suf != "" && strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// promptMatcher 基于后缀的提示符识别；捕获首个提示符前缀后要求后续提示符包含该前缀
type promptMatcher struct {
	suffixes []string
	prefix   string
}

func (m *promptMatcher) isPrompt(line string) bool {
	trimmed := sanitize(line)
	if trimmed == "" {
		return false
	}
	for _, suf := range m.suffixes {
		if strings.HasSuffix(trimmed, suf) {
			// 允许 hostname(config)# 之类的模式变化
			if m.prefix != "" && !strings.Contains(trimmed, m.prefix) {
				continue
			}
			return true
		}
	}
	return false
}

// capture 记录提示符前缀
func (m *promptMatcher) capture(line string) {
	trimmed := sanitize(line)
	for _, suf := range m.suffixes {
		if strings.HasSuffix(trimmed, suf) {
			if p := strings.TrimSpace(strings.TrimSuffix(trimmed, suf)); p != "" {
				m.prefix = p
			}
			return
		}
	}
}

// stripPrompt 去掉行首提示符，得到可能的命令回显
func (m *promptMatcher) stripPrompt(line string) string {
	s := sanitize(line)
	last := -1
	for _, suf := range m.suffixes {
		if idx := strings.LastIndex(s, suf); idx > last {
			last = idx
		}
	}
	if last >= 0 && last+1 < len(s) {
		return strings.TrimSpace(s[last+1:])
	}
	return s
}

// ExecuteInteractiveCommands 在单一交互式会话(PTY Shell)中串行执行多条命令
// 使用提示符后缀分隔每条命令的输出 (例如: '>', '#')
func (c *Client) ExecuteInteractiveCommands(ctx context.Context, commands []string, promptSuffixes []string, opts *InteractiveOptions) ([]*CommandResult, error) {
	if opts == nil {
		opts = &InteractiveOptions{}
	}
	session, err := c.newSessionWithRetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 511, 24, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr: %w", err)
	}
	if err := session.Shell(); err != nil {
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	lineCh := make(chan string, 4096)
	doneCh := make(chan struct{})
	go pumpLines(stdout, lineCh, doneCh, promptSuffixes)
	go pumpLines(stderr, lineCh, nil, promptSuffixes)

	send := func(s string) error {
		_, err := stdin.Write([]byte(s))
		return err
	}

	pm := &promptMatcher{suffixes: promptSuffixes}
	if err := c.waitPrompt(ctx, pm, lineCh, send); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	c.prompt = pm.prefix
	c.mutex.Unlock()

	cmdTimeout := c.config.CommandTimeout
	if cmdTimeout <= 0 {
		cmdTimeout = 30 * time.Second
	}

	results := make([]*CommandResult, 0, len(commands))
	prevCmd := ""
	for _, cmd := range commands {
		if err := send(cmd + "\r\n"); err != nil {
			stdin.Close()
			return results, fmt.Errorf("failed to write command: %w", err)
		}
		res, err := c.readUntilPrompt(ctx, cmd, prevCmd, pm, lineCh, send, opts, cmdTimeout)
		if err != nil {
			stdin.Close()
			return results, err
		}
		results = append(results, res)
		prevCmd = cmd
		if opts.CommandIntervalMS > 0 {
			time.Sleep(time.Duration(opts.CommandIntervalMS) * time.Millisecond)
		}
	}

	exitSeq := []string{"exit"}
	if len(opts.ExitCommands) > 0 {
		exitSeq = opts.ExitCommands
	}
	for _, ec := range exitSeq {
		_ = send(ec + "\r\n")
		time.Sleep(150 * time.Millisecond)
	}
	stdin.Close()
	select {
	case <-doneCh:
	case <-time.After(time.Second):
	}
	return results, nil
}

// waitPrompt 等待登录横幅后的首个提示符；期间周期性发送 CRLF 诱发提示符
func (c *Client) waitPrompt(ctx context.Context, pm *promptMatcher, lineCh <-chan string, send func(string) error) error {
	_ = send("\r\n")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	deadline := time.After(12 * time.Second)
	nudges := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lineCh:
			if pm.isPrompt(line) {
				pm.capture(line)
				// 丢弃残留的提示符与横幅行
				for {
					select {
					case <-lineCh:
					default:
						return nil
					}
				}
			}
		case <-ticker.C:
			if nudges < 10 {
				_ = send("\r\n")
				nudges++
			}
		case <-deadline:
			return nil
		}
	}
}

// readUntilPrompt 收集单条命令的输出直到下一个提示符，跳过命令回显
func (c *Client) readUntilPrompt(ctx context.Context, cmd, prevCmd string, pm *promptMatcher, lineCh <-chan string,
	send func(string) error, opts *InteractiveOptions, timeout time.Duration) (*CommandResult, error) {
	start := time.Now()
	var out strings.Builder
	sawContent := false
	echoed := false
	echoRemain := strings.TrimSpace(cmd)
	cmdLower := strings.ToLower(echoRemain)
	prevLower := strings.ToLower(strings.TrimSpace(prevCmd))
	onceDone := false
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return &CommandResult{
				Command:  cmd,
				Output:   out.String(),
				Error:    "command timeout",
				ExitCode: -1,
				Duration: time.Since(start),
			}, nil
		case line := <-lineCh:
			clean := sanitize(line)
			lower := strings.ToLower(clean)

			// 上一条命令的延迟回显，例如 "hostname#terminal length 0"
			if clean != "" && prevLower != "" {
				cc := strings.ToLower(pm.stripPrompt(clean))
				if cc != "" && (cc == prevLower || strings.HasPrefix(prevLower, cc) || strings.HasPrefix(cc, prevLower)) && cc != cmdLower {
					continue
				}
			}
			if echoRemain != "" && clean != "" && !pm.isPrompt(clean) {
				candidate := pm.stripPrompt(clean)
				cl := strings.ToLower(candidate)
				switch {
				case candidate != "" && strings.HasPrefix(echoRemain, candidate):
					echoRemain = strings.TrimSpace(strings.TrimPrefix(echoRemain, candidate))
					echoed = echoRemain == ""
					continue
				case candidate != "" && strings.Contains(cl, cmdLower):
					echoRemain = ""
					echoed = true
					continue
				case candidate != "" && strings.Contains(cmdLower, cl):
					continue
				}
				echoRemain = ""
			}

			// 回显之前的提示符属于上一条命令；无输出的命令以回显后的提示符结束
			if pm.isPrompt(clean) {
				if !sawContent && !echoed {
					continue
				}
				return &CommandResult{Command: cmd, Output: out.String(), Duration: time.Since(start)}, nil
			}

			if ai, ok := matchInteraction(opts.AutoInteractions, lower, onceDone); ok {
				payload := ai.AutoSend
				if !ai.NoNewline {
					payload += "\r\n"
				}
				_ = send(payload)
				if ai.Repeat {
					continue
				}
				onceDone = true
			}

			if opts.EnablePassword != "" && strings.EqualFold(strings.TrimSpace(cmd), "enable") && strings.Contains(lower, "password") {
				_ = send(opts.EnablePassword + "\r\n")
				continue
			}

			out.WriteString(clean)
			out.WriteString("\n")
			if clean != "" {
				sawContent = true
			}
		}
	}
}

// matchInteraction 查找命中的自动交互；非 Repeat 项每条命令只命中一次
func matchInteraction(items []AutoInteraction, lower string, onceDone bool) (AutoInteraction, bool) {
	for _, ai := range items {
		if ai.ExpectOutput == "" {
			continue
		}
		if !ai.Repeat && onceDone {
			continue
		}
		if strings.Contains(lower, strings.ToLower(ai.ExpectOutput)) {
			return ai, true
		}
	}
	return AutoInteraction{}, false
}

// Close 关闭SSH连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		return err
	}
	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return false
	}
	// 发送 keepalive 请求而不创建会话，避免触发设备的会话数量限制
	_, _, err := conn.SendRequest("keepalive@openssh.com", false, nil)
	return err == nil
}

// keepAlive 保持连接活跃
func (c *Client) keepAlive(stop <-chan struct{}) {
	if c.config.KeepAlive <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.IsConnected() {
				c.mutex.Lock()
				if c.connection != nil {
					_ = c.connection.Close()
					c.connection = nil
				}
				c.mutex.Unlock()
				return
			}
		}
	}
}

// GetConnectionStats 获取连接统计信息
func (c *Client) GetConnectionStats() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return map[string]interface{}{
		"connected": c.connection != nil,
		"prompt":    c.prompt,
	}
}
