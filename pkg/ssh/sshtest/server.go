// Package sshtest 提供模拟 Cisco IOS 交换机的 SSH 服务，供采集链路测试使用
package sshtest

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// Device 模拟设备
type Device struct {
	Hostname string
	Password string
	// EnableSecret 非空时登录后处于用户模式(>)，需 enable 进入特权模式(#)
	EnableSecret string
	// Outputs 命令到回显的映射，命令不区分大小写
	Outputs map[string]string
	// PageLines 大于 0 时按页输出并显示 --More--，terminal length 0 后关闭分页
	PageLines int
	Banner    string
}

// Server 单台模拟设备的 SSH 服务
type Server struct {
	device      Device
	listener    net.Listener
	hostKey     ssh.Signer
	MaxConn     int
	IdleTimeout time.Duration

	mu       sync.Mutex
	active   int
	commands []string
	wg       sync.WaitGroup
}

// NewServer 在 127.0.0.1 随机端口启动模拟设备
func NewServer(dev Device) (*Server, error) {
	if dev.Hostname == "" {
		dev.Hostname = "Switch"
	}
	signer, err := newHostKey()
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{device: dev, listener: ln, hostKey: signer}
	go s.serve()
	return s, nil
}

// newHostKey 生成内存中的 ed25519 主机密钥
func newHostKey() (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}

// Host 监听地址
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port 监听端口
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Commands 已执行的命令，按接收顺序
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Close 关闭监听并等待会话结束
func (s *Server) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// listener closed
			return
		}
		// 并发限制
		s.mu.Lock()
		if s.MaxConn > 0 && s.active >= s.MaxConn {
			s.mu.Unlock()
			_ = conn.Close()
			logger.WithField("device", s.device.Hostname).Warn("Simulated device rejected connection, max_conn exceeded")
			continue
		}
		s.active++
		s.mu.Unlock()

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
			s.mu.Lock()
			s.active--
			s.mu.Unlock()
		}(conn)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	log := logger.WithFields(logrus.Fields{"device": s.device.Hostname, "remote": nc.RemoteAddr().String()})
	check := func(pass string) (*ssh.Permissions, error) {
		if pass == s.device.Password {
			return nil, nil
		}
		return nil, fmt.Errorf("access denied")
	}
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return check(string(password))
		},
		KeyboardInteractiveCallback: func(md ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(md.User(), "Authentication", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 0 {
				return nil, fmt.Errorf("access denied")
			}
			return check(answers[0])
		},
	}
	cfg.AddHostKey(s.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		log.Debugf("Simulated device handshake failed: %v", err)
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	var sessions sync.WaitGroup
	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			log.Debugf("Simulated device channel accept failed: %v", err)
			continue
		}
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			s.handleSession(channel, requests)
		}()
	}
	sessions.Wait()
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			s.runShell(channel)
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// shell 单个交互会话的状态
type shell struct {
	dev        Device
	rw         io.ReadWriter
	reader     *bufio.Reader
	privileged bool
	paging     bool
	skipLF     bool
}

func (s *Server) runShell(channel ssh.Channel) {
	sh := &shell{
		dev:        s.device,
		rw:         channel,
		reader:     bufio.NewReader(channel),
		privileged: s.device.EnableSecret == "",
		paging:     s.device.PageLines > 0,
	}
	if sh.dev.Banner != "" {
		sh.write(ensureCRLF(sh.dev.Banner))
	}
	sh.prompt()

	for {
		line, err := sh.readLine(s.IdleTimeout, channel)
		if err != nil {
			return
		}
		// 回显输入
		sh.write(line + "\r\n")
		cmd := strings.TrimSpace(line)
		if cmd == "" {
			sh.prompt()
			continue
		}
		s.mu.Lock()
		s.commands = append(s.commands, cmd)
		s.mu.Unlock()

		switch lower := strings.ToLower(cmd); {
		case lower == "exit" || lower == "quit" || lower == "logout":
			return
		case lower == "enable":
			sh.enable()
		case lower == "terminal length 0":
			sh.paging = false
		case strings.HasPrefix(lower, "terminal "):
		default:
			out, ok := sh.lookup(cmd)
			if !ok {
				out = "                ^\n% Invalid input detected at '^' marker.\n"
			}
			if !sh.page(ensureCRLF(out)) {
				return
			}
		}
		sh.prompt()
	}
}

func (sh *shell) write(s string) {
	_, _ = sh.rw.Write([]byte(s))
}

// prompt 与真实设备一致，提示符前换行、后不换行
func (sh *shell) prompt() {
	suffix := ">"
	if sh.privileged {
		suffix = "#"
	}
	sh.write("\r\n" + sh.dev.Hostname + suffix)
}

// readLine 读取一行输入，兼容 CR、LF 与 CRLF 结尾
func (sh *shell) readLine(idle time.Duration, channel ssh.Channel) (string, error) {
	var timer *time.Timer
	if idle > 0 {
		timer = time.AfterFunc(idle, func() {
			sh.write("\r\nSession closed due to idle timeout.\r\n")
			_ = channel.Close()
		})
		defer timer.Stop()
	}
	var b strings.Builder
	for {
		r, _, err := sh.reader.ReadRune()
		if err != nil {
			return "", err
		}
		switch r {
		case '\n':
			if sh.skipLF {
				sh.skipLF = false
				continue
			}
			return b.String(), nil
		case '\r':
			sh.skipLF = true
			return b.String(), nil
		default:
			sh.skipLF = false
			b.WriteRune(r)
		}
	}
}

func (sh *shell) enable() {
	if sh.privileged {
		return
	}
	sh.write("Password: ")
	pwd, err := sh.readLine(0, nil)
	if err != nil {
		return
	}
	sh.write("\r\n")
	if pwd != sh.dev.EnableSecret {
		sh.write("% Access denied\r\n")
		return
	}
	sh.privileged = true
}

func (sh *shell) lookup(cmd string) (string, bool) {
	key := strings.Join(strings.Fields(strings.ToLower(cmd)), " ")
	for k, v := range sh.dev.Outputs {
		if strings.Join(strings.Fields(strings.ToLower(k)), " ") == key {
			return v, true
		}
	}
	return "", false
}

// page 按页输出；分页提示处空格翻页，其它按键中止输出。返回 false 表示会话结束
func (sh *shell) page(out string) bool {
	lines := strings.SplitAfter(out, "\r\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if !sh.paging || len(lines) <= sh.dev.PageLines {
		sh.write(out)
		return true
	}
	for i := 0; i < len(lines); i += sh.dev.PageLines {
		end := i + sh.dev.PageLines
		if end >= len(lines) {
			sh.write(strings.Join(lines[i:], ""))
			return true
		}
		sh.write(strings.Join(lines[i:end], ""))
		sh.write(" --More-- ")
		r, err := sh.readKey()
		if err != nil {
			return false
		}
		// 擦除分页提示
		sh.write(strings.Repeat("\b", 10) + strings.Repeat(" ", 10) + strings.Repeat("\b", 10))
		if r != ' ' {
			return true
		}
	}
	return true
}

// readKey 读取单个按键，跳过上一行 CRLF 残留的 LF
func (sh *shell) readKey() (rune, error) {
	for {
		r, _, err := sh.reader.ReadRune()
		if err != nil {
			return 0, err
		}
		if r == '\n' && sh.skipLF {
			sh.skipLF = false
			continue
		}
		sh.skipLF = false
		return r, nil
	}
}

func ensureCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}
