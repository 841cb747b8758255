package collector

import (
	"errors"

	"github.com/sshcollectorpro/switchdoc/internal/model"
)

var (
	// ErrConnection 设备不可达或会话建立失败
	ErrConnection = errors.New("connection failed")
	// ErrAuthentication 认证被拒绝
	ErrAuthentication = errors.New("authentication failed")
)

// Credentials 登录凭据
type Credentials struct {
	Username       string `json:"username"`
	Password       string `json:"-"`
	EnablePassword string `json:"-"`
	KeyFile        string `json:"key_file,omitempty"`
	KeyPassphrase  string `json:"-"`
	Port           int    `json:"port"`
}

// Result 单台设备的采集结果
type Result struct {
	Hostname  string
	Timestamp string
	Items     []model.CommandResult
	// WorkDir 设备输出目录 <output>/<hostname>
	WorkDir string
}

// DefaultCommands 默认采集命令
var DefaultCommands = []string{
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
