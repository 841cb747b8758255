// Package resolve 将邻居身份解析为可连接地址并按网段白名单过滤
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/internal/neighbor"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// ErrInvalidCIDR 白名单中存在无法解析的网段
var ErrInvalidCIDR = errors.New("invalid CIDR")

// Source 地址来源
type Source string

const (
	SourceTable   Source = "table"
	SourceDNS     Source = "dns"
	SourceHostMap Source = "hostmap"
)

// Resolver 主机名解析接口，net.DefaultResolver 满足该接口
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// AllowList CIDR 白名单，空列表放行所有地址
type AllowList struct {
	prefixes []netip.Prefix
}

// NewAllowList 解析网段列表，任一网段非法即返回 ErrInvalidCIDR
func NewAllowList(cidrs []string) (*AllowList, error) {
	al := &AllowList{}
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !strings.Contains(c, "/") {
			// 单个地址按主机网段处理
			if ip, err := netip.ParseAddr(c); err == nil {
				ip = ip.Unmap()
				al.prefixes = append(al.prefixes, netip.PrefixFrom(ip, ip.BitLen()))
				continue
			}
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCIDR, c, err)
		}
		al.prefixes = append(al.prefixes, p.Masked())
	}
	return al, nil
}

// Empty 是否未配置任何网段
func (a *AllowList) Empty() bool {
	return a == nil || len(a.prefixes) == 0
}

// Allows 地址是否落在任一网段内；非空白名单不放行无法解析的地址
func (a *AllowList) Allows(address string) bool {
	if a.Empty() {
		return true
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Candidate 解析并通过过滤的邻居地址
type Candidate struct {
	Neighbor neighbor.Neighbor
	Address  string
	Source   Source
}

// Chain 地址解析链：邻接表地址 → DNS → 主机映射（始终覆盖）→ 白名单
type Chain struct {
	DNSFallback bool
	HostMap     map[string]string
	Allow       *AllowList
	Resolver    Resolver
}

// Resolve 逐个解析邻居，丢弃无地址或不在白名单内的条目
func (c *Chain) Resolve(ctx context.Context, neighbors []neighbor.Neighbor) []Candidate {
	var out []Candidate
	for _, n := range neighbors {
		addr, src := c.address(ctx, n)
		fields := logrus.Fields{"neighbor": displayName(n), "protocol": n.Protocol}
		if addr == "" {
			logger.WithFields(fields).Info("Neighbor has no management address, ignored")
			continue
		}
		fields["address"] = addr
		fields["source"] = src
		if !c.Allow.Allows(addr) {
			logger.WithFields(fields).Info("Neighbor address outside allowed subnets, ignored")
			continue
		}
		out = append(out, Candidate{Neighbor: n, Address: addr, Source: src})
	}
	return out
}

func (c *Chain) address(ctx context.Context, n neighbor.Neighbor) (string, Source) {
	addr := strings.TrimSpace(n.ManagementAddress)
	src := SourceTable
	if addr == "" && c.DNSFallback && n.Name != "" {
		if resolved := c.lookup(ctx, n.Name); resolved != "" {
			addr, src = resolved, SourceDNS
		}
	}
	if mapped, ok := c.HostMap[n.Name]; ok && n.Name != "" {
		addr, src = strings.TrimSpace(mapped), SourceHostMap
	}
	return addr, src
}

// lookup 返回首个 IPv4 结果，没有则取第一个结果
func (c *Chain) lookup(ctx context.Context, name string) string {
	r := c.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, name)
	if err != nil || len(addrs) == 0 {
		logger.WithFields(logrus.Fields{"neighbor": name}).Debugf("DNS lookup failed: %v", err)
		return ""
	}
	for _, a := range addrs {
		if ip, err := netip.ParseAddr(a); err == nil && ip.Is4() {
			return a
		}
	}
	return addrs[0]
}

func displayName(n neighbor.Neighbor) string {
	if n.Name == "" {
		return "(unnamed)"
	}
	return n.Name
}
