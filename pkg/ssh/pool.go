package ssh

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pool SSH连接池
// 活跃连接数受 maxActive 限制，超过时 GetConnection 阻塞等待直至 ctx 结束
type Pool struct {
	config      *Config
	connections map[string]*pooledConnection
	mutex       sync.RWMutex
	slots       chan struct{}
	maxIdle     int
	maxActive   int
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

// pooledConnection 池化的连接
type pooledConnection struct {
	client   *Client
	lastUsed time.Time
	inUse    bool
	created  time.Time
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdle     int           `yaml:"max_idle"`
	MaxActive   int           `yaml:"max_active"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	SSHConfig   *Config       `yaml:"ssh"`
}

// NewPool 创建SSH连接池
func NewPool(config *PoolConfig) *Pool {
	if config.MaxActive <= 0 {
		config.MaxActive = 10
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	pool := &Pool{
		config:      config.SSHConfig,
		connections: make(map[string]*pooledConnection),
		slots:       make(chan struct{}, config.MaxActive),
		maxIdle:     config.MaxIdle,
		maxActive:   config.MaxActive,
		idleTimeout: config.IdleTimeout,
		done:        make(chan struct{}),
	}

	go pool.cleanup()

	return pool
}

// GetConnection 获取SSH连接；同一 host:port@user 的空闲连接会被复用
func (p *Pool) GetConnection(ctx context.Context, info *ConnectionInfo) (*Client, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("connection pool is full, active connections: %d: %w", p.maxActive, ctx.Err())
	}

	key := p.getConnectionKey(info)

	p.mutex.Lock()
	if conn, exists := p.connections[key]; exists && !conn.inUse {
		if conn.client.IsConnected() {
			conn.inUse = true
			conn.lastUsed = time.Now()
			p.mutex.Unlock()
			return conn.client, nil
		}
		conn.client.Close()
		delete(p.connections, key)
	}
	p.mutex.Unlock()

	client := NewClient(p.config)
	if err := client.Connect(ctx, info); err != nil {
		<-p.slots
		return nil, fmt.Errorf("failed to create SSH connection: %w", err)
	}

	now := time.Now()
	p.mutex.Lock()
	// 同 key 已有连接在用时，新连接只登记一个，释放时关闭未登记的
	if _, exists := p.connections[key]; !exists {
		p.connections[key] = &pooledConnection{client: client, lastUsed: now, inUse: true, created: now}
	}
	p.mutex.Unlock()

	return client, nil
}

// ReleaseConnection 归还SSH连接
func (p *Pool) ReleaseConnection(info *ConnectionInfo, client *Client) {
	key := p.getConnectionKey(info)

	p.mutex.Lock()
	if conn, exists := p.connections[key]; exists && conn.client == client {
		conn.inUse = false
		conn.lastUsed = time.Now()
	} else if client != nil {
		client.Close()
	}
	p.mutex.Unlock()

	<-p.slots
}

// CloseConnection 关闭指定连接并归还名额
func (p *Pool) CloseConnection(info *ConnectionInfo, client *Client) error {
	key := p.getConnectionKey(info)

	p.mutex.Lock()
	if conn, exists := p.connections[key]; exists && conn.client == client {
		delete(p.connections, key)
	}
	p.mutex.Unlock()

	<-p.slots
	if client == nil {
		return nil
	}
	return client.Close()
}

// Close 关闭连接池
func (p *Pool) Close() error {
	p.closeOnce.Do(func() { close(p.done) })

	p.mutex.Lock()
	defer p.mutex.Unlock()

	var lastErr error
	for key, conn := range p.connections {
		if err := conn.client.Close(); err != nil {
			lastErr = err
		}
		delete(p.connections, key)
	}

	return lastErr
}

// GetStats 获取连接池统计信息
func (p *Pool) GetStats() map[string]interface{} {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return map[string]interface{}{
		"total_connections":  len(p.connections),
		"active_connections": p.getActiveCount(),
		"idle_connections":   len(p.connections) - p.getActiveCount(),
		"max_idle":           p.maxIdle,
		"max_active":         p.maxActive,
	}
}

// getConnectionKey 生成连接键
func (p *Pool) getConnectionKey(info *ConnectionInfo) string {
	return fmt.Sprintf("%s@%s", info.Address(), info.Username)
}

// getActiveCount 获取活跃连接数
func (p *Pool) getActiveCount() int {
	count := 0
	for _, conn := range p.connections {
		if conn.inUse {
			count++
		}
	}
	return count
}

// cleanup 清理过期连接
func (p *Pool) cleanup() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.cleanupExpiredConnections(time.Now())
		}
	}
}

// cleanupExpiredConnections 关闭超时或断开的空闲连接，并把空闲数压到 maxIdle
func (p *Pool) cleanupExpiredConnections(now time.Time) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for key, conn := range p.connections {
		if conn.inUse {
			continue
		}
		if now.Sub(conn.lastUsed) > p.idleTimeout || !conn.client.IsConnected() {
			conn.client.Close()
			delete(p.connections, key)
		}
	}

	excess := len(p.connections) - p.getActiveCount() - p.maxIdle
	for key, conn := range p.connections {
		if excess <= 0 {
			break
		}
		if !conn.inUse {
			conn.client.Close()
			delete(p.connections, key)
			excess--
		}
	}
}

// Health 健康检查
func (p *Pool) Health() error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if len(p.connections) == 0 {
		return nil
	}
	for _, conn := range p.connections {
		if conn.client.IsConnected() {
			return nil
		}
	}
	return fmt.Errorf("all connections are disconnected")
}
