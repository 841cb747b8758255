package sink

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/crawl"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// DocumentedEvent 设备完成文档化后投递的消息
type DocumentedEvent struct {
	Hostname     string             `json:"hostname"`
	Address      string             `json:"address"`
	Identity     string             `json:"identity"`
	Timestamp    string             `json:"timestamp"`
	Location     string             `json:"location"`
	SnapshotPath string             `json:"snapshot_path,omitempty"`
	Changed      bool               `json:"changed"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	SentAt       time.Time          `json:"sent_at"`
}

// publisher 由 *amqp.Channel 实现
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink 将 "设备已文档化" 事件发布到 RabbitMQ 队列
type AMQPSink struct {
	conn   *amqp.Connection
	ch     publisher
	queue  string
	events chan DocumentedEvent
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewAMQP 连接 broker 并声明队列
func NewAMQP(cfg config.AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		cfg.Queue, // 队列名称
		true,      // 是否持久化
		false,     // 是否自动删除
		false,     // 是否具有排他性
		false,     // 是否阻塞等待
		nil,       // 额外的属性
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}
	logger.Infof("AMQP queue %s declared", q.Name)

	s := newAMQPSink(ch, q.Name)
	s.conn = conn
	return s, nil
}

func newAMQPSink(ch publisher, queue string) *AMQPSink {
	s := &AMQPSink{ch: ch, queue: queue, events: make(chan DocumentedEvent, 256)}
	s.wg.Add(1)
	go s.run()
	return s
}

// Observe 实现 crawl.Observer
func (s *AMQPSink) Observe(e crawl.Event) {
	if e.Kind != crawl.EventReported || e.Result == nil {
		return
	}
	ev := DocumentedEvent{
		Hostname:     e.Result.Hostname,
		Address:      e.Result.Address,
		Identity:     e.Result.Identity,
		Timestamp:    e.Result.Timestamp,
		Location:     e.Result.Location,
		SnapshotPath: e.Result.SnapshotPath,
		Changed:      e.Result.Changed,
		Metrics:      e.Metrics,
		SentAt:       time.Now(),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.WithField("hostname", ev.Hostname).Debug("AMQP sink closed, event dropped")
		return
	}
	select {
	case s.events <- ev:
	default:
		logger.WithField("hostname", ev.Hostname).Warn("AMQP queue full, event dropped")
	}
}

func (s *AMQPSink) run() {
	defer s.wg.Done()
	for ev := range s.events {
		if err := s.publish(ev); err != nil {
			logger.WithError(err).WithField("hostname", ev.Hostname).Error("AMQP publish failed")
		}
	}
}

func (s *AMQPSink) publish(ev DocumentedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.ch.Publish(
		"",      // 交换机名称
		s.queue, // 队列名称
		false,   // 是否强制
		false,   // 是否立即发送
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.SentAt,
			Body:         body,
		},
	)
}

// Close 发送剩余事件并关闭连接
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	s.wg.Wait()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
