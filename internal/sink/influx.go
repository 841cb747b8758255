package sink

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/crawl"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

const (
	influxBatchSize     = 100
	influxFlushInterval = 2 * time.Second
)

// pointWriter 由 *client.Client 实现
type pointWriter interface {
	Write(bp client.BatchPoints) (*client.Response, error)
}

// InfluxSink 将已生成报告设备的指标写入 InfluxDB 1.x
// Observe 只入队，写入在后台批量进行
type InfluxSink struct {
	w           pointWriter
	database    string
	retention   string
	measurement string
	points      chan client.Point
	wg          sync.WaitGroup
	// mu 保护 closed，关闭后的 Observe 不再入队
	mu     sync.RWMutex
	closed bool
}

// NewInflux 按配置创建 InfluxDB 写入器
func NewInflux(cfg config.InfluxConfig) (*InfluxSink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid influx url: %w", err)
	}
	c, err := client.NewClient(client.Config{
		URL:      *u,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influx client: %w", err)
	}
	return newInfluxSink(c, cfg), nil
}

func newInfluxSink(w pointWriter, cfg config.InfluxConfig) *InfluxSink {
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "switch_snapshot"
	}
	s := &InfluxSink{
		w:           w,
		database:    cfg.Database,
		retention:   cfg.RetentionPolicy,
		measurement: measurement,
		points:      make(chan client.Point, influxBatchSize*4),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Observe 实现 crawl.Observer
func (s *InfluxSink) Observe(e crawl.Event) {
	p, ok := s.pointFor(e)
	if !ok {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.WithField("hostname", e.Hostname).Debug("Influx sink closed, point dropped")
		return
	}
	select {
	case s.points <- p:
	default:
		logger.WithField("hostname", e.Hostname).Warn("Influx queue full, point dropped")
	}
}

func (s *InfluxSink) pointFor(e crawl.Event) (client.Point, bool) {
	if e.Kind != crawl.EventReported || e.Result == nil || len(e.Metrics) == 0 {
		return client.Point{}, false
	}
	fields := make(map[string]interface{}, len(e.Metrics)+1)
	for k, v := range e.Metrics {
		fields[k] = v
	}
	fields["changed"] = e.Result.Changed
	ts, err := time.ParseInLocation("2006-01-02_15-04-05", e.Result.Timestamp, time.Local)
	if err != nil {
		ts = time.Now()
	}
	return client.Point{
		Measurement: s.measurement,
		Tags: map[string]string{
			"hostname": e.Result.Hostname,
			"address":  e.Result.Address,
		},
		Time:   ts,
		Fields: fields,
	}, true
}

func (s *InfluxSink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(influxFlushInterval)
	defer ticker.Stop()

	batch := make([]client.Point, 0, influxBatchSize)
	for {
		select {
		case p, ok := <-s.points:
			if !ok {
				s.flush(batch)
				return
			}
			batch = append(batch, p)
			if len(batch) >= influxBatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			s.flush(batch)
			batch = batch[:0]
		}
	}
}

func (s *InfluxSink) flush(points []client.Point) {
	if len(points) == 0 {
		return
	}
	bp := client.BatchPoints{
		Points:          append([]client.Point(nil), points...),
		Database:        s.database,
		RetentionPolicy: s.retention,
	}
	resp, err := s.w.Write(bp)
	if err == nil && resp != nil {
		err = resp.Error()
	}
	if err != nil {
		logger.Errorf("Influx write of %d points failed: %v", len(points), err)
		return
	}
	logger.Debugf("Influx wrote %d points", len(points))
}

// Close 停止接收并写出剩余数据
func (s *InfluxSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.points)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
