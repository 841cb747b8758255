package sink

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	client "github.com/influxdata/influxdb1-client"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/crawl"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches []client.BatchPoints
	err     error
}

func (f *fakeWriter) Write(bp client.BatchPoints) (*client.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, bp)
	return nil, f.err
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []amqp.Publishing
	keys []string
}

func (f *fakePublisher) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.msgs = append(f.msgs, msg)
	return nil
}

func reported(host string) crawl.Event {
	return crawl.Event{
		Kind:     crawl.EventReported,
		Hostname: host,
		Result: &crawl.Result{
			Hostname:  host,
			Address:   "10.0.0.1",
			Timestamp: "2024-01-02_03-04-05",
			Location:  "/out/" + host + "/" + host + "_report.json",
			Changed:   true,
		},
		Metrics: map[string]float64{"interfaces_total": 48, "interfaces_up": 20},
	}
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	s := newInfluxSink(w, config.InfluxConfig{Database: "netdoc"})

	s.Observe(crawl.Event{Kind: crawl.EventFiltered, Address: "10.9.9.9"})
	s.Observe(reported("sw1"))
	s.Observe(reported("sw2"))
	require.NoError(t, s.Close())

	require.Len(t, w.batches, 1, "关闭时写出剩余数据")
	bp := w.batches[0]
	assert.Equal(t, "netdoc", bp.Database)
	require.Len(t, bp.Points, 2)
	p := bp.Points[0]
	assert.Equal(t, "switch_snapshot", p.Measurement)
	assert.Equal(t, "sw1", p.Tags["hostname"])
	assert.Equal(t, 48.0, p.Fields["interfaces_total"])
	assert.Equal(t, true, p.Fields["changed"])
	assert.Equal(t, 2024, p.Time.Year())
}

// TestInfluxSinkWriteError 写入失败只记录日志
func TestInfluxSinkWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("unreachable")}
	s := newInfluxSink(w, config.InfluxConfig{})
	s.Observe(reported("sw1"))
	assert.NoError(t, s.Close())
	assert.Len(t, w.batches, 1)
}

func TestAMQPSink(t *testing.T) {
	pub := &fakePublisher{}
	s := newAMQPSink(pub, "switchdoc-events")

	s.Observe(crawl.Event{Kind: crawl.EventCollectFailed, Address: "10.9.9.9"})
	s.Observe(reported("sw1"))
	require.NoError(t, s.Close())

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "switchdoc-events", pub.keys[0])
	assert.Equal(t, "application/json", pub.msgs[0].ContentType)

	var ev DocumentedEvent
	require.NoError(t, json.Unmarshal(pub.msgs[0].Body, &ev))
	assert.Equal(t, "sw1", ev.Hostname)
	assert.Equal(t, "10.0.0.1", ev.Address)
	assert.True(t, ev.Changed)
	assert.Equal(t, 20.0, ev.Metrics["interfaces_up"])
}

// TestObserveAfterClose 关闭后的事件被丢弃，不会 panic
func TestObserveAfterClose(t *testing.T) {
	w := &fakeWriter{}
	influx := newInfluxSink(w, config.InfluxConfig{})
	require.NoError(t, influx.Close())
	assert.NotPanics(t, func() { influx.Observe(reported("sw1")) })
	assert.NoError(t, influx.Close(), "重复关闭无副作用")
	assert.Empty(t, w.batches)

	pub := &fakePublisher{}
	amqpSink := newAMQPSink(pub, "switchdoc-events")
	require.NoError(t, amqpSink.Close())
	assert.NotPanics(t, func() { amqpSink.Observe(reported("sw1")) })
	assert.Empty(t, pub.msgs)
}

// TestObserveConcurrentClose 关闭与投递并发
func TestObserveConcurrentClose(t *testing.T) {
	s := newInfluxSink(&fakeWriter{}, config.InfluxConfig{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Observe(reported("sw1"))
			}
		}()
	}
	assert.NoError(t, s.Close())
	wg.Wait()
}
