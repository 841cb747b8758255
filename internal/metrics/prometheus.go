package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sshcollectorpro/switchdoc/internal/crawl"
)

var (
	CrawlDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "switchdoc_crawl_duration_seconds",
		Help:    "单次拓扑遍历耗时",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	CrawlRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchdoc_crawl_runs_total",
		Help: "遍历次数，按结果区分",
	}, []string{"status"})

	// CrawlEvents 对应遍历过程中的过滤、采集失败、重复设备等事件
	CrawlEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchdoc_crawl_events_total",
		Help: "遍历事件次数",
	}, []string{"kind"})

	DeviceMetric = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "switchdoc_device_metric",
		Help: "最近一次快照的设备指标",
	}, []string{"hostname", "metric"})

	DeviceChanged = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "switchdoc_device_changed",
		Help: "最近一次快照相对上一次是否有变化",
	}, []string{"hostname"})
)

// MustRegister 注册指标，可在 main 中调用。
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(CrawlDuration, CrawlRuns, CrawlEvents, DeviceMetric, DeviceChanged)
}

// Observer 把遍历事件记入指标
func Observer() crawl.Observer {
	return crawl.ObserverFunc(func(e crawl.Event) {
		CrawlEvents.WithLabelValues(string(e.Kind)).Inc()
		if e.Kind != crawl.EventReported || e.Hostname == "" {
			return
		}
		for name, v := range e.Metrics {
			DeviceMetric.WithLabelValues(e.Hostname, name).Set(v)
		}
		changed := 0.0
		if e.Result != nil && e.Result.Changed {
			changed = 1
		}
		DeviceChanged.WithLabelValues(e.Hostname).Set(changed)
	})
}

// ObserveRun 记录一次遍历的耗时与结果
func ObserveRun(elapsed time.Duration, err error) {
	CrawlDuration.Observe(elapsed.Seconds())
	status := "success"
	if err != nil {
		status = "failed"
	}
	CrawlRuns.WithLabelValues(status).Inc()
}
