package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchdoc/internal/crawl"
)

func TestObserver(t *testing.T) {
	obs := Observer()
	before := testutil.ToFloat64(CrawlEvents.WithLabelValues(string(crawl.EventFiltered)))

	obs.Observe(crawl.Event{Kind: crawl.EventFiltered, Address: "192.0.2.1"})
	obs.Observe(crawl.Event{
		Kind:     crawl.EventReported,
		Hostname: "sw-metrics",
		Result:   &crawl.Result{Hostname: "sw-metrics", Changed: true},
		Metrics:  map[string]float64{"interfaces_up": 12},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(CrawlEvents.WithLabelValues(string(crawl.EventFiltered))))
	assert.Equal(t, 12.0, testutil.ToFloat64(DeviceMetric.WithLabelValues("sw-metrics", "interfaces_up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(DeviceChanged.WithLabelValues("sw-metrics")))
}

func TestObserveRun(t *testing.T) {
	failed := testutil.ToFloat64(CrawlRuns.WithLabelValues("failed"))
	ObserveRun(2*time.Second, errors.New("boom"))
	assert.Equal(t, failed+1, testutil.ToFloat64(CrawlRuns.WithLabelValues("failed")))
}

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { MustRegister(reg) })
	CrawlRuns.WithLabelValues("success").Add(0)
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}
