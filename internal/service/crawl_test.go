package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchdoc/internal/collector"
	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/crawl"
	"github.com/sshcollectorpro/switchdoc/internal/database"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/snapshot"
)

// fakeCollector 每次返回同一台设备，VLAN 列表可按调用次数变化
type fakeCollector struct {
	mu    sync.Mutex
	calls int
	dir   string
	vlans [][]string
	block chan struct{}
}

func (f *fakeCollector) Collect(ctx context.Context, address string, _ collector.Credentials, _ []string) (*collector.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rows := [][]string{{"1", "default", "active", ""}}
	if f.calls <= len(f.vlans) {
		rows = [][]string{f.vlans[f.calls-1]}
	}
	return &collector.Result{
		Hostname:  "sw1",
		Timestamp: model.FormatTimestamp(time.Date(2024, 1, 1, 0, 0, f.calls, 0, time.UTC)),
		Items: []model.CommandResult{{
			Command: "show vlan brief",
			Raw:     "VLAN Name Status Ports",
			Headers: []string{"vlan_id", "name", "status", "interfaces"},
			Rows:    rows,
		}},
		WorkDir: filepath.Join(f.dir, "sw1"),
	}, nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Snapshot.BaseDir = t.TempDir()
	cfg.Crawl.Seed = "10.0.0.1"
	cfg.Report.RawOutputs = false
	return cfg
}

func TestCrawlServiceRun(t *testing.T) {
	cfg := testConfig(t)
	coll := &fakeCollector{
		dir:   cfg.Snapshot.BaseDir,
		vlans: [][]string{{"1", "default", "active", ""}, {"20", "USERS", "active", ""}},
	}
	var events []crawl.EventKind
	obs := crawl.ObserverFunc(func(e crawl.Event) { events = append(events, e.Kind) })
	svc := NewCrawlService(context.Background(), cfg, coll, obs)

	p, err := svc.Params(CrawlRequest{})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", p.Seed)

	run, results, err := svc.Run(context.Background(), model.TriggerCLI, p)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.Equal(t, 1, run.Reported)
	assert.False(t, results[0].Changed, "首次快照没有变化")
	assert.FileExists(t, results[0].Location)
	assert.Contains(t, events, crawl.EventReported)

	_, results, err = svc.Run(context.Background(), model.TriggerCLI, p)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Changed)

	q := NewSnapshotQuery(cfg)
	stamps, err := q.List("sw1")
	require.NoError(t, err)
	assert.Len(t, stamps, 2)

	d, err := q.Diff("sw1")
	require.NoError(t, err)
	assert.True(t, d.Changed)
	assert.Equal(t, []string{"20"}, d.Delta.Vlans.Added)
	assert.Equal(t, stamps[0], d.Previous)

	snap, err := q.Load("sw1", stamps[1])
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", snap.Meta.HostIP)
}

// TestCrawlServiceSingleFlight 同一时刻只允许一次遍历
func TestCrawlServiceSingleFlight(t *testing.T) {
	cfg := testConfig(t)
	coll := &fakeCollector{dir: cfg.Snapshot.BaseDir, block: make(chan struct{})}
	svc := NewCrawlService(context.Background(), cfg, coll)
	p, err := svc.Params(CrawlRequest{})
	require.NoError(t, err)

	run, err := svc.Start(model.TriggerAPI, p)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, run.Status)

	id, running := svc.Running()
	assert.True(t, running)
	assert.Equal(t, run.ID, id)

	_, _, err = svc.Run(context.Background(), model.TriggerCLI, p)
	assert.True(t, errors.Is(err, ErrCrawlRunning))
	_, err = svc.Start(model.TriggerAPI, p)
	assert.True(t, errors.Is(err, ErrCrawlRunning))

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(short), context.DeadlineExceeded, "遍历未结束时等待随 ctx 超时")

	close(coll.block)
	require.NoError(t, svc.Wait(context.Background()))
	_, running = svc.Running()
	assert.False(t, running)
	assert.NoError(t, svc.Wait(context.Background()), "空闲时立即返回")
}

func TestCrawlServiceRecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, database.InitSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "switchdoc.db")}))
	t.Cleanup(func() { _ = database.Close() })

	svc := NewCrawlService(context.Background(), cfg, &fakeCollector{dir: cfg.Snapshot.BaseDir})
	p, err := svc.Params(CrawlRequest{})
	require.NoError(t, err)
	run, _, err := svc.Run(context.Background(), model.TriggerCLI, p)
	require.NoError(t, err)

	stored, err := database.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, stored.Status)
	assert.Contains(t, stored.Reports, "sw1")

	devices, err := database.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "10.0.0.1", devices[0].Address)
	assert.Equal(t, run.ID, devices[0].LastRunID)
}

func TestParamsOverrides(t *testing.T) {
	cfg := testConfig(t)
	svc := NewCrawlService(context.Background(), cfg, &fakeCollector{})

	depth := 3
	p, err := svc.Params(CrawlRequest{Seed: "10.1.1.1", MaxDepth: &depth, AllowedSubnets: []string{"10.1.0.0/16"}})
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", p.Seed)
	assert.Equal(t, 3, p.MaxDepth)
	assert.Equal(t, []string{"10.1.0.0/16"}, p.AllowedSubnets)

	_, err = svc.Params(CrawlRequest{AllowedSubnets: []string{"not-a-cidr"}})
	assert.Error(t, err)

	cfg.Crawl.Seed = ""
	_, err = svc.Params(CrawlRequest{})
	assert.True(t, errors.Is(err, crawl.ErrEmptySeed))
}

func TestCollectOneRawOnly(t *testing.T) {
	cfg := testConfig(t)
	svc := NewCrawlService(context.Background(), cfg, &fakeCollector{dir: cfg.Snapshot.BaseDir})
	p, err := svc.Params(CrawlRequest{})
	require.NoError(t, err)

	results, dir, err := svc.CollectOne(context.Background(), p, true)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.FileExists(t, filepath.Join(dir, "sw1_show_vlan_brief.txt"))

	// 只保存原始回显时仍写入快照，供之后比较
	q := NewSnapshotQuery(cfg)
	stamps, err := q.List("sw1")
	require.NoError(t, err)
	require.Len(t, stamps, 1)
	snap, err := q.Load("sw1", stamps[0])
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", snap.Meta.HostIP)
	assert.Contains(t, snap.Meta.Metrics, "vlans_active")
	assert.NoFileExists(t, filepath.Join(cfg.Snapshot.BaseDir, "sw1", "sw1_report.json"))
}

func TestSnapshotQueryInvalidName(t *testing.T) {
	q := NewSnapshotQuery(testConfig(t))
	_, err := q.List("../etc")
	assert.True(t, errors.Is(err, ErrInvalidName))
	_, err = q.Load("sw1", "../../x")
	assert.True(t, errors.Is(err, ErrInvalidName))
	_, err = q.Diff("sw-none")
	assert.True(t, errors.Is(err, snapshot.ErrNotFound))
}

type fakeObjects struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
	putErr  error
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, r io.Reader, _ int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+object] = buf.Bytes()
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: int64(buf.Len())}, nil
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func TestMirrorStore(t *testing.T) {
	objs := &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}}
	mirror := newMinioMirror(objs, config.MinioConfig{Bucket: "docs", Prefix: "/snapshots/"}, "fake:9000")
	store := MirrorStore(context.Background(), snapshot.NewStore(t.TempDir(), 10), mirror)

	items := []model.CommandResult{{Command: "show version", Raw: "x"}}
	p, err := store.Save("sw1", "2024-01-01_00-00-00", items, model.SnapshotMeta{HostIP: "10.0.0.1"})
	require.NoError(t, err)

	local, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.True(t, objs.buckets["docs"], "首次上传时创建 bucket")
	assert.Equal(t, local, objs.objects["docs/snapshots/sw1/2024-01-01_00-00-00.json"])

	_, curr, err := store.LastTwo("sw1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01_00-00-00", curr.Timestamp)
}

// TestMirrorStoreUploadFailure 上传失败不影响本地保存
func TestMirrorStoreUploadFailure(t *testing.T) {
	objs := &fakeObjects{buckets: map[string]bool{"switchdoc": true}, objects: map[string][]byte{}, putErr: errors.New("unreachable")}
	mirror := newMinioMirror(objs, config.MinioConfig{}, "fake:9000")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := MirrorStore(ctx, snapshot.NewStore(t.TempDir(), 10), mirror)

	p, err := store.Save("sw1", "2024-01-01_00-00-00", nil, model.SnapshotMeta{})
	require.NoError(t, err)
	assert.FileExists(t, p)
	assert.Empty(t, objs.objects)
}

func TestMirrorStoreNil(t *testing.T) {
	base := snapshot.NewStore(t.TempDir(), 10)
	assert.Same(t, base, MirrorStore(context.Background(), base, nil).(*snapshot.Store))
}
