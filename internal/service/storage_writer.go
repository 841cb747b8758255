package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/crawl"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// objectStore MinIO 客户端中用到的部分
type objectStore interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// MinioMirror 将本地快照文件上传到 MinIO，对象路径 <prefix>/<hostname>/<timestamp>.json
type MinioMirror struct {
	client        objectStore
	bucket        string
	prefix        string
	endpoint      string
	bucketEnsured bool
}

// NewMinioMirror 按配置初始化 MinIO 客户端；配置不完整时返回 nil
func NewMinioMirror(cfg config.MinioConfig) *MinioMirror {
	host := strings.TrimSpace(cfg.Host)
	if host == "" || cfg.Port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, cfg.Port)

	// 自定义传输以提升连接与响应的鲁棒性
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   16,
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.WithError(err).Error("MinIO client initialization failed")
		return nil
	}
	return newMinioMirror(client, cfg, endpoint)
}

func newMinioMirror(client objectStore, cfg config.MinioConfig, endpoint string) *MinioMirror {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "switchdoc"
	}
	return &MinioMirror{
		client:   client,
		bucket:   bucket,
		prefix:   strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		endpoint: endpoint,
	}
}

// ObjectName 快照对应的对象路径
func (m *MinioMirror) ObjectName(hostname, timestamp string) string {
	return path.Join(m.prefix, hostname, timestamp+".json")
}

// Upload 上传本地快照文件，返回 minio:// URI
func (m *MinioMirror) Upload(ctx context.Context, hostname, timestamp, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat snapshot: %w", err)
	}

	if !m.bucketEnsured {
		if err := m.ensureBucket(ctx, 2); err != nil {
			return "", fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		m.bucketEnsured = true
	}

	objectName := m.ObjectName(hostname, timestamp)
	// 带重试的对象写入（指数退避），使用请求上下文剩余时间做上限
	var lastErr error
	for _, d := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return "", err
		}
		attemptCtx, cancel := attemptContext(ctx, d*5)
		_, err := m.client.PutObject(attemptCtx, m.bucket, objectName, f, st.Size(), minio.PutObjectOptions{ContentType: "application/json"})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		time.Sleep(d)
	}
	if lastErr != nil {
		return "", fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}
	return "minio://" + path.Join(m.bucket, objectName), nil
}

// ensureBucket 校验并创建 bucket，支持有限重试
func (m *MinioMirror) ensureBucket(parent context.Context, retries int) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := attemptContext(parent, 10*time.Second)
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err == nil && !exists {
			err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	return lastErr
}

// attemptContext 构造限时上下文，尊重父上下文的剩余截止时间
func attemptContext(parent context.Context, prefer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remain := time.Until(deadline)
		if remain > time.Second && prefer < remain {
			return context.WithTimeout(parent, prefer)
		}
		if remain > time.Second {
			return context.WithTimeout(parent, remain-time.Second)
		}
		return context.WithTimeout(parent, time.Second)
	}
	return context.WithTimeout(parent, prefer)
}

// mirroredStore 本地保存成功后上传快照；上传失败只记录日志
type mirroredStore struct {
	crawl.SnapshotStore
	mirror *MinioMirror
	ctx    context.Context
}

// MirrorStore 为快照存储增加 MinIO 备份
func MirrorStore(ctx context.Context, store crawl.SnapshotStore, mirror *MinioMirror) crawl.SnapshotStore {
	if mirror == nil {
		return store
	}
	return &mirroredStore{SnapshotStore: store, mirror: mirror, ctx: ctx}
}

func (s *mirroredStore) Save(hostname, timestamp string, items []model.CommandResult, meta model.SnapshotMeta) (string, error) {
	p, err := s.SnapshotStore.Save(hostname, timestamp, items, meta)
	if err != nil {
		return p, err
	}
	uri, uerr := s.mirror.Upload(s.ctx, hostname, timestamp, p)
	fields := logrus.Fields{"hostname": hostname, "timestamp": timestamp}
	if uerr != nil {
		logger.WithFields(fields).Warnf("Snapshot mirror to %s failed: %v", s.mirror.endpoint, uerr)
	} else {
		logger.WithFields(fields).Debugf("Snapshot mirrored to %s", uri)
	}
	return p, nil
}
