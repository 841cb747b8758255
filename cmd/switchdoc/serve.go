package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sshcollectorpro/switchdoc/api/router"
	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/database"
	"github.com/sshcollectorpro/switchdoc/internal/job"
	"github.com/sshcollectorpro/switchdoc/internal/metrics"
	"github.com/sshcollectorpro/switchdoc/internal/service"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

const defaultConfigFile = "configs/config.yaml"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, scheduled crawls and metrics endpoint",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"version": version, "addr": cfg.GetServerAddr()}).Info("Starting switchdoc server")

	// 初始化数据库
	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	ctx := cmd.Context()
	observers, closeSinks := openSinks(cfg)
	defer closeSinks()
	svc, pool := newCrawlService(ctx, cfg, observers...)
	defer pool.Close()
	query := service.NewSnapshotQuery(cfg)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics.MustRegister(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	if cfg.Schedule.Enabled {
		if _, err := svc.Params(service.CrawlRequest{}); err != nil {
			logger.WithError(err).Warn("Scheduled crawl enabled but crawl parameters are incomplete")
		}
		stopJob := job.NewScheduler(cfg.Schedule, svc.RunScheduled).Start(ctx)
		defer stopJob()
	}

	r := router.SetupRouter(router.Options{
		Mode:        cfg.Server.Mode,
		Crawl:       svc,
		Snapshots:   query,
		Pool:        pool,
		MetricsPath: cfg.Metrics.Path,
		Metrics:     metricsHandler,
	})

	server := &http.Server{
		Addr:           cfg.GetServerAddr(),
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(logrus.Fields{"addr": server.Addr, "mode": cfg.Server.Mode}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		watchConfig(gctx, configFile(), func(newCfg *config.Config) {
			svc.SetConfig(newCfg)
			query.SetConfig(newCfg)
		})
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")

		// 优雅关闭服务器
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server forced to shutdown")
			return err
		}
		logger.Info("Server shutdown complete")
		return nil
	})
	err = g.Wait()

	// 后台遍历结束后再关闭连接池、投递与数据库
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if werr := svc.Wait(waitCtx); werr != nil {
		logger.WithError(werr).Warn("Background crawl did not finish before shutdown")
	}
	return err
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return defaultConfigFile
}

// watchConfig 监听配置文件，变更 300ms 后重新加载；SSH 与 HTTP 参数需重启生效
func watchConfig(ctx context.Context, path string, apply func(*config.Config)) {
	if _, err := os.Stat(path); err != nil {
		logger.WithError(err).Warn("Config file not found, hot reload disabled")
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("Config watch init failed")
		return
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		logger.WithError(err).Warn("Config watch add failed")
		return
	}

	var debounce *time.Timer
	debounceInterval := 300 * time.Millisecond
	trigger := func() {
		newCfg, err := config.Load(path)
		if err != nil {
			logger.WithError(err).Warn("Config reload failed")
			return
		}
		if logLevel != "" {
			newCfg.Log.Level = logLevel
		}
		// 刷新日志配置
		_ = logger.Init(newCfg.Log)
		apply(newCfg)
		logger.Info("Config reloaded")
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// 编辑器以重命名方式保存时需重新监听
			if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				_ = watcher.Add(path)
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("Config watch error")
		}
	}
}
