package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchdoc/internal/collector"
	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/crawl"
	"github.com/sshcollectorpro/switchdoc/internal/database"
	"github.com/sshcollectorpro/switchdoc/internal/service"
	"github.com/sshcollectorpro/switchdoc/internal/sink"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
	"github.com/sshcollectorpro/switchdoc/pkg/ssh"
)

var version = "1.0.0"

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "switchdoc",
		Short:   "Document Cisco switches by crawling CDP/LLDP neighbors",
		Version: version,
		Long: `switchdoc logs into a seed switch over SSH, collects a fixed set of show
commands, parses them into tables and follows CDP/LLDP neighbors breadth-first.
Every documented device gets a timestamped snapshot, a JSON report and a diff
against its previous snapshot.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		newCrawlCmd(),
		newCollectCmd(),
		newDiffCmd(),
		newSnapshotsCmd(),
		newServeCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// bootstrap 加载配置并初始化日志
func bootstrap() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// openHistory 打开运行历史库，失败时仅告警，命令照常执行
func openHistory(cfg *config.Config) func() {
	if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
		logger.WithError(err).Warn("Run history disabled")
		return func() {}
	}
	return func() { _ = database.Close() }
}

// openSinks 按配置创建外部投递，创建失败的投递被跳过
func openSinks(cfg *config.Config) (crawl.Observers, func()) {
	var (
		observers crawl.Observers
		closers   []func() error
	)
	if cfg.Sinks.Influx.Enabled {
		s, err := sink.NewInflux(cfg.Sinks.Influx)
		if err != nil {
			logger.WithError(err).Warn("InfluxDB sink disabled")
		} else {
			observers = append(observers, s)
			closers = append(closers, s.Close)
		}
	}
	if cfg.Sinks.AMQP.Enabled {
		s, err := sink.NewAMQP(cfg.Sinks.AMQP)
		if err != nil {
			logger.WithError(err).Warn("AMQP sink disabled")
		} else {
			observers = append(observers, s)
			closers = append(closers, s.Close)
		}
	}
	return observers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.WithError(err).Warn("Failed to close sink")
			}
		}
	}
}

func newCrawlService(ctx context.Context, cfg *config.Config, observers ...crawl.Observer) (*service.CrawlService, *ssh.Pool) {
	pool := collector.NewPool(cfg)
	return service.NewCrawlService(ctx, cfg, collector.New(cfg, pool), observers...), pool
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
