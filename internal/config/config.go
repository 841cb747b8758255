package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// Config 应用配置结构
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Crawl       CrawlConfig       `mapstructure:"crawl"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Report      ReportConfig      `mapstructure:"report"`
	SSH         SSHConfig         `mapstructure:"ssh"`
	Collector   CollectorConfig   `mapstructure:"collector"`
	Log         logger.Config     `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	Sinks       SinksConfig       `mapstructure:"sinks"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CrawlConfig 拓扑遍历参数
type CrawlConfig struct {
	// Seed 定时任务使用的种子地址
	Seed           string   `mapstructure:"seed"`
	MaxDepth       int      `mapstructure:"max_depth"`
	AllowedSubnets []string `mapstructure:"allowed_subnets"`
	DNSFallback    bool     `mapstructure:"dns_fallback"`
	// HostMapFile 邻居名到地址的 YAML 映射文件
	HostMapFile string `mapstructure:"hostmap_file"`
	// OutputDir 非空时所有设备共用该输出目录
	OutputDir string   `mapstructure:"output_dir"`
	Commands  []string `mapstructure:"commands"`
	Platform  string   `mapstructure:"platform"`
}

// CredentialsConfig 设备登录凭据
type CredentialsConfig struct {
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	EnablePassword string `mapstructure:"enable_password"`
	KeyFile        string `mapstructure:"key_file"`
	KeyPassphrase  string `mapstructure:"key_passphrase"`
	Port           int    `mapstructure:"port"`
}

// SnapshotConfig 快照存储配置
type SnapshotConfig struct {
	// BaseDir 未指定输出目录时的输出根目录，设备目录为 <base_dir>/<hostname>
	BaseDir string `mapstructure:"base_dir"`
	MaxKeep int    `mapstructure:"max_keep"`
	// MirrorMinio 快照写入后同步上传到 MinIO
	MirrorMinio bool `mapstructure:"mirror_minio"`
}

// ReportConfig 报告输出配置
type ReportConfig struct {
	RawOutputs  bool   `mapstructure:"raw_outputs"`
	RawDir      string `mapstructure:"raw_dir"`
	RawTSSubdir bool   `mapstructure:"raw_ts_subdir"`
}

// SSHConfig SSH 配置
type SSHConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	CommandIntervalMS int           `mapstructure:"command_interval_ms"`
	MaxSessions       int           `mapstructure:"max_sessions"`
}

// CollectorConfig 采集输出处理配置
type CollectorConfig struct {
	OutputFilter OutputFilterConfig `mapstructure:"output_filter"`
}

// OutputFilterConfig 输出过滤器配置
type OutputFilterConfig struct {
	// Prefixes 移除以这些字符串开头的行（分页提示等）
	Prefixes []string `mapstructure:"prefixes"`
	// Contains 移除包含这些子串的行
	Contains        []string `mapstructure:"contains"`
	CaseInsensitive bool     `mapstructure:"case_insensitive"`
	TrimSpace       bool     `mapstructure:"trim_space"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
}

// MinioConfig MinIO 连接参数
type MinioConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
	// Prefix 对象路径前缀（不含 bucket）
	Prefix string `mapstructure:"prefix"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ScheduleConfig 定时遍历配置
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// SinksConfig 外部投递配置
type SinksConfig struct {
	Influx InfluxConfig `mapstructure:"influx"`
	AMQP   AMQPConfig   `mapstructure:"amqp"`
}

// InfluxConfig InfluxDB 1.x 写入配置
type InfluxConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	URL             string `mapstructure:"url"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	RetentionPolicy string `mapstructure:"retention_policy"`
	Measurement     string `mapstructure:"measurement"`
}

// AMQPConfig RabbitMQ 事件投递配置
type AMQPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Queue   string `mapstructure:"queue"`
}

var globalConfig *Config

// Load 加载配置文件；configPath 为空时按默认路径查找，找不到文件则仅使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("SWITCHDOC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = replaceEnvVars(config)
	normalize(&config)

	globalConfig = &config
	return &config, nil
}

// Default 返回仅由默认值构成的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	normalize(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("crawl.seed", "")
	v.SetDefault("crawl.max_depth", 0)
	v.SetDefault("crawl.allowed_subnets", []string{})
	v.SetDefault("crawl.dns_fallback", true)
	v.SetDefault("crawl.platform", "cisco_ios")

	// 空默认值使 SWITCHDOC_CREDENTIALS_* 环境变量生效
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("credentials.enable_password", "")
	v.SetDefault("credentials.port", 22)

	v.SetDefault("snapshot.base_dir", "./outputs")
	v.SetDefault("snapshot.max_keep", 10)
	v.SetDefault("snapshot.mirror_minio", false)

	v.SetDefault("report.raw_outputs", true)
	v.SetDefault("report.raw_dir", "")
	v.SetDefault("report.raw_ts_subdir", false)

	v.SetDefault("ssh.timeout", 60*time.Second)
	v.SetDefault("ssh.connect_timeout", 10*time.Second)
	v.SetDefault("ssh.keep_alive_interval", 30*time.Second)
	v.SetDefault("ssh.command_timeout", 60*time.Second)
	v.SetDefault("ssh.command_interval_ms", 200)
	v.SetDefault("ssh.max_sessions", 4)

	// 默认过滤 Cisco 分页残留
	v.SetDefault("collector.output_filter.case_insensitive", true)
	v.SetDefault("collector.output_filter.trim_space", true)
	v.SetDefault("collector.output_filter.prefixes", []string{"---- More ----"})
	v.SetDefault("collector.output_filter.contains", []string{"--more--"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/switchdoc.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("database.sqlite.path", "./data/switchdoc.db")
	v.SetDefault("database.sqlite.max_idle_conns", 1)
	v.SetDefault("database.sqlite.max_open_conns", 1)
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.minio.port", 9000)
	v.SetDefault("storage.minio.bucket", "switchdoc")
	v.SetDefault("storage.minio.prefix", "snapshots")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", "0 7 * * *")

	v.SetDefault("sinks.influx.measurement", "switch_snapshot")
	v.SetDefault("sinks.amqp.queue", "switchdoc-events")
}

// normalize 修正非法取值
func normalize(cfg *Config) {
	if cfg.Snapshot.MaxKeep <= 0 {
		cfg.Snapshot.MaxKeep = 10
	}
	if cfg.Crawl.MaxDepth < 0 {
		cfg.Crawl.MaxDepth = 0
	}
	if cfg.Credentials.Port < 1 || cfg.Credentials.Port > 65535 {
		cfg.Credentials.Port = 22
	}
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Get 获取全局配置
func Get() *Config {
	return globalConfig
}

// replaceEnvVars 展开凭据中的 ${ENV} 引用
func replaceEnvVars(config Config) Config {
	config.Credentials.Username = expandRef(config.Credentials.Username)
	config.Credentials.Password = expandRef(config.Credentials.Password)
	config.Credentials.EnablePassword = expandRef(config.Credentials.EnablePassword)
	config.Credentials.KeyPassphrase = expandRef(config.Credentials.KeyPassphrase)
	config.Storage.Minio.SecretKey = expandRef(config.Storage.Minio.SecretKey)
	config.Sinks.Influx.Password = expandRef(config.Sinks.Influx.Password)
	return config
}

func expandRef(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}
	return s
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
