package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sshcollectorpro/switchdoc/api/handler"
	"github.com/sshcollectorpro/switchdoc/internal/service"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// Options 路由依赖
type Options struct {
	Mode        string
	Crawl       *service.CrawlService
	Snapshots   *service.SnapshotQuery
	Pool        handler.HealthChecker
	MetricsPath string
	// Metrics 为 nil 时不暴露指标接口
	Metrics http.Handler
}

// SetupRouter 设置路由
func SetupRouter(opts Options) *gin.Engine {
	mode := opts.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	crawlHandler := handler.NewCrawlHandler(opts.Crawl, opts.Pool)
	snapshotHandler := handler.NewSnapshotHandler(opts.Snapshots)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":   "switchdoc",
			"status": "running",
		})
	})

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.Metrics))
	}

	// API v1 路由组
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", crawlHandler.Health)

		crawl := v1.Group("/crawl")
		{
			crawl.POST("", crawlHandler.StartCrawl)
			crawl.GET("/runs", crawlHandler.ListRuns)
			crawl.GET("/runs/:id", crawlHandler.GetRun)
		}

		v1.GET("/devices", crawlHandler.ListDevices)

		snapshots := v1.Group("/snapshots")
		{
			snapshots.GET("/:hostname", snapshotHandler.List)
			snapshots.GET("/:hostname/:timestamp", snapshotHandler.Get)
		}

		v1.GET("/diff/:hostname", snapshotHandler.Diff)
	}

	// 404处理
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     statusCode,
			"duration":   time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		if statusCode >= 400 {
			entry.Warn("HTTP Error")
			return
		}
		entry.Info("HTTP Request")
	}
}
