package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sshcollectorpro/switchdoc/internal/database"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/service"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// HealthChecker 连接池等依赖的健康检查
type HealthChecker interface {
	Health() error
}

// CrawlHandler 遍历任务处理器
type CrawlHandler struct {
	crawlService *service.CrawlService
	pool         HealthChecker
}

// NewCrawlHandler 创建遍历处理器；pool 可为 nil
func NewCrawlHandler(crawlService *service.CrawlService, pool HealthChecker) *CrawlHandler {
	return &CrawlHandler{crawlService: crawlService, pool: pool}
}

// Health 健康检查
// @Router /api/v1/health [get]
func (h *CrawlHandler) Health(c *gin.Context) {
	data := gin.H{"database": "disabled"}
	if database.GetDB() != nil {
		if err := database.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Code:    "SERVICE_UNAVAILABLE",
				Message: "数据库不可用: " + err.Error(),
			})
			return
		}
		data["database"] = "ok"
	}
	if h.pool != nil {
		if err := h.pool.Health(); err != nil {
			data["ssh_pool"] = err.Error()
		} else {
			data["ssh_pool"] = "ok"
		}
	}
	runID, running := h.crawlService.Running()
	data["crawl_running"] = running
	if running {
		data["run_id"] = runID
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "服务正常",
		Data:    data,
	})
}

// StartCrawl 异步启动一次遍历
// @Router /api/v1/crawl [post]
func (h *CrawlHandler) StartCrawl(c *gin.Context) {
	var req service.CrawlRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "INVALID_PARAMS",
				Message: "请求参数无效: " + err.Error(),
			})
			return
		}
	}

	params, err := h.crawlService.Params(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: err.Error(),
		})
		return
	}

	run, err := h.crawlService.Start(model.TriggerAPI, params)
	if errors.Is(err, service.ErrCrawlRunning) {
		runID, _ := h.crawlService.Running()
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "CRAWL_RUNNING",
			Message: "已有遍历在执行: " + runID,
		})
		return
	}
	if err != nil {
		logger.WithError(err).Error("Failed to start crawl")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "EXECUTION_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{
		Code:    "ACCEPTED",
		Message: "遍历已启动",
		Data:    run,
	})
}

// ListRuns 最近的遍历记录
// @Router /api/v1/crawl/runs [get]
func (h *CrawlHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := database.ListRuns(limit)
	if err != nil {
		respondDBError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: runs})
}

// GetRun 查询单次遍历
// @Router /api/v1/crawl/runs/{id} [get]
func (h *CrawlHandler) GetRun(c *gin.Context) {
	run, err := database.GetRun(c.Param("id"))
	if err != nil {
		respondDBError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: run})
}

// ListDevices 已文档化设备
// @Router /api/v1/devices [get]
func (h *CrawlHandler) ListDevices(c *gin.Context) {
	devices, err := database.ListDevices()
	if err != nil {
		respondDBError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: devices})
}

func respondDBError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "记录不存在"})
	case errors.Is(err, database.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "DATABASE_DISABLED", Message: err.Error()})
	default:
		logger.WithError(err).Error("Database query failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
	}
}
