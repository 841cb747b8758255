package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sshcollectorpro/switchdoc/internal/service"
	"github.com/sshcollectorpro/switchdoc/internal/snapshot"
	"github.com/sshcollectorpro/switchdoc/pkg/logger"
)

// SnapshotHandler 快照查询处理器
type SnapshotHandler struct {
	query *service.SnapshotQuery
}

// NewSnapshotHandler 创建快照处理器
func NewSnapshotHandler(query *service.SnapshotQuery) *SnapshotHandler {
	return &SnapshotHandler{query: query}
}

// List 设备的快照时间戳
// @Router /api/v1/snapshots/{hostname} [get]
func (h *SnapshotHandler) List(c *gin.Context) {
	hostname := c.Param("hostname")
	stamps, err := h.query.List(hostname)
	if err != nil {
		respondSnapshotError(c, err)
		return
	}
	if stamps == nil {
		stamps = []string{}
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Code:    "SUCCESS",
		Message: "ok",
		Data:    gin.H{"hostname": hostname, "timestamps": stamps},
	})
}

// Get 读取单份快照
// @Router /api/v1/snapshots/{hostname}/{timestamp} [get]
func (h *SnapshotHandler) Get(c *gin.Context) {
	snap, err := h.query.Load(c.Param("hostname"), c.Param("timestamp"))
	if err != nil {
		respondSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: snap})
}

// Diff 最近两份快照的差异
// @Router /api/v1/diff/{hostname} [get]
func (h *SnapshotHandler) Diff(c *gin.Context) {
	d, err := h.query.Diff(c.Param("hostname"))
	if err != nil {
		respondSnapshotError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: "ok", Data: d})
}

func respondSnapshotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMS", Message: err.Error()})
	case errors.Is(err, snapshot.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "快照不存在"})
	default:
		logger.WithError(err).Error("Snapshot query failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "QUERY_FAILED", Message: err.Error()})
	}
}
