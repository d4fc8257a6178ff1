// Package prices 手工价格文档接口（/api/prices）
package prices

import (
	"context"
	"errors"
	"io"
	"net/http"

	response "usagehub/api/handlers/common"
	"usagehub/internal/prices"

	"github.com/gin-gonic/gin"
)

// Store 价格文档读写
type Store interface {
	Get(ctx context.Context) (prices.Document, error)
	Set(ctx context.Context, updates prices.Document) (prices.Document, error)
}

// Catalog 远端价格目录
type Catalog interface {
	Fetch(ctx context.Context) (prices.Document, error)
}

// MaxSyncBodyBytes 对账请求体上限
const MaxSyncBodyBytes int64 = 8 << 20

// Handler 价格接口处理器
type Handler struct {
	store        Store
	catalog      Catalog
	maxSyncBytes int64
}

// NewHandler 创建处理器
func NewHandler(store Store, catalog Catalog) *Handler {
	return &Handler{store: store, catalog: catalog, maxSyncBytes: MaxSyncBodyBytes}
}

// UpdateRequest 单个模型价格更新
type UpdateRequest struct {
	ModelName string  `json:"modelName"`
	Input     float64 `json:"input"`
	Output    float64 `json:"output"`
}

// UpdateResponse 写入后的完整文档
type UpdateResponse struct {
	Success bool            `json:"success"`
	Prices  prices.Document `json:"prices"`
}

// Get 读取价格文档
// @Summary 读取手工价格文档
// @Tags Prices
// @Produce json
// @Success 200 {object} prices.Document
// @Failure 500 {object} response.ErrorResponse
// @Router /api/prices [get]
func (h *Handler) Get(c *gin.Context) {
	doc, err := h.store.Get(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, doc)
}

// Update 更新单个模型价格
// @Summary 更新单个模型价格
// @Tags Prices
// @Accept json
// @Produce json
// @Param body body UpdateRequest true "模型价格"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/prices [put]
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ModelName == "" {
		response.BadRequest(c, "Missing modelName")
		return
	}
	h.set(c, prices.Document{req.ModelName: {Input: req.Input, Output: req.Output}})
}

// Bulk 批量更新
// @Summary 批量更新模型价格
// @Tags Prices
// @Accept json
// @Produce json
// @Param body body prices.Document true "模型名 -> {input, output}"
// @Success 200 {object} UpdateResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/prices/bulk [post]
func (h *Handler) Bulk(c *gin.Context) {
	var updates prices.Document
	if err := c.ShouldBindJSON(&updates); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.set(c, updates)
}

// Remote 拉取远端价格目录
// @Summary 拉取 models.dev 价格并展开为文档
// @Tags Prices
// @Produce json
// @Success 200 {object} prices.Document
// @Failure 500 {object} response.ErrorResponse
// @Router /api/prices/remote [get]
func (h *Handler) Remote(c *gin.Context) {
	doc, err := h.catalog.Fetch(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, doc)
}

// Sync 与远端价格对账（只读）
// @Summary 比较远端价格与本地文档，返回冲突与新模型
// @Tags Prices
// @Accept json
// @Produce json
// @Param body body prices.Document true "远端价格：映射或 [{modelName,input,output}] 数组"
// @Success 200 {object} prices.Report
// @Failure 400 {object} response.ErrorResponse
// @Failure 413 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/prices/sync [post]
func (h *Handler) Sync(c *gin.Context) {
	// 请求体可能是映射或数组，整体读入后再解析
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSyncBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, response.ErrorResponse{Error: "Request body too large"})
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	remote, err := prices.ParseRemote(body)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	local, err := h.store.Get(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(200, prices.Reconcile(local, remote))
}

func (h *Handler) set(c *gin.Context, updates prices.Document) {
	doc, err := h.store.Set(c.Request.Context(), updates)
	if err != nil {
		response.Fail(c, err, prices.ErrMissingModelName)
		return
	}
	c.JSON(200, UpdateResponse{Success: true, Prices: doc})
}
