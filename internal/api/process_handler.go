package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"hireHub/internal/api/middleware"
	"hireHub/internal/dedup"
	"hireHub/internal/hiring"
	"hireHub/internal/metrics"
)

// ProcessHandler 负责重复 CV 的裁决落库。
type ProcessHandler struct {
	Store    *hiring.Store
	Resolver *dedup.Resolver
	Redis    redis.UniversalClient
	Logger   *slog.Logger
}

// NewProcessHandler 构造 ProcessHandler，Resolver 直接挂在 Store 上。
func NewProcessHandler(store *hiring.Store, redisClient redis.UniversalClient, logger *slog.Logger) *ProcessHandler {
	return &ProcessHandler{
		Store:    store,
		Resolver: dedup.NewResolver(store, logger),
		Redis:    redisClient,
		Logger:   logger,
	}
}

type processBatchRequest struct {
	Mode           string            `json:"mode" binding:"required"`
	IdempotencyKey string            `json:"idempotency_key" binding:"required"`
	Duplicates     []dedup.BatchItem `json:"duplicates" binding:"required"`
}

// ProcessBatch 在一个事务内执行单个模式批次。
// 幂等键重复时不再执行，直接回放第一次的汇总。
func (h *ProcessHandler) ProcessBatch(c *gin.Context) {
	var req processBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	mode, err := dedup.ParseAction(req.Mode)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !mode.Mutates() {
		BadRequest(c, "mode must be one of merge, replace, create_new")
		return
	}
	if len(req.Duplicates) == 0 {
		BadRequest(c, "duplicates must not be empty")
		return
	}

	ctx := c.Request.Context()
	batch := dedup.Batch{
		Mode:           mode,
		IdempotencyKey: req.IdempotencyKey,
		Items:          req.Duplicates,
	}

	summary, replayed, err := h.Store.ApplyBatch(ctx, batch)
	if err != nil {
		metrics.DedupBatchTotal.WithLabelValues(string(mode), "failed").Inc()
		if errors.Is(err, hiring.ErrCandidateMissing) {
			NotFound(c, err.Error())
			return
		}
		middleware.LoggerFromContext(c).Error("apply resolution batch failed",
			slog.String("mode", string(mode)),
			slog.Any("error", err),
		)
		Internal(c, "failed to process batch")
		return
	}

	outcome := "applied"
	if replayed {
		outcome = "replayed"
	}
	metrics.DedupBatchTotal.WithLabelValues(string(mode), outcome).Inc()

	if !replayed {
		if err := invalidateCandidatesCache(ctx, h.Redis); err != nil {
			middleware.LoggerFromContext(c).Warn("invalidate candidates cache failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"summary":  summary,
		"replayed": replayed,
	}})
}

type resolveRequest struct {
	Duplicates      []dedup.Duplicate `json:"duplicates" binding:"required"`
	Actions         map[string]string `json:"actions"`
	SelectedMode    *string           `json:"selected_mode"`
	IdempotencyKeys map[string]string `json:"idempotency_keys"`
}

type resolveResponse struct {
	Results []dedup.BatchResult `json:"results"`
	Failed  string              `json:"failed,omitempty"`
}

// ResolveDuplicates 接收整轮裁决：逐项动作加可选的统一模式，
// 服务端分桶后并发落库，逐批返回结果。部分失败时已成功的批次
// 不回滚，客户端带原幂等键只重试失败的模式。
func (h *ProcessHandler) ResolveDuplicates(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	plan := dedup.NewPlan()
	for id, raw := range req.Actions {
		action, err := dedup.ParseAction(raw)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		plan.Set(id, action)
	}
	if req.SelectedMode != nil {
		mode, err := dedup.ParseAction(*req.SelectedMode)
		if err != nil {
			BadRequest(c, err.Error())
			return
		}
		plan.ApplyAll(mode, req.Duplicates)
	}
	plan.SeedKeys(req.IdempotencyKeys)

	ctx := c.Request.Context()
	results, err := h.Resolver.Resolve(ctx, req.Duplicates, plan)
	if err != nil {
		if errors.Is(err, dedup.ErrNoActions) {
			BadRequest(c, "no resolution actions configured")
			return
		}
		// 部分或全部批次失败：结果照常返回，状态码标记为 502，
		// 客户端据 results 里的幂等键重试失败的桶。
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "some batches failed",
			"data": resolveResponse{
				Results: results,
				Failed:  dedup.FailedModes(results),
			},
		})
		return
	}

	if err := invalidateCandidatesCache(ctx, h.Redis); err != nil {
		middleware.LoggerFromContext(c).Warn("invalidate candidates cache failed", slog.Any("error", err))
	}

	for _, res := range results {
		metrics.DedupBatchTotal.WithLabelValues(string(res.Mode), "applied").Inc()
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": resolveResponse{Results: results}})
}
