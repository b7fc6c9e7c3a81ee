package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrNoActions 表示操作员未做任何选择就提交，本地拒绝且不发任何请求。
var ErrNoActions = errors.New("no resolution actions configured")

// BatchSubmitter 把单个批次提交给候选人存储。
// API 进程里由 hiring.Store 实现，测试里用假实现。
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, batch Batch) error
}

// BatchResult 记录单个批次的提交结果，重试时只需重提失败的桶。
type BatchResult struct {
	Mode           Action `json:"mode"`
	IdempotencyKey string `json:"idempotency_key"`
	Items          int    `json:"items"`
	Applied        bool   `json:"applied"`
	Error          string `json:"error,omitempty"`

	err error
}

// Err 返回该批次的原始错误。
func (r BatchResult) Err() error { return r.err }

// Resolver 把一轮操作员选择转换为批次请求并并发提交。
type Resolver struct {
	submitter BatchSubmitter
	logger    *slog.Logger
}

// NewResolver 构造 Resolver。
func NewResolver(submitter BatchSubmitter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{submitter: submitter, logger: logger}
}

// Resolve 计算批次并全部并发提交，等待所有批次完成。
// 各模式批次操作互不相交的候选人集合（每个冲突项只进一个桶），
// 因此没有顺序依赖。任何批次失败都会让整体返回错误，但已成功的
// 批次不会回滚；调用方可以拿着同一个 Plan 重试，幂等键保持不变，
// 服务端对已落库的批次直接回放结果。
func (r *Resolver) Resolve(ctx context.Context, duplicates []Duplicate, plan *Plan) ([]BatchResult, error) {
	if len(duplicates) == 0 {
		return nil, nil
	}
	if plan.Empty() {
		return nil, ErrNoActions
	}

	batches := ComputeBatches(duplicates, plan)
	if len(batches) == 0 {
		// 全部被解析为 skip：合法的终态，无事发生。
		return nil, nil
	}

	// 不用 errgroup.WithContext：一个桶失败不应该把兄弟批次取消掉，
	// 每个批次都要跑完并留下自己的结果。
	results := make([]BatchResult, len(batches))
	var g errgroup.Group
	for i, batch := range batches {
		i, batch := i, batch
		results[i] = BatchResult{
			Mode:           batch.Mode,
			IdempotencyKey: batch.IdempotencyKey,
			Items:          len(batch.Items),
		}
		g.Go(func() error {
			if err := r.submitter.SubmitBatch(ctx, batch); err != nil {
				results[i].err = err
				results[i].Error = err.Error()
				r.logger.Error("submit resolution batch failed",
					slog.String("mode", string(batch.Mode)),
					slog.Int("items", len(batch.Items)),
					slog.Any("error", err),
				)
				return fmt.Errorf("%s batch: %w", batch.Mode, err)
			}
			results[i].Applied = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("resolve duplicates: %w", err)
	}
	return results, nil
}

// FailedModes 汇总失败批次的模式名，用于面向操作员的提示。
func FailedModes(results []BatchResult) string {
	var failed []string
	for _, res := range results {
		if !res.Applied {
			failed = append(failed, string(res.Mode))
		}
	}
	return strings.Join(failed, ", ")
}
