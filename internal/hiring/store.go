package hiring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hireHub/internal/database"
	"hireHub/internal/dedup"
	"hireHub/internal/match"
)

// ErrCandidateMissing 表示批次里引用了不存在的候选人。
var ErrCandidateMissing = errors.New("candidate referenced by batch does not exist")

// BatchSummary 是一个批次落库后的汇总，随幂等键一起持久化，
// 重放时原样返回。
type BatchSummary struct {
	Mode         dedup.Action `json:"mode"`
	Processed    int          `json:"processed"`
	Updated      int          `json:"updated"`
	Created      int          `json:"created"`
	CandidateIDs []uint       `json:"candidate_ids"`
}

// Store 执行去重批次对候选人表的变更。每个批次在单个事务内原子执行；
// 跨批次没有原子性保证（与客户端的并发提交模型一致）。
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// SubmitBatch 实现 dedup.BatchSubmitter，供进程内的 Resolver 使用。
func (s *Store) SubmitBatch(ctx context.Context, batch dedup.Batch) error {
	_, _, err := s.ApplyBatch(ctx, batch)
	return err
}

// ApplyBatch 在一个事务内执行整个批次。
// 幂等键已经出现过时不重复执行，返回当时的汇总（replayed=true）。
func (s *Store) ApplyBatch(ctx context.Context, batch dedup.Batch) (summary *BatchSummary, replayed bool, err error) {
	if !batch.Mode.Mutates() {
		return nil, false, fmt.Errorf("batch mode %q does not mutate the store", batch.Mode)
	}
	if len(batch.Items) == 0 {
		return nil, false, errors.New("batch has no items")
	}
	if strings.TrimSpace(batch.IdempotencyKey) == "" {
		return nil, false, errors.New("batch idempotency key is required")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen database.ProcessedBatch
		lookupErr := tx.Where("idempotency_key = ?", batch.IdempotencyKey).First(&seen).Error
		switch {
		case lookupErr == nil:
			var stored BatchSummary
			if err := json.Unmarshal(seen.Summary, &stored); err != nil {
				return fmt.Errorf("decode stored batch summary: %w", err)
			}
			summary = &stored
			replayed = true
			return nil
		case !errors.Is(lookupErr, gorm.ErrRecordNotFound):
			return fmt.Errorf("lookup idempotency key: %w", lookupErr)
		}

		result := BatchSummary{Mode: batch.Mode}
		for _, item := range batch.Items {
			candidateID, err := s.applyItem(tx, batch.Mode, item)
			if err != nil {
				return err
			}
			result.Processed++
			switch batch.Mode {
			case dedup.ActionCreateNew:
				result.Created++
			case dedup.ActionMerge, dedup.ActionReplace:
				result.Updated++
			}
			result.CandidateIDs = append(result.CandidateIDs, candidateID)
		}

		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode batch summary: %w", err)
		}
		record := database.ProcessedBatch{
			IdempotencyKey: batch.IdempotencyKey,
			Mode:           string(batch.Mode),
			Summary:        datatypes.JSON(raw),
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("record processed batch: %w", err)
		}

		summary = &result
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if replayed {
		s.logger.Info("replayed processed batch",
			slog.String("mode", string(batch.Mode)),
			slog.String("idempotency_key", batch.IdempotencyKey),
		)
	}
	return summary, replayed, nil
}

// applyItem 对单个冲突项执行模式语义，返回受影响的候选人 ID。
func (s *Store) applyItem(tx *gorm.DB, mode dedup.Action, item dedup.BatchItem) (uint, error) {
	var existing database.Candidate
	if err := tx.First(&existing, item.CandidateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: id=%d", ErrCandidateMissing, item.CandidateID)
		}
		return 0, fmt.Errorf("load candidate %d: %w", item.CandidateID, err)
	}

	var doc database.CVDocument
	docErr := tx.Where("hash = ?", item.Hash).First(&doc).Error
	if docErr != nil && !errors.Is(docErr, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("load cv document %q: %w", item.Hash, docErr)
	}
	var extracted *dedup.NewData
	if docErr == nil {
		extracted = match.ExtractedFromDocument(&doc)
	}

	switch mode {
	case dedup.ActionMerge:
		return existing.ID, s.applyMerge(tx, &existing, extracted)
	case dedup.ActionReplace:
		return existing.ID, s.applyReplace(tx, &existing, extracted, &doc)
	case dedup.ActionCreateNew:
		return s.applyCreateNew(tx, &existing, extracted, &doc, item)
	case dedup.ActionSkip:
		// skip 永远不会到达服务端；出现即编程错误。
		return 0, fmt.Errorf("skip batch submitted to store")
	default:
		return 0, fmt.Errorf("unknown batch mode %q", mode)
	}
}

// applyMerge 只填空：已填写的字段绝不覆盖。抽取结果缺失时是显式的 no-op。
func (s *Store) applyMerge(tx *gorm.DB, candidate *database.Candidate, data *dedup.NewData) error {
	if data == nil {
		return nil
	}

	updates := map[string]any{}
	if strings.TrimSpace(candidate.Name) == "" && data.Name != "" {
		updates["name"] = data.Name
	}
	if strings.TrimSpace(candidate.Email) == "" && data.Email != "" {
		updates["email"] = data.Email
	}
	if strings.TrimSpace(candidate.Phone) == "" && data.Phone != "" {
		updates["phone"] = data.Phone
	}
	if candidate.FitScore == nil && data.FitScore != nil {
		updates["fit_score"] = *data.FitScore
	}
	if len(candidate.Skills) == 0 && len(data.Skills) > 0 {
		raw, err := json.Marshal(data.Skills)
		if err != nil {
			return fmt.Errorf("encode skills: %w", err)
		}
		updates["skills"] = datatypes.JSON(raw)
	}
	if len(candidate.Evaluation) == 0 {
		if eval := encodeEvaluation(data); eval != nil {
			updates["evaluation"] = eval
		}
	}

	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(candidate).Updates(updates).Error; err != nil {
		return fmt.Errorf("merge candidate %d: %w", candidate.ID, err)
	}
	return appendActivity(tx, candidate.ID, "cv_processed", "merged new CV data into empty fields")
}

// applyReplace 用新数据整体覆盖对应字段，并把候选人的 CV 指向新文件。
func (s *Store) applyReplace(tx *gorm.DB, candidate *database.Candidate, data *dedup.NewData, doc *database.CVDocument) error {
	updates := map[string]any{}
	if doc != nil && doc.ObjectKey != "" {
		updates["cv_object_key"] = doc.ObjectKey
		updates["cv_hash"] = doc.Hash
	}
	if data != nil {
		if data.Name != "" {
			updates["name"] = data.Name
		}
		if data.Email != "" {
			updates["email"] = data.Email
		}
		if data.Phone != "" {
			updates["phone"] = data.Phone
		}
		if data.FitScore != nil {
			updates["fit_score"] = *data.FitScore
		}
		if len(data.Skills) > 0 {
			raw, err := json.Marshal(data.Skills)
			if err != nil {
				return fmt.Errorf("encode skills: %w", err)
			}
			updates["skills"] = datatypes.JSON(raw)
		}
		if eval := encodeEvaluation(data); eval != nil {
			updates["evaluation"] = eval
		}
	}

	if len(updates) == 0 {
		return nil
	}
	if err := tx.Model(candidate).Updates(updates).Error; err != nil {
		return fmt.Errorf("replace candidate %d: %w", candidate.ID, err)
	}
	return appendActivity(tx, candidate.ID, "cv_processed", "replaced candidate data with new CV")
}

// applyCreateNew 插入一条与既有记录共享身份（邮箱）但主键不同的新候选人。
func (s *Store) applyCreateNew(tx *gorm.DB, existing *database.Candidate, data *dedup.NewData, doc *database.CVDocument, item dedup.BatchItem) (uint, error) {
	fresh := database.Candidate{
		Name:   existing.Name,
		Email:  existing.Email,
		JobID:  existing.JobID,
		Stage:  database.StageApplied,
		CVHash: item.Hash,
		Source: "cv_upload",
	}
	if doc != nil {
		fresh.CVObjectKey = doc.ObjectKey
	}
	if data != nil {
		if data.Name != "" {
			fresh.Name = data.Name
		}
		if data.Email != "" {
			fresh.Email = data.Email
		}
		if data.Phone != "" {
			fresh.Phone = data.Phone
		}
		fresh.FitScore = data.FitScore
		if len(data.Skills) > 0 {
			if raw, err := json.Marshal(data.Skills); err == nil {
				fresh.Skills = datatypes.JSON(raw)
			}
		}
		if eval := encodeEvaluation(data); eval != nil {
			fresh.Evaluation = eval
		}
	}

	if err := tx.Create(&fresh).Error; err != nil {
		return 0, fmt.Errorf("create candidate for %q: %w", item.FileName, err)
	}

	if doc != nil && doc.ID != 0 {
		if err := tx.Model(doc).Update("candidate_id", fresh.ID).Error; err != nil {
			return 0, fmt.Errorf("link cv document to candidate %d: %w", fresh.ID, err)
		}
	}

	if err := appendActivity(tx, fresh.ID, "cv_processed", fmt.Sprintf("created from duplicate CV %s", item.FileName)); err != nil {
		return 0, err
	}
	return fresh.ID, nil
}

func encodeEvaluation(data *dedup.NewData) datatypes.JSON {
	if data == nil {
		return nil
	}
	if len(data.Strengths) == 0 && len(data.Weaknesses) == 0 && data.Evaluation == "" {
		return nil
	}
	raw, err := json.Marshal(map[string]any{
		"strengths":  data.Strengths,
		"weaknesses": data.Weaknesses,
		"summary":    data.Evaluation,
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func appendActivity(tx *gorm.DB, candidateID uint, kind, note string) error {
	activity := database.Activity{
		CandidateID: candidateID,
		Kind:        kind,
		Note:        note,
	}
	if err := tx.Create(&activity).Error; err != nil {
		return fmt.Errorf("append activity for candidate %d: %w", candidateID, err)
	}
	return nil
}
