package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"hireHub/internal/database"
	"hireHub/internal/dedup"
)

// Detector 负责把新上传的 CV 与已存储候选人做匹配，
// 并为命中的冲突计算建议动作与理由。
type Detector struct {
	db *gorm.DB
}

// NewDetector 构造 Detector。
func NewDetector(db *gorm.DB) *Detector {
	return &Detector{db: db}
}

// Detect 检查一份上传文件是否与已存储候选人冲突。
// 匹配顺序：内容哈希精确匹配优先，其次按抽取出的邮箱匹配。
// 无冲突时返回 nil。
func (d *Detector) Detect(ctx context.Context, hash, fileName string, extracted *dedup.NewData) (*dedup.Duplicate, error) {
	candidate, sameHash, err := d.findMatch(ctx, hash, extracted)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return nil, nil
	}

	action, reason := Suggest(candidate, extracted, sameHash)
	dup := &dedup.Duplicate{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Hash:      hash,
		Existing:  snapshot(candidate),
		NewData:   extracted,
		Suggested: action,
		Reason:    reason,
	}
	return dup, nil
}

func (d *Detector) findMatch(ctx context.Context, hash string, extracted *dedup.NewData) (*database.Candidate, bool, error) {
	var candidate database.Candidate
	err := d.db.WithContext(ctx).
		Where("cv_hash = ?", hash).
		Order("updated_at desc").
		First(&candidate).Error
	switch {
	case err == nil:
		return &candidate, true, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, fmt.Errorf("query candidate by hash: %w", err)
	}

	if extracted == nil || strings.TrimSpace(extracted.Email) == "" {
		return nil, false, nil
	}

	err = d.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(extracted.Email))).
		Order("updated_at desc").
		First(&candidate).Error
	switch {
	case err == nil:
		return &candidate, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("query candidate by email: %w", err)
	}
}

func snapshot(c *database.Candidate) dedup.ExistingCandidate {
	return dedup.ExistingCandidate{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		CVLink:    c.CVObjectKey,
		CreatedAt: c.CreatedAt,
		Stage:     c.Stage,
		FitScore:  c.FitScore,
	}
}

// ExtractedFromDocument 把 CVDocument 里存的抽取结果解码为 NewData。
// 文档未抽取或解码失败时返回 nil（等价于抽取失败）。
func ExtractedFromDocument(doc *database.CVDocument) *dedup.NewData {
	if doc == nil || len(doc.Extracted) == 0 || doc.Status != "extracted" {
		return nil
	}
	var data dedup.NewData
	if err := json.Unmarshal(doc.Extracted, &data); err != nil {
		return nil
	}
	return &data
}
