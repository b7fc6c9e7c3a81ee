package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hireHub/internal/database"
	"hireHub/internal/dedup"
	"hireHub/internal/notify"
	"hireHub/internal/storage"
	"hireHub/internal/tasks"
)

// errEmptyExtraction 表示文档可读但抽取不出任何结构化字段。
// 不可重试：同一份文件再跑多少遍结果都一样。
var errEmptyExtraction = errors.New("extraction produced no fields")

// CVExtractTaskHandler 负责消费 CV 抽取任务。
type CVExtractTaskHandler struct {
	db               *gorm.DB
	storage          *storage.Client
	redisClient      redis.UniversalClient
	logger           *slog.Logger
	internalSecret   string
	extractorBaseURL string
}

// NewCVExtractTaskHandler 创建任务处理器。
func NewCVExtractTaskHandler(
	db *gorm.DB,
	storageClient *storage.Client,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
	internalSecret string,
	extractorBaseURL string,
) *CVExtractTaskHandler {
	return &CVExtractTaskHandler{
		db:               db,
		storage:          storageClient,
		redisClient:      redisClient,
		logger:           logger,
		internalSecret:   internalSecret,
		extractorBaseURL: strings.TrimRight(strings.TrimSpace(extractorBaseURL), "/"),
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *CVExtractTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.CVExtractPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("hash", payload.Hash),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting cv extraction task")

	var doc database.CVDocument
	if err := h.db.WithContext(ctx).Where("hash = ?", payload.Hash).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("cv document not found, skipping task")
			return nil
		}
		log.Error("query cv document failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		h.markFailed(ctx, &doc, payload, retErr, log)
	}()

	fileURL, err := h.storage.GeneratePresignedURL(ctx, doc.ObjectKey, 30*time.Minute)
	if err != nil {
		log.Error("presign cv object failed", slog.Any("error", err))
		return err
	}

	extracted, err := requestExtraction(ctx, h.extractorBaseURL, h.internalSecret, payload.CorrelationID, extractRequest{
		FileURL:  fileURL,
		FileName: doc.FileName,
		Hash:     doc.Hash,
	})
	if err != nil {
		if errors.Is(err, errEmptyExtraction) {
			log.Warn("extraction produced no fields, marking document failed")
			h.markFailed(ctx, &doc, payload, err, log)
			return nil
		}
		log.Error("request extraction failed", slog.Any("error", err))
		return err
	}

	raw, err := json.Marshal(extracted)
	if err != nil {
		return fmt.Errorf("encode extracted fields: %w", err)
	}
	update := map[string]any{
		"extracted": datatypes.JSON(raw),
		"status":    "extracted",
	}
	if err := h.db.WithContext(ctx).Model(&doc).Updates(update).Error; err != nil {
		log.Error("update cv document failed", slog.Any("error", err))
		return err
	}

	if doc.CandidateID != nil {
		if err := h.fillCandidate(ctx, *doc.CandidateID, extracted); err != nil {
			log.Error("fill candidate from extraction failed", slog.Any("error", err))
			return err
		}
	}

	message := notify.CVProcessedMessage{
		Type:          "cv_processed",
		Hash:          doc.Hash,
		FileName:      doc.FileName,
		Status:        "extracted",
		CandidateID:   doc.CandidateID,
		CorrelationID: payload.CorrelationID,
	}
	if err := notify.Publish(ctx, h.redisClient, payload.UserID, message); err != nil {
		log.Error("publish extraction notification failed", slog.Any("error", err))
		return err
	}

	log.Info("cv extraction task completed")
	return nil
}

// fillCandidate 用抽取结果补全候选人，只写空字段，不覆盖人工录入。
// 例外：cv_upload 来源且尚未补全过的候选人，姓名还是文件名占位，允许覆盖。
func (h *CVExtractTaskHandler) fillCandidate(ctx context.Context, candidateID uint, extracted *dedup.NewData) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate database.Candidate
		if err := tx.First(&candidate, candidateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		update := map[string]any{}
		if extracted.Name != "" {
			if candidate.Name == "" || (candidate.Source == "cv_upload" && candidate.Email == "") {
				update["name"] = extracted.Name
			}
		}
		if candidate.Email == "" && extracted.Email != "" {
			update["email"] = extracted.Email
		}
		if candidate.Phone == "" && extracted.Phone != "" {
			update["phone"] = extracted.Phone
		}
		if candidate.FitScore == nil && extracted.FitScore != nil {
			update["fit_score"] = *extracted.FitScore
		}
		if len(candidate.Skills) == 0 && len(extracted.Skills) > 0 {
			raw, err := json.Marshal(extracted.Skills)
			if err != nil {
				return err
			}
			update["skills"] = datatypes.JSON(raw)
		}
		if len(candidate.Evaluation) == 0 {
			evaluation := map[string]any{}
			if extracted.Evaluation != "" {
				evaluation["summary"] = extracted.Evaluation
			}
			if len(extracted.Strengths) > 0 {
				evaluation["strengths"] = extracted.Strengths
			}
			if len(extracted.Weaknesses) > 0 {
				evaluation["weaknesses"] = extracted.Weaknesses
			}
			if len(evaluation) > 0 {
				raw, err := json.Marshal(evaluation)
				if err != nil {
					return err
				}
				update["evaluation"] = datatypes.JSON(raw)
			}
		}
		if len(update) > 0 {
			if err := tx.Model(&candidate).Updates(update).Error; err != nil {
				return err
			}
		}

		activity := database.Activity{
			CandidateID: candidate.ID,
			Kind:        "cv_processed",
			Note:        "CV processed and fields extracted",
		}
		return tx.Create(&activity).Error
	})
}

func (h *CVExtractTaskHandler) markFailed(ctx context.Context, doc *database.CVDocument, payload tasks.CVExtractPayload, cause error, log *slog.Logger) {
	if err := h.db.WithContext(ctx).Model(doc).Update("status", "failed").Error; err != nil {
		log.Error("mark cv document failed", slog.Any("error", err))
	}

	message := notify.CVProcessedMessage{
		Type:          "cv_processed",
		Hash:          doc.Hash,
		FileName:      doc.FileName,
		Status:        "failed",
		CandidateID:   doc.CandidateID,
		Error:         strings.TrimSpace(cause.Error()),
		CorrelationID: payload.CorrelationID,
	}
	if err := notify.Publish(ctx, h.redisClient, payload.UserID, message); err != nil {
		log.Error("publish extraction failure notification failed", slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
