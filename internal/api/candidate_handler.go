package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hireHub/internal/api/middleware"
	"hireHub/internal/database"
	"hireHub/internal/storage"
	"hireHub/internal/tasks"
)

// candidatesCacheTTL 是候选人列表缓存的有效期。
const candidatesCacheTTL = 60 * time.Second

// CandidateHandler 负责候选人记录与流水线阶段。
type CandidateHandler struct {
	db          *gorm.DB
	redis       redis.UniversalClient
	storage     *storage.Client
	asynqClient *asynq.Client
	logger      *slog.Logger
}

// NewCandidateHandler 构造 CandidateHandler。
func NewCandidateHandler(db *gorm.DB, redisClient redis.UniversalClient, storageClient *storage.Client, asynqClient *asynq.Client, logger *slog.Logger) *CandidateHandler {
	return &CandidateHandler{
		db:          db,
		redis:       redisClient,
		storage:     storageClient,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

type candidateRequest struct {
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email" binding:"omitempty,email"`
	Phone    string   `json:"phone"`
	JobID    *uint    `json:"job_id"`
	Stage    string   `json:"stage"`
	FitScore *int     `json:"fit_score"`
	Skills   []string `json:"skills"`
}

type candidateResponse struct {
	ID          uint           `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	JobID       *uint          `json:"job_id,omitempty"`
	Stage       string         `json:"stage"`
	FitScore    *int           `json:"fit_score,omitempty"`
	Skills      datatypes.JSON `json:"skills,omitempty"`
	Evaluation  datatypes.JSON `json:"evaluation,omitempty"`
	CVHash      string         `json:"cv_hash,omitempty"`
	Source      string         `json:"source,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateCandidate 手工录入候选人。
func (h *CandidateHandler) CreateCandidate(c *gin.Context) {
	var req candidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	stage := req.Stage
	if stage == "" {
		stage = database.StageApplied
	}
	if !database.ValidStage(stage) {
		BadRequest(c, "invalid pipeline stage")
		return
	}

	candidate := database.Candidate{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		JobID:    req.JobID,
		Stage:    stage,
		FitScore: req.FitScore,
		Source:   "manual",
	}
	if len(req.Skills) > 0 {
		raw, err := json.Marshal(req.Skills)
		if err != nil {
			Internal(c, "failed to encode skills")
			return
		}
		candidate.Skills = datatypes.JSON(raw)
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Create(&candidate).Error; err != nil {
		Internal(c, "failed to create candidate")
		return
	}
	h.invalidateCache(c)

	c.JSON(http.StatusCreated, newCandidateResponse(candidate))
}

// ListCandidates 列出候选人，支持 stage/job_id 过滤。
// 无过滤条件的全量列表走 Redis 缓存，写路径负责失效。
func (h *CandidateHandler) ListCandidates(c *gin.Context) {
	ctx := c.Request.Context()
	stage := c.Query("stage")
	jobID := c.Query("job_id")
	cacheable := stage == "" && jobID == "" && h.redis != nil

	if cacheable {
		if cached, err := h.redis.Get(ctx, candidatesCacheKey).Bytes(); err == nil {
			c.Data(http.StatusOK, "application/json", cached)
			return
		}
	}

	query := h.db.WithContext(ctx).Model(&database.Candidate{})
	if stage != "" {
		if !database.ValidStage(stage) {
			BadRequest(c, "invalid pipeline stage")
			return
		}
		query = query.Where("stage = ?", stage)
	}
	if jobID != "" {
		query = query.Where("job_id = ?", jobID)
	}

	var candidates []database.Candidate
	if err := query.Order("created_at DESC").Find(&candidates).Error; err != nil {
		Internal(c, "failed to list candidates")
		return
	}

	items := make([]candidateResponse, 0, len(candidates))
	for _, cand := range candidates {
		items = append(items, newCandidateResponse(cand))
	}

	if cacheable {
		if raw, err := json.Marshal(items); err == nil {
			if err := h.redis.Set(ctx, candidatesCacheKey, raw, candidatesCacheTTL).Err(); err != nil {
				middleware.LoggerFromContext(c).Warn("cache candidates failed", slog.Any("error", err))
			}
		}
	}

	c.JSON(http.StatusOK, items)
}

// GetCandidate 返回单个候选人。
func (h *CandidateHandler) GetCandidate(c *gin.Context) {
	candidate, err := h.loadCandidate(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, newCandidateResponse(*candidate))
}

// UpdateCandidate 覆盖候选人基础字段。
func (h *CandidateHandler) UpdateCandidate(c *gin.Context) {
	var req candidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	candidate, err := h.loadCandidate(c)
	if err != nil {
		return
	}

	updates := map[string]any{
		"name":  req.Name,
		"email": req.Email,
		"phone": req.Phone,
	}
	if req.JobID != nil {
		updates["job_id"] = *req.JobID
	}
	if req.FitScore != nil {
		updates["fit_score"] = *req.FitScore
	}
	if len(req.Skills) > 0 {
		raw, err := json.Marshal(req.Skills)
		if err != nil {
			Internal(c, "failed to encode skills")
			return
		}
		updates["skills"] = datatypes.JSON(raw)
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(candidate).Updates(updates).Error; err != nil {
		Internal(c, "failed to update candidate")
		return
	}
	if err := h.db.WithContext(ctx).First(candidate, candidate.ID).Error; err != nil {
		Internal(c, "failed to reload candidate")
		return
	}
	h.invalidateCache(c)

	c.JSON(http.StatusOK, newCandidateResponse(*candidate))
}

// DeleteCandidate 删除候选人、时间线以及其名下的简历文件。
func (h *CandidateHandler) DeleteCandidate(c *gin.Context) {
	candidate, err := h.loadCandidate(c)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	var docs []database.CVDocument
	if err := h.db.WithContext(ctx).
		Where("candidate_id = ?", candidate.ID).
		Find(&docs).Error; err != nil {
		Internal(c, "failed to load cv documents")
		return
	}
	if err := h.db.WithContext(ctx).
		Where("candidate_id = ?", candidate.ID).
		Delete(&database.Activity{}).Error; err != nil {
		Internal(c, "failed to delete activities")
		return
	}
	if len(docs) > 0 {
		if err := h.db.WithContext(ctx).
			Where("candidate_id = ?", candidate.ID).
			Delete(&database.CVDocument{}).Error; err != nil {
			Internal(c, "failed to delete cv documents")
			return
		}
	}
	if err := h.db.WithContext(ctx).Delete(&database.Candidate{}, candidate.ID).Error; err != nil {
		Internal(c, "failed to delete candidate")
		return
	}

	// 对象删除失败只告警，库里的记录已经移除。
	if h.storage != nil {
		for _, doc := range docs {
			if doc.ObjectKey == "" {
				continue
			}
			if err := h.storage.DeleteObject(ctx, doc.ObjectKey); err != nil {
				middleware.LoggerFromContext(c).Warn("delete cv object failed",
					slog.String("objectKey", doc.ObjectKey), slog.Any("error", err))
			}
		}
	}
	h.invalidateCache(c)

	c.Status(http.StatusNoContent)
}

type stageRequest struct {
	Stage string `json:"stage" binding:"required"`
}

// MoveStage 把候选人移动到新的流水线阶段并记录时间线。
func (h *CandidateHandler) MoveStage(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if !database.ValidStage(req.Stage) {
		BadRequest(c, "invalid pipeline stage")
		return
	}

	candidate, err := h.loadCandidate(c)
	if err != nil {
		return
	}
	if candidate.Stage == req.Stage {
		c.JSON(http.StatusOK, newCandidateResponse(*candidate))
		return
	}

	userID, _ := userIDFromContext(c)
	previous := candidate.Stage

	ctx := c.Request.Context()
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(candidate).Update("stage", req.Stage).Error; err != nil {
			return err
		}
		activity := database.Activity{
			CandidateID: candidate.ID,
			Kind:        "stage_change",
			Note:        fmt.Sprintf("%s -> %s", previous, req.Stage),
			ActorID:     userID,
		}
		return tx.Create(&activity).Error
	})
	if err != nil {
		Internal(c, "failed to move stage")
		return
	}
	candidate.Stage = req.Stage
	h.invalidateCache(c)

	c.JSON(http.StatusOK, newCandidateResponse(*candidate))
}

// GetCVLink 生成候选人 CV 的限时下载链接。
func (h *CandidateHandler) GetCVLink(c *gin.Context) {
	candidate, err := h.loadCandidate(c)
	if err != nil {
		return
	}
	if candidate.CVObjectKey == "" {
		NotFound(c, "candidate has no CV on file")
		return
	}

	fileName := fmt.Sprintf("%s-cv.pdf", candidate.Name)
	signedURL, err := h.storage.GeneratePresignedDownloadURL(c.Request.Context(), candidate.CVObjectKey, fileName, 5*time.Minute)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate cv link failed", slog.Any("error", err))
		Internal(c, "failed to generate download link")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

type sendEmailRequest struct {
	TemplateID uint `json:"template_id" binding:"required"`
}

// SendEmail 把模板邮件发送任务入队并立即返回 202。
func (h *CandidateHandler) SendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	candidate, err := h.loadCandidate(c)
	if err != nil {
		return
	}
	if candidate.Email == "" {
		Conflict(c, "candidate has no email address")
		return
	}

	ctx := c.Request.Context()
	var tmpl database.EmailTemplate
	if err := h.db.WithContext(ctx).First(&tmpl, req.TemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "email template not found")
		} else {
			Internal(c, "failed to query template")
		}
		return
	}

	userID, _ := userIDFromContext(c)
	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewEmailSendTask(candidate.ID, tmpl.ID, userID, correlationID)
	if err != nil {
		Internal(c, "failed to create task")
		return
	}

	info, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(3))
	if err != nil {
		Internal(c, "failed to enqueue email")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "email queued",
		"task_id": info.ID,
	})
}

func (h *CandidateHandler) loadCandidate(c *gin.Context) (*database.Candidate, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid candidate id")
		return nil, err
	}

	var candidate database.Candidate
	if err := h.db.WithContext(c.Request.Context()).First(&candidate, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "candidate not found")
		} else {
			Internal(c, "failed to query candidate")
		}
		return nil, err
	}
	return &candidate, nil
}

func (h *CandidateHandler) invalidateCache(c *gin.Context) {
	if err := invalidateCandidatesCache(c.Request.Context(), h.redis); err != nil {
		middleware.LoggerFromContext(c).Warn("invalidate candidates cache failed", slog.Any("error", err))
	}
}

func newCandidateResponse(candidate database.Candidate) candidateResponse {
	return candidateResponse{
		ID:         candidate.ID,
		Name:       candidate.Name,
		Email:      candidate.Email,
		Phone:      candidate.Phone,
		JobID:      candidate.JobID,
		Stage:      candidate.Stage,
		FitScore:   candidate.FitScore,
		Skills:     candidate.Skills,
		Evaluation: candidate.Evaluation,
		CVHash:     candidate.CVHash,
		Source:     candidate.Source,
		CreatedAt:  candidate.CreatedAt,
		UpdatedAt:  candidate.UpdatedAt,
	}
}
