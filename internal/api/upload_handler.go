package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hireHub/internal/api/middleware"
	"hireHub/internal/database"
	"hireHub/internal/dedup"
	"hireHub/internal/match"
	"hireHub/internal/metrics"
	"hireHub/internal/tasks"
)

// uploadStorage 抽象上传所需的对象存储操作，测试里用假实现。
type uploadStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// UploadHandler 负责 CV 批量上传与重复检测。
type UploadHandler struct {
	db            *gorm.DB
	Storage       uploadStorage
	Detector      *match.Detector
	AsynqClient   *asynq.Client
	Redis         redis.UniversalClient
	Logger        *slog.Logger
	ClamdAddr     string
	MaxBytes      int64
	MIMEWhitelist []string
}

// NewUploadHandler 构造 UploadHandler。
func NewUploadHandler(db *gorm.DB, storageClient uploadStorage, asynqClient *asynq.Client, redisClient redis.UniversalClient, logger *slog.Logger, clamdAddr string, maxBytes int64, mimeWhitelist []string) *UploadHandler {
	return &UploadHandler{
		db:            db,
		Storage:       storageClient,
		Detector:      match.NewDetector(db),
		AsynqClient:   asynqClient,
		Redis:         redisClient,
		Logger:        logger,
		ClamdAddr:     clamdAddr,
		MaxBytes:      maxBytes,
		MIMEWhitelist: mimeWhitelist,
	}
}

type uploadError struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

type uploadSummary struct {
	Total      int `json:"total"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

type uploadResponse struct {
	NewCandidates []candidateResponse `json:"newCandidates"`
	Duplicates    []dedup.Duplicate   `json:"duplicates"`
	Summary       uploadSummary       `json:"summary"`
	Errors        []uploadError       `json:"errors,omitempty"`
}

// UploadCVs 处理批量 CV 上传：扫描、按内容哈希去重、落对象存储、
// 派发抽取任务。无冲突的文件直接建候选人；有冲突的文件只进入
// duplicates 列表，等待操作员通过 process 端点裁决。
func (h *UploadHandler) UploadCVs(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "invalid multipart form")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		BadRequest(c, "no files uploaded")
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)
	correlationID := middleware.GetCorrelationID(c)

	resp := uploadResponse{
		NewCandidates: []candidateResponse{},
		Duplicates:    []dedup.Duplicate{},
	}
	resp.Summary.Total = len(files)

	for _, file := range files {
		outcome, err := h.processFile(ctx, file, userID, correlationID)
		if err != nil {
			logger.Warn("cv upload rejected",
				slog.String("file", file.Filename),
				slog.Any("error", err),
			)
			resp.Errors = append(resp.Errors, uploadError{FileName: file.Filename, Error: err.Error()})
			resp.Summary.Failed++
			continue
		}
		if outcome.duplicate != nil {
			metrics.DedupDuplicatesDetected.Inc()
			resp.Duplicates = append(resp.Duplicates, *outcome.duplicate)
			resp.Summary.Duplicates++
			continue
		}
		resp.NewCandidates = append(resp.NewCandidates, newCandidateResponse(*outcome.candidate))
		resp.Summary.Created++
	}

	if resp.Summary.Created > 0 {
		if err := invalidateCandidatesCache(ctx, h.Redis); err != nil {
			logger.Warn("invalidate candidates cache failed", slog.Any("error", err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}

type fileOutcome struct {
	candidate *database.Candidate
	duplicate *dedup.Duplicate
}

func (h *UploadHandler) processFile(ctx context.Context, file *multipart.FileHeader, userID uint, correlationID string) (*fileOutcome, error) {
	if h.MaxBytes > 0 && file.Size > h.MaxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", h.MaxBytes)
	}
	if len(h.MIMEWhitelist) > 0 {
		contentType := file.Header.Get("Content-Type")
		if !mimeAllowed(contentType, h.MIMEWhitelist) {
			return nil, fmt.Errorf("content type %q not allowed", contentType)
		}
	}

	content, err := readFile(file)
	if err != nil {
		return nil, err
	}

	if h.ClamdAddr != "" {
		if err := h.scanContent(content); err != nil {
			return nil, err
		}
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	doc, known, err := h.lookupDocument(ctx, hash)
	if err != nil {
		return nil, err
	}

	if !known {
		objectKey := fmt.Sprintf("cv/%s%s", hash, safeExt(file.Filename))
		contentType := file.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := h.Storage.UploadFile(ctx, objectKey, bytes.NewReader(content), int64(len(content)), contentType); err != nil {
			return nil, fmt.Errorf("store file: %w", err)
		}

		doc = &database.CVDocument{
			Hash:      hash,
			FileName:  file.Filename,
			ObjectKey: objectKey,
			Size:      int64(len(content)),
			Status:    "pending",
		}
		if err := h.db.WithContext(ctx).Create(doc).Error; err != nil {
			return nil, fmt.Errorf("record cv document: %w", err)
		}

		if h.AsynqClient != nil {
			task, err := tasks.NewCVExtractTask(hash, userID, correlationID)
			if err != nil {
				return nil, fmt.Errorf("create extract task: %w", err)
			}
			if _, err := h.AsynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
				return nil, fmt.Errorf("enqueue extract task: %w", err)
			}
		}
	}

	extracted := match.ExtractedFromDocument(doc)
	dup, err := h.Detector.Detect(ctx, hash, file.Filename, extracted)
	if err != nil {
		return nil, fmt.Errorf("detect duplicates: %w", err)
	}
	if dup != nil {
		if url, err := h.Storage.GeneratePresignedURL(ctx, doc.ObjectKey, 15*time.Minute); err == nil {
			dup.FileURL = url
		}
		return &fileOutcome{duplicate: dup}, nil
	}

	candidate, err := h.createCandidate(ctx, doc, extracted, file.Filename)
	if err != nil {
		return nil, err
	}
	return &fileOutcome{candidate: candidate}, nil
}

func (h *UploadHandler) lookupDocument(ctx context.Context, hash string) (*database.CVDocument, bool, error) {
	var doc database.CVDocument
	err := h.db.WithContext(ctx).Where("hash = ?", hash).First(&doc).Error
	switch {
	case err == nil:
		return &doc, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("lookup cv document: %w", err)
	}
}

// createCandidate 为无冲突的上传直接建候选人并关联文档。
func (h *UploadHandler) createCandidate(ctx context.Context, doc *database.CVDocument, extracted *dedup.NewData, fileName string) (*database.Candidate, error) {
	candidate := database.Candidate{
		Name:        nameFromFile(fileName),
		Stage:       database.StageApplied,
		CVObjectKey: doc.ObjectKey,
		CVHash:      doc.Hash,
		Source:      "cv_upload",
	}
	if extracted != nil {
		if extracted.Name != "" {
			candidate.Name = extracted.Name
		}
		candidate.Email = extracted.Email
		candidate.Phone = extracted.Phone
		candidate.FitScore = extracted.FitScore
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&candidate).Error; err != nil {
			return err
		}
		return tx.Model(doc).Update("candidate_id", candidate.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create candidate: %w", err)
	}
	return &candidate, nil
}

func (h *UploadHandler) scanContent(content []byte) error {
	clamdClient := clamd.NewClamd(h.ClamdAddr)

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(bytes.NewReader(content), abortChan)
	if err != nil {
		return fmt.Errorf("scan file: %w", err)
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return errors.New("malicious file detected")
		}
	}
	return nil
}

func readFile(file *multipart.FileHeader) ([]byte, error) {
	reader, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(content) == 0 {
		return nil, errors.New("empty file")
	}
	return content, nil
}

func mimeAllowed(contentType string, whitelist []string) bool {
	for _, allowed := range whitelist {
		if strings.EqualFold(strings.TrimSpace(allowed), strings.TrimSpace(contentType)) {
			return true
		}
	}
	return false
}

func safeExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".pdf", ".doc", ".docx":
		return ext
	default:
		return ".pdf"
	}
}

// nameFromFile 把文件名转成一个可读的占位姓名，等抽取结果出来后再补全。
func nameFromFile(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return "Unknown Candidate"
	}
	return base
}
