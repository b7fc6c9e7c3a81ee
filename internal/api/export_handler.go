package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"hireHub/internal/api/middleware"
	"hireHub/internal/database"
)

// ExportHandler 导出候选人清单为 xlsx。
type ExportHandler struct {
	db *gorm.DB
}

func NewExportHandler(db *gorm.DB) *ExportHandler {
	return &ExportHandler{db: db}
}

var exportHeaders = []string{"ID", "Name", "Email", "Phone", "Stage", "Fit Score", "Job", "Source", "Created At"}

// ExportCandidates 生成报表。支持 stage 与 job_id 过滤，和列表端点一致。
func (h *ExportHandler) ExportCandidates(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&database.Candidate{}).Order("created_at DESC")
	if stage := c.Query("stage"); stage != "" {
		if !database.ValidStage(stage) {
			BadRequest(c, "invalid stage")
			return
		}
		query = query.Where("stage = ?", stage)
	}
	if jobID := c.Query("job_id"); jobID != "" {
		query = query.Where("job_id = ?", jobID)
	}

	var candidates []database.Candidate
	if err := query.Find(&candidates).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list candidates for export failed", slog.Any("error", err))
		Internal(c, "failed to export candidates")
		return
	}

	jobTitles, err := h.jobTitles(c, candidates)
	if err != nil {
		middleware.LoggerFromContext(c).Error("load job titles for export failed", slog.Any("error", err))
		Internal(c, "failed to export candidates")
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Candidates"
	f.SetSheetName(f.GetSheetName(0), sheet)
	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, candidate := range candidates {
		fitScore := ""
		if candidate.FitScore != nil {
			fitScore = fmt.Sprintf("%d", *candidate.FitScore)
		}
		jobTitle := ""
		if candidate.JobID != nil {
			jobTitle = jobTitles[*candidate.JobID]
		}
		values := []any{
			candidate.ID,
			candidate.Name,
			candidate.Email,
			candidate.Phone,
			candidate.Stage,
			fitScore,
			jobTitle,
			candidate.Source,
			candidate.CreatedAt.Format(time.RFC3339),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	fileName := fmt.Sprintf("candidates-%s.xlsx", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		middleware.LoggerFromContext(c).Error("write xlsx failed", slog.Any("error", err))
		return
	}
	c.Status(http.StatusOK)
}

func (h *ExportHandler) jobTitles(c *gin.Context, candidates []database.Candidate) (map[uint]string, error) {
	ids := make([]uint, 0, len(candidates))
	seen := make(map[uint]bool)
	for _, candidate := range candidates {
		if candidate.JobID != nil && !seen[*candidate.JobID] {
			seen[*candidate.JobID] = true
			ids = append(ids, *candidate.JobID)
		}
	}
	titles := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}

	var jobs []database.Job
	if err := h.db.WithContext(c.Request.Context()).Where("id IN ?", ids).Find(&jobs).Error; err != nil {
		return nil, err
	}
	for _, job := range jobs {
		titles[job.ID] = job.Title
	}
	return titles, nil
}
