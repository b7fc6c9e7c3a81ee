package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hireHub/internal/database"
)

// JobHandler 负责岗位的增删改查。
type JobHandler struct {
	db *gorm.DB
}

// NewJobHandler 构造 JobHandler。
func NewJobHandler(db *gorm.DB) *JobHandler {
	return &JobHandler{db: db}
}

type jobRequest struct {
	Title       string `json:"title" binding:"required"`
	Department  string `json:"department"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type jobResponse struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Department  string `json:"department,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Candidates  int64  `json:"candidates"`
}

// CreateJob 新建岗位，默认状态 open。
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	status := req.Status
	if status == "" {
		status = "open"
	}
	if status != "open" && status != "closed" {
		BadRequest(c, "status must be open or closed")
		return
	}

	job := database.Job{
		Title:       req.Title,
		Department:  req.Department,
		Location:    req.Location,
		Description: req.Description,
		Status:      status,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&job).Error; err != nil {
		Internal(c, "failed to create job")
		return
	}

	c.JSON(http.StatusCreated, newJobResponse(job, 0))
}

// ListJobs 列出岗位，可按状态过滤。
func (h *JobHandler) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	query := h.db.WithContext(ctx).Model(&database.Job{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var jobs []database.Job
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		Internal(c, "failed to list jobs")
		return
	}

	items := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		var count int64
		if err := h.db.WithContext(ctx).
			Model(&database.Candidate{}).
			Where("job_id = ?", job.ID).
			Count(&count).Error; err != nil {
			Internal(c, "failed to count candidates")
			return
		}
		items = append(items, newJobResponse(job, count))
	}

	c.JSON(http.StatusOK, items)
}

// GetJob 返回单个岗位。
func (h *JobHandler) GetJob(c *gin.Context) {
	job, count, err := h.loadJob(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, newJobResponse(*job, count))
}

// UpdateJob 覆盖岗位字段。
func (h *JobHandler) UpdateJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	job, _, err := h.loadJob(c)
	if err != nil {
		return
	}

	updates := map[string]any{
		"title":       req.Title,
		"department":  req.Department,
		"location":    req.Location,
		"description": req.Description,
	}
	if req.Status != "" {
		if req.Status != "open" && req.Status != "closed" {
			BadRequest(c, "status must be open or closed")
			return
		}
		updates["status"] = req.Status
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Model(job).Updates(updates).Error; err != nil {
		Internal(c, "failed to update job")
		return
	}
	if err := h.db.WithContext(ctx).First(job, job.ID).Error; err != nil {
		Internal(c, "failed to reload job")
		return
	}

	c.JSON(http.StatusOK, newJobResponse(*job, 0))
}

// DeleteJob 删除岗位，候选人保留但解除关联。
func (h *JobHandler) DeleteJob(c *gin.Context) {
	job, _, err := h.loadJob(c)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).
		Model(&database.Candidate{}).
		Where("job_id = ?", job.ID).
		Update("job_id", nil).Error; err != nil {
		Internal(c, "failed to detach candidates")
		return
	}
	if err := h.db.WithContext(ctx).Delete(&database.Job{}, job.ID).Error; err != nil {
		Internal(c, "failed to delete job")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *JobHandler) loadJob(c *gin.Context) (*database.Job, int64, error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid job id")
		return nil, 0, err
	}

	ctx := c.Request.Context()
	var job database.Job
	if err := h.db.WithContext(ctx).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
		} else {
			Internal(c, "failed to query job")
		}
		return nil, 0, err
	}

	var count int64
	if err := h.db.WithContext(ctx).
		Model(&database.Candidate{}).
		Where("job_id = ?", job.ID).
		Count(&count).Error; err != nil {
		Internal(c, "failed to count candidates")
		return nil, 0, err
	}
	return &job, count, nil
}

func newJobResponse(job database.Job, candidates int64) jobResponse {
	return jobResponse{
		ID:          job.ID,
		Title:       job.Title,
		Department:  job.Department,
		Location:    job.Location,
		Description: job.Description,
		Status:      job.Status,
		Candidates:  candidates,
	}
}
