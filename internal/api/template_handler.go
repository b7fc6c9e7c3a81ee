package api

import (
	"errors"
	"net/http"
	"strings"
	"text/template"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"hireHub/internal/database"
)

// TemplateHandler 负责邮件模板的管理。
// Body 使用 text/template 语法，可用字段见 worker 的渲染上下文。
type TemplateHandler struct {
	db *gorm.DB
}

// NewTemplateHandler 构造 TemplateHandler。
func NewTemplateHandler(db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{db: db}
}

type emailTemplateRequest struct {
	Name    string `json:"name" binding:"required,max=128"`
	Subject string `json:"subject" binding:"required,max=255"`
	Body    string `json:"body" binding:"required"`
}

type emailTemplateResponse struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body,omitempty"`
}

// CreateTemplate 新建邮件模板，创建时即校验模板语法。
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req emailTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := validateTemplateSyntax(req.Subject, req.Body); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var existing database.EmailTemplate
	if err := h.db.WithContext(ctx).Where("name = ?", req.Name).First(&existing).Error; err == nil {
		Conflict(c, "template name already taken")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		Internal(c, "failed to query template")
		return
	}

	tmpl := database.EmailTemplate{
		Name:    req.Name,
		Subject: req.Subject,
		Body:    req.Body,
	}
	if err := h.db.WithContext(ctx).Create(&tmpl).Error; err != nil {
		Internal(c, "failed to create template")
		return
	}

	c.JSON(http.StatusCreated, emailTemplateResponse{
		ID:      tmpl.ID,
		Name:    tmpl.Name,
		Subject: tmpl.Subject,
	})
}

// ListTemplates 列出全部邮件模板（不含正文）。
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	var templates []database.EmailTemplate
	if err := h.db.WithContext(c.Request.Context()).
		Order("name ASC").
		Find(&templates).Error; err != nil {
		Internal(c, "failed to list templates")
		return
	}

	items := make([]emailTemplateResponse, 0, len(templates))
	for _, t := range templates {
		items = append(items, emailTemplateResponse{
			ID:      t.ID,
			Name:    t.Name,
			Subject: t.Subject,
		})
	}
	c.JSON(http.StatusOK, items)
}

// GetTemplate 返回模板详情。
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid template id")
		return
	}

	var tmpl database.EmailTemplate
	if err := h.db.WithContext(c.Request.Context()).First(&tmpl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
		} else {
			Internal(c, "failed to query template")
		}
		return
	}

	c.JSON(http.StatusOK, emailTemplateResponse{
		ID:      tmpl.ID,
		Name:    tmpl.Name,
		Subject: tmpl.Subject,
		Body:    tmpl.Body,
	})
}

// UpdateTemplate 覆盖模板内容，同样做语法校验。
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid template id")
		return
	}

	var req emailTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := validateTemplateSyntax(req.Subject, req.Body); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var tmpl database.EmailTemplate
	if err := h.db.WithContext(ctx).First(&tmpl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "template not found")
		} else {
			Internal(c, "failed to query template")
		}
		return
	}

	updates := map[string]any{
		"name":    req.Name,
		"subject": req.Subject,
		"body":    req.Body,
	}
	if err := h.db.WithContext(ctx).Model(&tmpl).Updates(updates).Error; err != nil {
		Internal(c, "failed to update template")
		return
	}

	c.JSON(http.StatusOK, emailTemplateResponse{
		ID:      tmpl.ID,
		Name:    req.Name,
		Subject: req.Subject,
	})
}

// DeleteTemplate 删除邮件模板。
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid template id")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(&database.EmailTemplate{}, id).Error; err != nil {
		Internal(c, "failed to delete template")
		return
	}
	c.Status(http.StatusNoContent)
}

func validateTemplateSyntax(subject, body string) error {
	if _, err := template.New("subject").Parse(subject); err != nil {
		return errors.New("invalid subject template: " + strings.TrimSpace(err.Error()))
	}
	if _, err := template.New("body").Parse(body); err != nil {
		return errors.New("invalid body template: " + strings.TrimSpace(err.Error()))
	}
	return nil
}
