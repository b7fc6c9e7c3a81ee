package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hireHub/internal/database"
	"hireHub/internal/notify"
	"hireHub/internal/tasks"
)

// EmailTaskHandler 负责消费模板邮件发送任务。
type EmailTaskHandler struct {
	db             *gorm.DB
	redisClient    redis.UniversalClient
	logger         *slog.Logger
	internalSecret string
	mailerBaseURL  string
}

// NewEmailTaskHandler 创建任务处理器。
func NewEmailTaskHandler(
	db *gorm.DB,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
	internalSecret string,
	mailerBaseURL string,
) *EmailTaskHandler {
	return &EmailTaskHandler{
		db:             db,
		redisClient:    redisClient,
		logger:         logger,
		internalSecret: internalSecret,
		mailerBaseURL:  strings.TrimRight(strings.TrimSpace(mailerBaseURL), "/"),
	}
}

// templateData 是渲染邮件模板时可用的字段。
type templateData struct {
	Name     string
	Email    string
	Stage    string
	JobTitle string
}

// ProcessTask 实现 asynq.Handler。
func (h *EmailTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.EmailSendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("candidate_id", uint64(payload.CandidateID)),
		slog.Uint64("template_id", uint64(payload.TemplateID)),
	)
	log.Info("starting email send task")

	var candidate database.Candidate
	if err := h.db.WithContext(ctx).First(&candidate, payload.CandidateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("candidate not found, skipping task")
			return nil
		}
		log.Error("query candidate failed", slog.Any("error", err))
		return err
	}
	if candidate.Email == "" {
		log.Warn("candidate has no email address, skipping task")
		return nil
	}

	var tmpl database.EmailTemplate
	if err := h.db.WithContext(ctx).First(&tmpl, payload.TemplateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("email template not found, skipping task")
			return nil
		}
		log.Error("query email template failed", slog.Any("error", err))
		return err
	}

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}
		message := notify.EmailSentMessage{
			Type:          "email_sent",
			CandidateID:   candidate.ID,
			TemplateID:    tmpl.ID,
			Status:        "failed",
			Error:         strings.TrimSpace(retErr.Error()),
			CorrelationID: payload.CorrelationID,
		}
		if err := notify.Publish(ctx, h.redisClient, payload.ActorID, message); err != nil {
			log.Error("publish email failure notification failed", slog.Any("error", err))
		}
	}()

	data := templateData{
		Name:  candidate.Name,
		Email: candidate.Email,
		Stage: candidate.Stage,
	}
	if candidate.JobID != nil {
		var job database.Job
		if err := h.db.WithContext(ctx).First(&job, *candidate.JobID).Error; err == nil {
			data.JobTitle = job.Title
		}
	}

	subject, err := renderTemplate("subject", tmpl.Subject, data)
	if err != nil {
		// 模板创建时已校验过语法，渲染失败说明模板被改坏，重试无意义。
		log.Error("render subject failed", slog.Any("error", err))
		return nil
	}
	body, err := renderTemplate("body", tmpl.Body, data)
	if err != nil {
		log.Error("render body failed", slog.Any("error", err))
		return nil
	}

	if err := deliverMail(ctx, h.mailerBaseURL, h.internalSecret, payload.CorrelationID, mailRequest{
		To:      candidate.Email,
		Subject: subject,
		Body:    body,
	}); err != nil {
		log.Error("deliver mail failed", slog.Any("error", err))
		return err
	}

	activity := database.Activity{
		CandidateID: candidate.ID,
		Kind:        "email_sent",
		Note:        fmt.Sprintf("Email %q sent to %s", tmpl.Name, candidate.Email),
		ActorID:     payload.ActorID,
	}
	if err := h.db.WithContext(ctx).Create(&activity).Error; err != nil {
		log.Error("record email activity failed", slog.Any("error", err))
		return err
	}

	message := notify.EmailSentMessage{
		Type:          "email_sent",
		CandidateID:   candidate.ID,
		TemplateID:    tmpl.ID,
		Status:        "sent",
		CorrelationID: payload.CorrelationID,
	}
	if err := notify.Publish(ctx, h.redisClient, payload.ActorID, message); err != nil {
		log.Error("publish email notification failed", slog.Any("error", err))
		return err
	}

	log.Info("email send task completed")
	return nil
}

func renderTemplate(name, text string, data templateData) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
