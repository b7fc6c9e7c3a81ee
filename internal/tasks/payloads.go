package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCVExtract = "cv:extract"
	TypeEmailSend = "email:send"
)

// CVExtractPayload 描述一次 CV 信息抽取所需的最小信息。
type CVExtractPayload struct {
	Hash          string `json:"hash"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewCVExtractTask 构造一个新的 CV 抽取任务。
func NewCVExtractTask(hash string, userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CVExtractPayload{
		Hash:          hash,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCVExtract, payload), nil
}

// EmailSendPayload 描述一次模板邮件发送。
type EmailSendPayload struct {
	CandidateID   uint   `json:"candidate_id"`
	TemplateID    uint   `json:"template_id"`
	ActorID       uint   `json:"actor_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewEmailSendTask 构造一个新的邮件发送任务。
func NewEmailSendTask(candidateID, templateID, actorID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(EmailSendPayload{
		CandidateID:   candidateID,
		TemplateID:    templateID,
		ActorID:       actorID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailSend, payload), nil
}
