// Package notify 定义 worker 与 API 之间经 Redis Pub/Sub 传递的通知。
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// UserChannel 返回某个用户的通知频道名。
func UserChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

// CVProcessedMessage 在 CV 抽取完成（或失败）后推给触发上传的用户。
type CVProcessedMessage struct {
	Type          string `json:"type"`
	Hash          string `json:"hash"`
	FileName      string `json:"fileName"`
	Status        string `json:"status"`
	CandidateID   *uint  `json:"candidateId,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// EmailSentMessage 在邮件投递完成后推送。
type EmailSentMessage struct {
	Type          string `json:"type"`
	CandidateID   uint   `json:"candidateId"`
	TemplateID    uint   `json:"templateId"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Publish 序列化消息并发布到用户频道。发布失败不影响主流程，由调用方记日志。
func Publish(ctx context.Context, client redis.UniversalClient, userID uint, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notify message: %w", err)
	}
	return client.Publish(ctx, UserChannel(userID), payload).Err()
}
