package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hireHub/internal/errcode"
)

// mailRequest 是发给邮件投递服务的请求体，主题与正文已渲染完成。
type mailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// deliverMail 调用外部邮件投递服务，鉴权方式与抽取服务一致。
func deliverMail(ctx context.Context, baseURL, secret, correlationID string, payload mailRequest) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("internal api secret missing")
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return fmt.Errorf("mailer base url missing")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}

	targetURL := baseURL + "/v1/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", secret)
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request mail delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return fmt.Errorf("mail delivery status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode mail response: %w", err)
	}
	switch decoded.Code {
	case errcode.OK:
		return nil
	case errcode.MailDeliverError:
		return fmt.Errorf("mail delivery rejected: %s", decoded.Message)
	default:
		return fmt.Errorf("mail delivery failed with code %d: %s", decoded.Code, decoded.Message)
	}
}
