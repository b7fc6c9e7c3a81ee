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

	"hireHub/internal/dedup"
	"hireHub/internal/errcode"
)

// extractRequest 是发给抽取服务的请求体，文件以预签名 URL 方式传递。
type extractRequest struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"fileName"`
	Hash     string `json:"hash"`
}

// extractResponse 是抽取服务的响应。Code 非零表示业务失败，
// Data 整体缺失表示文档无法解析出任何结构化字段。
type extractResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    *dedup.NewData `json:"data"`
}

// requestExtraction 调用外部抽取服务。只允许 Worker 通过 Header
// 携带 INTERNAL_API_SECRET 访问。
func requestExtraction(ctx context.Context, baseURL, secret, correlationID string, payload extractRequest) (*dedup.NewData, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("internal api secret missing")
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("extractor base url missing")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode extract request: %w", err)
	}

	targetURL := baseURL + "/v1/extract"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", secret)
	if correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request extraction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return nil, fmt.Errorf("extraction status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	switch decoded.Code {
	case errcode.OK:
	case errcode.ExtractionEmpty:
		return nil, errEmptyExtraction
	case errcode.ResourceMissing:
		return nil, fmt.Errorf("extraction source missing: %s", decoded.Message)
	case errcode.ExtractionFailed, errcode.SystemError:
		return nil, fmt.Errorf("extraction failed with code %d: %s", decoded.Code, decoded.Message)
	default:
		return nil, fmt.Errorf("unexpected extraction code %d: %s", decoded.Code, decoded.Message)
	}
	if decoded.Data == nil {
		return nil, errEmptyExtraction
	}
	return decoded.Data, nil
}
