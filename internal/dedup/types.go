package dedup

import "time"

// ExistingCandidate 是检测时刻已存储候选人的快照。
type ExistingCandidate struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CVLink    string    `json:"cv_link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Stage     string    `json:"stage"`
	FitScore  *int      `json:"fit_score,omitempty"`
}

// NewData 是新 CV 抽取出的结构化字段，抽取失败时整体缺失。
type NewData struct {
	Name       string   `json:"name,omitempty"`
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	FitScore   *int     `json:"fit_score,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
	Evaluation string   `json:"evaluation,omitempty"`
	Stage      string   `json:"stage,omitempty"`
}

// Duplicate 表示一次上传文件与一个已存储候选人之间的冲突。
// ID 仅在本批次内有意义，不落库。
// 不变式：恰有一个 Existing，至多一个 NewData。
type Duplicate struct {
	ID        string            `json:"id"`
	FileName  string            `json:"fileName"`
	FileURL   string            `json:"file_url,omitempty"`
	Hash      string            `json:"hash"`
	Existing  ExistingCandidate `json:"existingCandidate"`
	NewData   *NewData          `json:"newData,omitempty"`
	Suggested Action            `json:"suggestedAction"`
	Reason    string            `json:"reason"`
}

// BatchItem 是提交给批处理端点的最小元组。
type BatchItem struct {
	CandidateID uint   `json:"candidateId"`
	FileName    string `json:"fileName"`
	Hash        string `json:"hash"`
}

// Batch 是一组共享同一有效动作的冲突项，作为一个请求提交。
// IdempotencyKey 在重试时保持不变，服务端据此拒绝重复落库。
type Batch struct {
	Mode           Action      `json:"mode"`
	IdempotencyKey string      `json:"idempotency_key"`
	Items          []BatchItem `json:"duplicates"`
}
