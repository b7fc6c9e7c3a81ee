package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 候选人流水线阶段。Kanban 列顺序与此一致。
const (
	StageApplied   = "applied"
	StageScreening = "screening"
	StageInterview = "interview"
	StageOffer     = "offer"
	StageHired     = "hired"
	StageRejected  = "rejected"
)

// PipelineStages 按流水线顺序列出所有阶段。
var PipelineStages = []string{
	StageApplied,
	StageScreening,
	StageInterview,
	StageOffer,
	StageHired,
	StageRejected,
}

// ValidStage 判断阶段名是否合法。
func ValidStage(stage string) bool {
	for _, s := range PipelineStages {
		if s == stage {
			return true
		}
	}
	return false
}

// User 表示系统中的招聘专员账号。
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Job 表示一个在招岗位。
type Job struct {
	gorm.Model
	Title       string `gorm:"size:255"`
	Department  string `gorm:"size:128"`
	Location    string `gorm:"size:128"`
	Description string `gorm:"type:text"`
	Status      string `gorm:"size:32;default:open"` // open / closed
	Candidates  []Candidate
}

// Candidate 表示候选人记录，是去重处理的唯一持久化目标。
type Candidate struct {
	gorm.Model
	Name        string         `gorm:"size:255"`
	Email       string         `gorm:"size:255;index"`
	Phone       string         `gorm:"size:64"`
	JobID       *uint          `gorm:"index"`
	Stage       string         `gorm:"size:32;default:applied;index"`
	FitScore    *int
	CVObjectKey string         `gorm:"size:512"`
	CVHash      string         `gorm:"size:64;index"`
	Skills      datatypes.JSON `gorm:"type:jsonb"`
	Evaluation  datatypes.JSON `gorm:"type:jsonb"` // strengths / weaknesses / summary
	Source      string         `gorm:"size:64"`
}

// Activity 表示候选人时间线上的一条事件（备注、阶段变更、邮件等）。
type Activity struct {
	gorm.Model
	CandidateID uint   `gorm:"index"`
	Kind        string `gorm:"size:32"` // note / stage_change / email_sent / cv_processed
	Note        string `gorm:"type:text"`
	ActorID     uint
}

// Interview 表示一次面试安排。
type Interview struct {
	gorm.Model
	CandidateID uint      `gorm:"index"`
	JobID       *uint     `gorm:"index"`
	Interviewer string    `gorm:"size:128;index"`
	ScheduledAt time.Time `gorm:"index"`
	DurationMin int       `gorm:"default:60"`
	Location    string    `gorm:"size:255"`
	Status      string    `gorm:"size:32;default:scheduled"` // scheduled / done / cancelled
	Notes       string    `gorm:"type:text"`
}

// Checklist 表示入职/面试清单。IsTemplate 为真时是可复用模板，
// 否则挂在具体候选人名下（CandidateID 非空）。
type Checklist struct {
	gorm.Model
	Title       string         `gorm:"size:255"`
	Items       datatypes.JSON `gorm:"type:jsonb"` // [{"label": "...", "done": false}, ...]
	IsTemplate  bool           `gorm:"default:false;index"`
	CandidateID *uint          `gorm:"index"`
}

// EmailTemplate 表示可复用的邮件模板，Body 使用 text/template 语法。
type EmailTemplate struct {
	gorm.Model
	Name    string `gorm:"uniqueIndex;size:128"`
	Subject string `gorm:"size:255"`
	Body    string `gorm:"type:text"`
}

// CVDocument 表示一份已上传的 CV 文件，以内容哈希去重。
// Extracted 保存外部抽取服务产出的结构化字段，抽取失败时为空。
type CVDocument struct {
	gorm.Model
	Hash        string         `gorm:"uniqueIndex;size:64"`
	FileName    string         `gorm:"size:255"`
	ObjectKey   string         `gorm:"size:512"`
	Size        int64
	Status      string         `gorm:"size:32;default:pending"` // pending / extracted / failed
	Extracted   datatypes.JSON `gorm:"type:jsonb"`
	CandidateID *uint          `gorm:"index"`
}

// ProcessedBatch 记录已执行过的去重批次，IdempotencyKey 保证
// 部分失败后的重试不会把 create_new 批次重复落库。
type ProcessedBatch struct {
	gorm.Model
	IdempotencyKey string         `gorm:"uniqueIndex;size:64"`
	Mode           string         `gorm:"size:32"`
	Summary        datatypes.JSON `gorm:"type:jsonb"`
}
