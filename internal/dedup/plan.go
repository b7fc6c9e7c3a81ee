package dedup

import "github.com/google/uuid"

// Plan 是操作员在一轮去重会话中的全部选择，可序列化、可独立测试。
// Individual 缺项时以冲突项自带的 Suggested 作为默认值，
// 因此 Effective 对任意冲突集合都是全函数。
type Plan struct {
	Individual   map[string]Action `json:"individual"`
	SelectedMode *Action           `json:"selected_mode,omitempty"`

	// keys 按模式缓存幂等键：同一个 Plan 重复提交（重试）时键不变。
	keys map[Action]string
}

// NewPlan 构造空的选择状态。
func NewPlan() *Plan {
	return &Plan{
		Individual: make(map[string]Action),
		keys:       make(map[Action]string),
	}
}

// Set 记录操作员对单个冲突项的覆盖选择。
func (p *Plan) Set(duplicateID string, action Action) {
	if p.Individual == nil {
		p.Individual = make(map[string]Action)
	}
	p.Individual[duplicateID] = action
}

// ApplyAll 把所有冲突项的选择统一覆盖为同一动作（全部合并/全部跳过）。
func (p *Plan) ApplyAll(action Action, duplicates []Duplicate) {
	for _, d := range duplicates {
		p.Set(d.ID, action)
	}
	p.SelectedMode = &action
}

// ApplySuggestions 把每个冲突项重置为上游建议，覆盖任何已有选择。幂等。
func (p *Plan) ApplySuggestions(duplicates []Duplicate) {
	for _, d := range duplicates {
		p.Set(d.ID, d.Suggested)
	}
	p.SelectedMode = nil
}

// Effective 返回冲突项的有效动作：操作员覆盖优先，否则用上游建议。
func (p *Plan) Effective(d Duplicate) Action {
	if p != nil && p.Individual != nil {
		if a, ok := p.Individual[d.ID]; ok && a.Valid() {
			return a
		}
	}
	return d.Suggested
}

// Empty 表示操作员既没有逐项选择也没有选定批量模式。
// 这种状态下的提交会被拒绝（见 Resolver）。
func (p *Plan) Empty() bool {
	return p == nil || (len(p.Individual) == 0 && p.SelectedMode == nil)
}

// SeedKeys 预先写入各模式的幂等键。重试方带上上一次返回的键，
// 服务端就能识别已落库的批次。非法动作名的条目被忽略。
func (p *Plan) SeedKeys(keys map[string]string) {
	if p.keys == nil {
		p.keys = make(map[Action]string)
	}
	for mode, key := range keys {
		action := Action(mode)
		if action.Valid() && key != "" {
			p.keys[action] = key
		}
	}
}

// batchKey 返回某个模式的幂等键，首次访问时生成。
func (p *Plan) batchKey(mode Action) string {
	if p.keys == nil {
		p.keys = make(map[Action]string)
	}
	if key, ok := p.keys[mode]; ok {
		return key
	}
	key := uuid.NewString()
	p.keys[mode] = key
	return key
}
