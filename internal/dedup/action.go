package dedup

import "fmt"

// Action 是去重冲突的解决方式，四种取值构成封闭集合。
type Action string

const (
	ActionMerge     Action = "merge"
	ActionReplace   Action = "replace"
	ActionCreateNew Action = "create_new"
	ActionSkip      Action = "skip"
)

// Actions 按展示顺序列出全部动作。
var Actions = []Action{ActionMerge, ActionReplace, ActionCreateNew, ActionSkip}

// ParseAction 把外部传入的字符串转换为 Action。
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionMerge, ActionReplace, ActionCreateNew, ActionSkip:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown resolution action %q", s)
	}
}

// Valid 判断动作是否属于封闭集合。
func (a Action) Valid() bool {
	switch a {
	case ActionMerge, ActionReplace, ActionCreateNew, ActionSkip:
		return true
	}
	return false
}

// Mutates 标记该动作是否会向候选人存储发起变更请求。
// skip 是终态的 no-op，永远不会产生请求。
func (a Action) Mutates() bool {
	return a.Valid() && a != ActionSkip
}
