package watch

import "github.com/tatrishvili/sae302/pkg/htmlfix"

// 事件状态
const (
	StatusFixed     = "fixed"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
)

// Event 一次自动修复的结果
type Event struct {
	Path         string               `json:"path"`
	Timestamp    int64                `json:"timestamp"`
	Status       string               `json:"status"`
	Replacements int                  `json:"replacements,omitempty"`
	Rules        []htmlfix.RuleResult `json:"rules,omitempty"`
	Error        string               `json:"error,omitempty"`
}
