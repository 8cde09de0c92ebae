package domain

import (
	"sort"
	"time"
)

const (
	StatusPlanned         = "planned"
	StatusSucceeded       = "succeeded"
	StatusSkippedConflict = "skipped_conflict"
	StatusUnclassified    = "unclassified"
	StatusFailed          = "failed"
)

const (
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeInputError     = "input_error"
	ErrCodeUnclassified   = "unclassified"
	ErrCodeLookupFailed   = "lookup_failed"
	ErrCodeFSFailed       = "fs_failed"
	ErrCodeTargetConflict = "target_conflict"
)

// RunReport 是对外稳定输出（stdout JSON / 日志摘要）的结构。
type RunReport struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Action Action `json:"action"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []FileResult  `json:"items"`
}

type ReportSummary struct {
	Planned         int `json:"planned"`
	Succeeded       int `json:"succeeded"`
	SkippedConflict int `json:"skipped_conflict"`
	Unclassified    int `json:"unclassified"`
	Failed          int `json:"failed"`

	// Degraded 统计 lookup 失败但仍以原始提取字段完成的条目（与上面的状态正交）。
	Degraded int `json:"degraded"`
}

type FileResult struct {
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Kind Kind   `json:"kind"` // "tv"|"movie"；unclassified/合成条目为空

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Provider string `json:"provider"`
	Degraded bool   `json:"degraded"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 src 字典序；src=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Src
		b := r.Items[j].Src
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusPlanned:
			s.Planned++
		case StatusSucceeded:
			s.Succeeded++
		case StatusSkippedConflict:
			s.SkippedConflict++
		case StatusUnclassified:
			s.Unclassified++
		case StatusFailed:
			s.Failed++
		}
		if it.Degraded {
			s.Degraded++
		}
	}
	r.Summary = s
}
