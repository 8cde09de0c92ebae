package run

import (
	"time"

	"github.com/John-Robertt/mediasort/internal/domain"
)

// Observer 用于把“运行进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在执行开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(p Params)
	// OnFileDone 在单个文件到达终态时调用；done 是当前已完成的条目数。
	OnFileDone(done int, res domain.FileResult, dur time.Duration)
}
