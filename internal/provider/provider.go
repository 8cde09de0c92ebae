package provider

import (
	"context"

	"github.com/John-Robertt/mediasort/internal/domain"
)

// Candidate 是某个元数据源返回的一个候选条目。
// Score 越大越可信；不保证跨 provider 可比，只在同一次 Search 的结果内比较。
type Candidate struct {
	Name  string
	ID    string
	Year  int
	Score float64
}

// Provider 把“站点/接口变化”限制在 provider 包内部；核心流程只依赖统一接口与稳定的 Candidate。
//
// 约束：
// - Search 不做缓存、不做去重、不做降级（这些由上层 resolve 统一实现）
// - 查不到结果返回空切片而非 error；error 只表示“查询本身失败”
// - year==0 表示调用方没有年份线索，provider 不应据此过滤
type Provider interface {
	Name() string
	Search(ctx context.Context, kind domain.Kind, name string, year int) ([]Candidate, error)
}
