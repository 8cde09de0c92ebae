package resolve

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/mediasort/internal/domain"
	"github.com/John-Robertt/mediasort/internal/provider"
)

// Options 控制解析行为。
type Options struct {
	// Preferred 是首选 provider name；查询失败时按注册表名字升序降级到其余 provider。
	Preferred string
	// Strict 打开后，“多个同分候选且无精确匹配”视为歧义，直接降级而不是取第一个。
	Strict bool
}

// Resolver 把分类结果换成外部元数据，并在一次 run 的生命周期内记住答案。
//
// 约束：
// - 同名文件只查一次：结果（包括失败后的降级结果）进程内缓存，并发重复查询由 singleflight 合并
// - Resolve 永远返回可用的 Resolved：provider 全部失败时回退 Classification 原始字段并置 Degraded
// - 缓存只活在一次 run 内，不落盘；下一次 run 重新查询
type Resolver struct {
	reg  provider.Registry
	opts Options
	log  zerolog.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]domain.Resolved
}

func New(reg provider.Registry, opts Options, log zerolog.Logger) *Resolver {
	return &Resolver{
		reg:   reg,
		opts:  opts,
		log:   log.With().Str("component", "resolve").Logger(),
		cache: make(map[string]domain.Resolved),
	}
}

// Resolve 返回 cls 对应的元数据；查询失败不会中断调用方，只会降级。
func (r *Resolver) Resolve(ctx context.Context, cls domain.Classification) domain.Resolved {
	key := cacheKey(cls)

	r.mu.Lock()
	if res, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return res
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(key, func() (any, error) {
		res, cacheable := r.lookup(ctx, cls)
		if cacheable {
			r.mu.Lock()
			r.cache[key] = res
			r.mu.Unlock()
		}
		return res, nil
	})
	return v.(domain.Resolved)
}

// lookup 按降级链路逐个尝试 provider。
// 第二个返回值表示结果是否可缓存：因 ctx 取消产生的降级不缓存，
// 避免把“用户按了 Ctrl-C”固化成“查无此片”。
func (r *Resolver) lookup(ctx context.Context, cls domain.Classification) (domain.Resolved, bool) {
	for _, name := range r.order() {
		p, ok := r.reg.Get(name)
		if !ok {
			continue
		}
		cands, err := p.Search(ctx, cls.Kind, cls.Name, cls.Year)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return degraded(cls), false
			}
			r.log.Warn().Str("provider", name).Str("name", cls.Name).Err(err).Msg("查询失败，尝试下一个 provider")
			continue
		}
		if len(cands) == 0 {
			r.log.Debug().Str("provider", name).Str("name", cls.Name).Msg("无结果，尝试下一个 provider")
			continue
		}
		c, ok := r.choose(cands, cls)
		if !ok {
			r.log.Warn().Str("provider", name).Str("name", cls.Name).Int("candidates", len(cands)).Msg("候选歧义，降级为原始名称")
			return degraded(cls), true
		}
		year := c.Year
		if year == 0 {
			year = cls.Year
		}
		return domain.Resolved{
			Title:    c.Name,
			ID:       c.ID,
			Year:     year,
			Score:    c.Score,
			Provider: name,
		}, true
	}
	r.log.Warn().Str("name", cls.Name).Str("kind", string(cls.Kind)).Msg("所有 provider 均失败，降级为原始名称")
	return degraded(cls), true
}

// order 返回降级链路：首选在前，其余按名字升序。
func (r *Resolver) order() []string {
	names := r.reg.Names()
	pref := strings.ToLower(strings.TrimSpace(r.opts.Preferred))
	if pref == "" {
		return names
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == pref {
			out = append(out, n)
		}
	}
	for _, n := range names {
		if n != pref {
			out = append(out, n)
		}
	}
	return out
}

// choose 从候选里挑一个。
// 优先级：精确匹配（忽略大小写的同名 + 年份不冲突）> 最高分 > 列表顺序。
// Strict 模式下，没有精确匹配且最高分并列时视为歧义。
func (r *Resolver) choose(cands []provider.Candidate, cls domain.Classification) (provider.Candidate, bool) {
	for _, c := range cands {
		if strings.EqualFold(c.Name, cls.Name) && yearCompatible(c.Year, cls.Year) {
			return c, true
		}
	}

	best := 0
	ties := 1
	for i := 1; i < len(cands); i++ {
		switch {
		case cands[i].Score > cands[best].Score:
			best, ties = i, 1
		case cands[i].Score == cands[best].Score:
			ties++
		}
	}
	if r.opts.Strict && ties > 1 {
		return provider.Candidate{}, false
	}
	return cands[best], true
}

func yearCompatible(candidate, wanted int) bool {
	return candidate == 0 || wanted == 0 || candidate == wanted
}

func degraded(cls domain.Classification) domain.Resolved {
	return domain.Resolved{
		Title:    cls.Name,
		Year:     cls.Year,
		Degraded: true,
	}
}

func cacheKey(cls domain.Classification) string {
	return string(cls.Kind) + "|" + strings.ToLower(cls.Name) + "|" + strconv.Itoa(cls.Year)
}
