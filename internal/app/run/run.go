package run

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/mediasort/internal/action"
	"github.com/John-Robertt/mediasort/internal/config"
	"github.com/John-Robertt/mediasort/internal/domain"
	"github.com/John-Robertt/mediasort/internal/parse"
	"github.com/John-Robertt/mediasort/internal/plan"
	"github.com/John-Robertt/mediasort/internal/provider"
	"github.com/John-Robertt/mediasort/internal/resolve"
	"github.com/John-Robertt/mediasort/internal/scan"
)

// Params 是一次 run 的入口参数（来自 CLI，配置文件不参与）。
type Params struct {
	Input    string
	Output   string
	MaxDepth int // <0 表示无限
	Action   domain.Action
}

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）；
// 只有配置无效与输入根不可访问才会让 run 空转着结束。
func Execute(ctx context.Context, eff config.Effective, p Params, reg provider.Registry, log zerolog.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, p, reg, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.Effective, p Params, reg provider.Registry, log zerolog.Logger, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(p)
	}

	rr := domain.RunReport{
		Input:     p.Input,
		Output:    p.Output,
		Action:    p.Action,
		StartedAt: started,
		Items:     make([]domain.FileResult, 0, 128),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	outputRoot, err := filepath.Abs(filepath.Clean(p.Output))
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInputError, fmt.Sprintf("输出路径无效：%v", err)))
		return finish()
	}

	walker, err := scan.New(p.Input, p.MaxDepth, eff.IgnoredDirs, eff.Extensions, log)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInputError, err.Error()))
		return finish()
	}
	rr.Input = walker.Root()

	entries, err := walker.Walk(ctx)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInputError, err.Error()))
		return finish()
	}

	resolver := resolve.New(reg, resolve.Options{
		Preferred: eff.Provider,
		Strict:    eff.StrictResolve,
	}, log)

	// 执行阶段：按文件并发（worker pool），单个文件内串行。
	// walker 是唯一生产者；resolver 缓存是唯一共享可变状态。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}

	type fileResult struct {
		res domain.FileResult
		dur time.Duration
	}
	results := make(chan fileResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range entries {
				oneStarted := time.Now()
				var r domain.FileResult
				if e.Err != nil {
					r = domain.FileResult{
						Src:       e.Path,
						Status:    domain.StatusFailed,
						ErrorCode: domain.ErrCodeInputError,
						ErrorMsg:  e.Err.Error(),
					}
				} else {
					r = processOne(ctx, eff, p, e.File, outputRoot, resolver, log)
				}
				results <- fileResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		if obs != nil {
			obs.OnFileDone(done, it.res, it.dur)
		}
		logFileResult(log, it.res)
	}

	return finish()
}

// processOne 把单个候选文件推进到终态：normalize → classify → resolve → plan → apply。
func processOne(ctx context.Context, eff config.Effective, p Params, c domain.Candidate, outputRoot string, resolver *resolve.Resolver, log zerolog.Logger) domain.FileResult {
	stem := parse.Normalize(c.Base, eff.Replacements)

	cls, err := parse.Classify(stem, eff.Rules)
	if err != nil {
		// 未分类是稳态结果：报告并跳过后续阶段，不算失败。
		return domain.FileResult{
			Src:       c.RelPath,
			Status:    domain.StatusUnclassified,
			ErrorCode: domain.ErrCodeUnclassified,
			ErrorMsg:  err.Error(),
		}
	}

	// 每次查询一个独立的超时；取消传播自外层 ctx。
	lctx, cancel := context.WithTimeout(ctx, eff.LookupTimeout)
	res := resolver.Resolve(lctx, cls)
	cancel()

	dst := plan.Build(outputRoot, cls, res, c.Ext, p.Action)
	out := action.Apply(c.AbsPath, dst)

	dstRel := dst.AbsPath
	if rel, err := filepath.Rel(outputRoot, dst.AbsPath); err == nil {
		dstRel = rel
	}

	fr := domain.FileResult{
		Src:       c.RelPath,
		Dst:       dstRel,
		Kind:      cls.Kind,
		Status:    out.Status,
		ErrorCode: out.ErrorCode,
		ErrorMsg:  out.ErrorMsg,
		Provider:  res.Provider,
		Degraded:  res.Degraded,
	}
	// 动作本身成功但元数据降级：错误码记 lookup_failed，状态不受影响。
	if res.Degraded && fr.ErrorCode == "" {
		fr.ErrorCode = domain.ErrCodeLookupFailed
		if fr.ErrorMsg == "" {
			fr.ErrorMsg = fmt.Sprintf("元数据查询失败，按原始名称 %q 处理", cls.Name)
		}
	}
	return fr
}

func syntheticFailed(code, msg string) domain.FileResult {
	return domain.FileResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func logFileResult(log zerolog.Logger, r domain.FileResult) {
	ev := log.Info()
	if r.Status == domain.StatusFailed {
		ev = log.Error()
	}
	ev.Str("src", r.Src).
		Str("dst", r.Dst).
		Str("status", r.Status).
		Str("error_code", r.ErrorCode).
		Bool("degraded", r.Degraded).
		Msg("文件处理完成")
}
