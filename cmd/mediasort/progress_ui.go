package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/mediasort/internal/app/run"
	"github.com/John-Robertt/mediasort/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr，不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	done         int
	ok           int
	fail         int
	skip         int
	unclassified int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(params run.Params) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	hint := ""
	if params.Action == domain.ActionTest {
		hint = " (只计算目标路径，不触碰文件)"
	}
	fmt.Fprintf(p.w, "[%s] mediasort run (action=%s)%s\n", now.Format("15:04:05"), params.Action, hint)
	fmt.Fprintf(p.w, "  input: %s\n", params.Input)
	fmt.Fprintf(p.w, "  output: %s\n", params.Output)
	if params.MaxDepth >= 0 {
		fmt.Fprintf(p.w, "  max_depth: %d\n", params.MaxDepth)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnFileDone(done int, res domain.FileResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = done
	status := strings.ToUpper(res.Status)
	switch res.Status {
	case domain.StatusPlanned, domain.StatusSucceeded:
		p.ok++
		status = "OK"
		if res.Status == domain.StatusPlanned {
			status = "PLAN"
		}
	case domain.StatusSkippedConflict:
		p.skip++
		status = "SKIP"
	case domain.StatusUnclassified:
		p.unclassified++
		status = "UNCLASSIFIED"
	case domain.StatusFailed:
		p.fail++
		status = "FAIL"
	}

	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d] %s %s %s: %s (%s)\n",
			done, res.Src, status, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	case domain.StatusUnclassified:
		fmt.Fprintf(p.w, "[%d] %s %s (%s)\n", done, res.Src, status, formatShortDuration(dur))
	default:
		note := ""
		if res.Degraded {
			note = " degraded"
		}
		fmt.Fprintf(p.w, "[%d] %s %s -> %s%s (%s)\n",
			done, res.Src, status, res.Dst, note, formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()
}

// Stop 结束 keepalive ticker；run 返回后由 CLI 调用，避免结束打印后又冒出进度行。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d ok=%d skip=%d unclassified=%d fail=%d elapsed=%s\n",
						p.done, p.ok, p.skip, p.unclassified, p.fail, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
