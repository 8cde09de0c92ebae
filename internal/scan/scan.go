package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/mediasort/internal/domain"
)

// Walker 按广度优先枚举 root 下的候选文件，并应用忽略目录、深度上限与扩展名过滤。
//
// 规则（硬约束）：
// - root 深度为 0；max depth 为 N 时，仅当目录深度 < N 才读取该目录
// - 忽略目录按名字精确匹配，且先于深度判断（任意深度的忽略目录整体跳过）
// - 扩展名取最后一个 '.' 之后的部分，大小写不敏感
// - 枚举阶段只做 ReadDir/stat，不读文件内容
type Walker struct {
	root     string // clean + absolute
	maxDepth int    // <0 表示无限
	ignored  map[string]struct{}
	exts     map[string]struct{} // 小写、不含点
	log      zerolog.Logger
}

// Entry 是惰性序列的一个元素：候选文件，或一次条目级失败（Err != nil）。
// 条目级失败不终止遍历；是否中止由消费方决定（默认继续并报告）。
type Entry struct {
	File domain.Candidate
	Err  error
	Path string // Err != nil 时出错的路径
}

// RootError 表示输入根本身不可访问/不可列出。对整个 run 是致命的。
type RootError struct {
	Root string
	Err  error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("输入根不可访问：%q：%v", e.Root, e.Err)
}

func (e *RootError) Unwrap() error { return e.Err }

// 通过可替换的函数指针，让测试能稳定注入目录列出失败。
var readDirFunc = os.ReadDir

type dirItem struct {
	path  string
	depth int
}

// New 构造 Walker。root 会被规范化为 clean + absolute。
func New(root string, maxDepth int, ignoredDirs, extensions []string, log zerolog.Logger) (*Walker, error) {
	abs, err := filepath.Abs(filepath.Clean(strings.TrimSpace(root)))
	if err != nil {
		return nil, &RootError{Root: root, Err: err}
	}

	ignored := make(map[string]struct{}, len(ignoredDirs))
	for _, d := range ignoredDirs {
		if d != "" {
			ignored[d] = struct{}{}
		}
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = struct{}{}
		}
	}

	return &Walker{
		root:     abs,
		maxDepth: maxDepth,
		ignored:  ignored,
		exts:     exts,
		log:      log,
	}, nil
}

// Root 返回规范化后的遍历根。
func (w *Walker) Root() string { return w.root }

// Walk 返回一个惰性、有限、不可重复消费的候选序列。
//
// - root 无法 stat，或 root 是目录但首次列出失败：返回 *RootError（致命）
// - 子目录不可读：作为 Entry.Err 发出并继续（非致命）
// - ctx 取消：停止产出并关闭通道；已发出的条目不受影响
func (w *Walker) Walk(ctx context.Context) (<-chan Entry, error) {
	fi, err := os.Stat(w.root)
	if err != nil {
		return nil, &RootError{Root: w.root, Err: err}
	}

	out := make(chan Entry)

	// root 本身是文件：直接按扩展名过滤，命中则作为单元素序列发出。
	if !fi.IsDir() {
		go func() {
			defer close(out)
			if c, ok := w.candidate(w.root, filepath.Base(w.root), 0); ok {
				w.send(ctx, out, Entry{File: c})
			}
		}()
		return out, nil
	}

	// max depth 为 0：root 目录不被读取，序列为空（但 root 不可访问仍是致命错误）。
	if !w.descend(0) {
		close(out)
		return out, nil
	}

	// root 目录的首次列出失败是致命的；在启动任何下游工作前同步探测。
	rootEntries, err := readDirFunc(w.root)
	if err != nil {
		return nil, &RootError{Root: w.root, Err: err}
	}

	go func() {
		defer close(out)

		// os.ReadDir 已按文件名排序，BFS 队列保证产出顺序确定。
		queue := make([]dirItem, 0, 16)
		if !w.emitDir(ctx, out, w.root, 0, rootEntries, &queue) {
			return
		}

		for len(queue) > 0 {
			if ctx.Err() != nil {
				return
			}
			d := queue[0]
			queue = queue[1:]

			entries, err := readDirFunc(d.path)
			if err != nil {
				if !w.send(ctx, out, Entry{Err: err, Path: d.path}) {
					return
				}
				continue
			}
			if !w.emitDir(ctx, out, d.path, d.depth, entries, &queue) {
				return
			}
		}
	}()
	return out, nil
}

// emitDir 处理已列出的目录内容：文件过滤后发出，子目录按剪枝/深度规则入队。
// 返回 false 表示 ctx 已取消，调用方应停止遍历。
func (w *Walker) emitDir(ctx context.Context, out chan<- Entry, dir string, depth int, entries []os.DirEntry, queue *[]dirItem) bool {
	for _, e := range entries {
		if ctx.Err() != nil {
			return false
		}
		path := filepath.Join(dir, e.Name())

		if e.IsDir() {
			// 剪枝先于深度：忽略目录在任何深度都整体跳过（不下降、不报告）。
			if _, ok := w.ignored[e.Name()]; ok {
				w.log.Debug().Str("dir", path).Msg("忽略目录（ignored_dirs 命中）")
				continue
			}
			if w.descend(depth + 1) {
				*queue = append(*queue, dirItem{path: path, depth: depth + 1})
			}
			continue
		}

		if !e.Type().IsRegular() {
			continue
		}
		if c, ok := w.candidate(path, e.Name(), depth+1); ok {
			if !w.send(ctx, out, Entry{File: c}) {
				return false
			}
		}
	}
	return true
}

// descend 判断深度为 depth 的目录是否允许被读取。
func (w *Walker) descend(depth int) bool {
	return w.maxDepth < 0 || depth < w.maxDepth
}

func (w *Walker) candidate(abs, name string, depth int) (domain.Candidate, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return domain.Candidate{}, false
	}
	if _, ok := w.exts[strings.TrimPrefix(ext, ".")]; !ok {
		return domain.Candidate{}, false
	}

	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." {
		rel = name
	}

	return domain.Candidate{
		AbsPath: abs,
		RelPath: rel,
		Base:    strings.TrimSuffix(name, filepath.Ext(name)),
		Ext:     ext,
		Depth:   depth,
	}, true
}

func (w *Walker) send(ctx context.Context, out chan<- Entry, e Entry) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
