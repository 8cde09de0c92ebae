package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, root string, maxDepth int, ignored, exts []string) ([]string, []error) {
	t.Helper()

	w, err := New(root, maxDepth, ignored, exts, zerolog.Nop())
	require.NoError(t, err)
	ch, err := w.Walk(context.Background())
	require.NoError(t, err)

	var rels []string
	var errs []error
	for e := range ch {
		if e.Err != nil {
			errs = append(errs, e.Err)
			continue
		}
		rels = append(rels, filepath.ToSlash(e.File.RelPath))
	}
	return rels, errs
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestWalk_ExtensionFilterCaseInsensitive(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a.mkv"))
	writeFile(t, filepath.Join(root, "b.MKV"))
	writeFile(t, filepath.Join(root, "c.txt"))
	writeFile(t, filepath.Join(root, "noext"))

	rels, errs := collect(t, root, -1, nil, []string{"mkv"})
	require.Empty(t, errs)
	require.Equal(t, []string{"a.mkv", "b.MKV"}, rels)
}

func TestWalk_IgnoredDirsPrunedAtAnyDepth(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "keep.mkv"))
	writeFile(t, filepath.Join(root, "Samples", "s1.mkv"))
	writeFile(t, filepath.Join(root, "sub", "Samples", "s2.mkv"))
	writeFile(t, filepath.Join(root, "sub", "ep.mkv"))

	rels, errs := collect(t, root, -1, []string{"Samples"}, []string{"mkv"})
	require.Empty(t, errs)
	// Samples/ 下的文件无论深度预算如何都不出现在序列中。
	require.Equal(t, []string{"keep.mkv", "sub/ep.mkv"}, rels)
}

func TestWalk_MaxDepth(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "d1.mkv"))
	writeFile(t, filepath.Join(root, "a", "d2.mkv"))
	writeFile(t, filepath.Join(root, "a", "b", "d3.mkv"))

	// N=0：root 目录不被读取，序列为空。
	rels, _ := collect(t, root, 0, nil, []string{"mkv"})
	require.Empty(t, rels)

	// N=1：只读取 root 本身。
	rels, _ = collect(t, root, 1, nil, []string{"mkv"})
	require.Equal(t, []string{"d1.mkv"}, rels)

	// N=2：再降一层。
	rels, _ = collect(t, root, 2, nil, []string{"mkv"})
	require.Equal(t, []string{"d1.mkv", "a/d2.mkv"}, rels)

	// 无限制。
	rels, _ = collect(t, root, -1, nil, []string{"mkv"})
	require.Equal(t, []string{"d1.mkv", "a/d2.mkv", "a/b/d3.mkv"}, rels)
}

func TestWalk_RootIsFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	f := filepath.Join(root, "one.mkv")
	writeFile(t, f)

	rels, errs := collect(t, f, -1, nil, []string{"mkv"})
	require.Empty(t, errs)
	require.Equal(t, []string{"one.mkv"}, rels)

	// 扩展名不命中：空序列而非错误。
	rels, errs = collect(t, f, -1, nil, []string{"avi"})
	require.Empty(t, errs)
	require.Empty(t, rels)
}

// 注入目录列出失败；改写包级钩子，因此不 t.Parallel()。
func TestWalk_UnreadableSubdirContinues(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a.mkv"))
	writeFile(t, filepath.Join(root, "bad", "hidden.mkv"))
	writeFile(t, filepath.Join(root, "good", "b.mkv"))

	old := readDirFunc
	readDirFunc = func(p string) ([]os.DirEntry, error) {
		if filepath.Base(p) == "bad" {
			return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrPermission}
		}
		return os.ReadDir(p)
	}
	defer func() { readDirFunc = old }()

	w, err := New(root, -1, nil, []string{"mkv"}, zerolog.Nop())
	require.NoError(t, err)
	ch, err := w.Walk(context.Background())
	require.NoError(t, err)

	var rels []string
	var failed []Entry
	for e := range ch {
		if e.Err != nil {
			failed = append(failed, e)
			continue
		}
		rels = append(rels, filepath.ToSlash(e.File.RelPath))
	}

	// 坏目录恰好产生一条条目级失败，兄弟目录照常枚举。
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0].Err, os.ErrPermission)
	require.Equal(t, filepath.Join(root, "bad"), failed[0].Path)
	require.Equal(t, []string{"a.mkv", "good/b.mkv"}, rels)
}

func TestWalk_RootMissingIsFatal(t *testing.T) {
	t.Parallel()

	w, err := New(filepath.Join(t.TempDir(), "nope"), -1, nil, []string{"mkv"}, zerolog.Nop())
	require.NoError(t, err)

	_, err = w.Walk(context.Background())
	var re *RootError
	require.ErrorAs(t, err, &re)
}

func TestWalk_CancelStopsEmission(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	for _, n := range []string{"a", "b", "c", "d"} {
		writeFile(t, filepath.Join(root, n+".mkv"))
	}

	w, err := New(root, -1, nil, []string{"mkv"}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := w.Walk(ctx)
	require.NoError(t, err)

	// 消费一个后取消：通道必须在有限步内关闭。
	<-ch
	cancel()
	for range ch {
	}
}

func TestWalk_CandidateFields(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "a", "Show.S01E01.MKV"))

	w, err := New(root, -1, nil, []string{"mkv"}, zerolog.Nop())
	require.NoError(t, err)
	ch, err := w.Walk(context.Background())
	require.NoError(t, err)

	var got []Entry
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 1)

	c := got[0].File
	require.True(t, filepath.IsAbs(c.AbsPath))
	require.Equal(t, "Show.S01E01", c.Base)
	require.Equal(t, ".mkv", c.Ext)
	require.Equal(t, 2, c.Depth)
}
