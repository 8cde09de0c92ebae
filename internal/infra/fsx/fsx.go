package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV 等错误。
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
)

// PathTypeConflictError 表示目标路径类型冲突（例如期望目录但实际是文件）。
// 上层可把它映射为 error_code=target_conflict。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示跨盘（EXDEV）导致的 rename 失败。
// 直接调用 Rename 的场景自行决定如何退化。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动（EXDEV）：%q -> %q：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// MoveFile 把 src 移动到 dst，绝不覆盖已存在的目标。
//
// - 先用硬链接占住目标：link(2) 对已存在的目标返回 EEXIST，所以并发写同一
//   目标时只有一个赢家，其余拿到 os.ErrExist（rename 会静默替换，不能用）
// - 占住成功后删除源，完成移动
// - 源不存在或目标父目录缺失：原样返回
// - 其他 link 失败（EXDEV 跨盘、文件系统不支持硬链接）：退化为两阶段
//   copy+delete；CopyFile 以 O_EXCL 创建目标，同样不覆盖，copy 失败时
//   删除残留的目标文件，源文件保持原样（失败后不留部分状态）
func MoveFile(src, dst string) error {
	err := linkFunc(src, dst)
	if err == nil {
		if err := os.Remove(src); err != nil {
			// 目标与源此刻共享同一 inode，数据不会丢；不回滚目标，原样上报。
			return fmt.Errorf("移动：目标已写出但删除源失败：%w", err)
		}
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		return os.ErrExist
	}
	if errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := CopyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		// 目标已完整写出；删除源失败时不回滚目标（回滚反而可能丢数据），原样上报。
		return fmt.Errorf("跨盘移动：目标已写出但删除源失败：%w", err)
	}
	return nil
}

// CopyFile 复制文件内容与修改时间到 dst。
//
// - dst 以 O_EXCL 创建：已存在返回 os.ErrExist（绝不覆盖，这是并发同目标时的
//   最后一道安全网）
// - 任何失败都会删除已创建的 dst，不留部分文件
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fi.Mode().Perm())
	if err != nil {
		return err
	}

	cleanup := func(e error) error {
		_ = out.Close()
		_ = os.Remove(dst)
		return e
	}

	if _, err := io.Copy(out, in); err != nil {
		return cleanup(err)
	}
	if err := out.Sync(); err != nil {
		return cleanup(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	// 时间戳尽量保真；atime 多数文件系统本就不可靠，统一用 mtime。
	if err := os.Chtimes(dst, fi.ModTime(), fi.ModTime()); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// Symlink 在 dst 创建指向 src 绝对路径的符号链接。
// 只要求创建时 src 存在；不读取、不校验链接目标内容。
func Symlink(src, dst string) error {
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); err != nil {
		return err
	}
	return os.Symlink(abs, dst)
}

// EnsureDir 确保 dir 存在且是目录（幂等）。
// 已存在的非目录返回 PathTypeConflictError。
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteFileAtomicNoOverwrite 在 dir 下原子写入 name（临时文件 + rename）。
//
// - 目标已存在：返回 os.ErrExist（目录/非常规文件返回 PathTypeConflictError）
// - 临时文件与目标同目录，保证 rename 的原子性
// - 目录 fsync 采用 best-effort（平台差异大，失败不当作错误）
func WriteFileAtomicNoOverwrite(dir, name string, data []byte) error {
	dst := filepath.Join(filepath.Clean(dir), name)
	if fi, err := os.Lstat(dst); err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		if !fi.Mode().IsRegular() {
			return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
		}
		return os.ErrExist
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := Rename(tmpName, dst); err != nil {
		return err
	}

	_ = syncDirBestEffort(dir)
	return nil
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
