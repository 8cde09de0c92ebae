package action

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/mediasort/internal/domain"
	"github.com/John-Robertt/mediasort/internal/infra/fsx"
)

// Outcome 是对单个文件执行动作后的结论，直接映射到 report 的状态/错误码。
type Outcome struct {
	Status    string
	ErrorCode string
	ErrorMsg  string
}

// Apply 对单个已规划的文件执行动作。
//
// 约束：
// - test 动作不触碰文件系统：既不建目录也不探测冲突，保证重复运行结果完全一致
// - 目标已存在一律跳过（skipped_conflict），绝不覆盖已有文件
// - 单个文件失败只影响自己：错误转成 Outcome，不向上抛
func Apply(src string, dst domain.Destination) Outcome {
	if dst.Action == domain.ActionTest {
		return Outcome{Status: domain.StatusPlanned}
	}

	if dst.NeedsDir {
		if err := fsx.EnsureDir(filepath.Dir(dst.AbsPath)); err != nil {
			return failure(fmt.Errorf("创建目标目录失败：%w", err))
		}
	}

	// 先探测再执行：探测让“目标已存在”走 skipped 而不是报错；
	// fsx 层的不覆盖语义（link / O_EXCL 的 EEXIST）兜住探测与执行之间的竞态。
	if _, err := os.Lstat(dst.AbsPath); err == nil {
		return Outcome{Status: domain.StatusSkippedConflict, ErrorMsg: "目标已存在：" + dst.AbsPath}
	} else if !os.IsNotExist(err) {
		return failure(fmt.Errorf("探测目标失败：%w", err))
	}

	var err error
	switch dst.Action {
	case domain.ActionMove:
		err = fsx.MoveFile(src, dst.AbsPath)
	case domain.ActionCopy:
		err = fsx.CopyFile(src, dst.AbsPath)
	case domain.ActionSymlink:
		err = fsx.Symlink(src, dst.AbsPath)
	default:
		return Outcome{
			Status:    domain.StatusFailed,
			ErrorCode: domain.ErrCodeFSFailed,
			ErrorMsg:  fmt.Sprintf("未知动作：%q", dst.Action),
		}
	}
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return Outcome{Status: domain.StatusSkippedConflict, ErrorMsg: "目标已存在：" + dst.AbsPath}
		}
		return failure(err)
	}
	return Outcome{Status: domain.StatusSucceeded}
}

func failure(err error) Outcome {
	code := domain.ErrCodeFSFailed
	if fsx.IsPathTypeConflict(err) {
		code = domain.ErrCodeTargetConflict
	}
	return Outcome{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  err.Error(),
	}
}
