package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/John-Robertt/mediasort/internal/app/run"
	"github.com/John-Robertt/mediasort/internal/config"
	"github.com/John-Robertt/mediasort/internal/domain"
	"github.com/John-Robertt/mediasort/internal/infra/httpx"
	"github.com/John-Robertt/mediasort/internal/provider"
	"github.com/John-Robertt/mediasort/internal/provider/imdb"
	"github.com/John-Robertt/mediasort/internal/provider/tvdb"
)

func main() {
	app := &cli.App{
		Name:  "mediasort",
		Usage: "按元数据把电影/剧集文件整理成媒体库布局",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "输入目录（或单个文件）"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "输出根目录"},
			&cli.IntFlag{Name: "max-depth", Value: -1, Usage: "目录下降深度上限；负数表示无限"},
			&cli.StringFlag{Name: "action", Value: string(domain.ActionTest), Usage: "对每个文件执行的动作：test|move|copy|symlink"},
			&cli.StringFlag{Name: "config", Usage: "配置文件路径（默认 ~/.mediasort/config.toml）"},
			&cli.BoolFlag{Name: "verbose", Usage: "输出 debug 级日志（排查配置/规则问题时有用）"},
		},
		Action: rootAction,
	}

	if err := app.Run(os.Args); err != nil {
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(ec.ExitCode())
		}
		// 非 ExitCoder 的错误来自 flag 解析：按用法错误处理。
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func rootAction(c *cli.Context) error {
	act, ok := domain.ParseAction(c.String("action"))
	if !ok {
		return cli.Exit(fmt.Sprintf("参数错误：--action 只能是 test|move|copy|symlink，实际是 %q", c.String("action")), 2)
	}

	log := setupLogger(c.Bool("verbose"))

	eff, err := config.Load(c.String("config"))
	if err != nil {
		log.Error().Err(err).Msg("加载配置失败")
		emitReport(reportForConfigError(c, act, err))
		return cli.Exit("", 1)
	}

	client := httpx.NewClient(eff.LookupTimeout)
	reg, err := provider.NewRegistry(
		tvdb.New(eff.APIKey, client),
		imdb.New(client),
	)
	if err != nil {
		log.Error().Err(err).Msg("初始化 provider registry 失败")
		return cli.Exit("", 1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obs run.Observer
	var ui *progressUI
	if isTTY(os.Stderr) {
		ui = newProgressUI(os.Stderr)
		obs = ui
	}

	rr := run.ExecuteWithObserver(ctx, eff, run.Params{
		Input:    c.String("input"),
		Output:   c.String("output"),
		MaxDepth: c.Int("max-depth"),
		Action:   act,
	}, reg, log, obs)
	if ui != nil {
		ui.Stop()
	}

	emitReport(rr)
	if rr.Summary.Failed > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

// setupLogger 组合两个输出：stderr 的 console writer + 按大小轮转的文件日志。
// stdout 绝不承载日志（保持 JSON 报告契约）。
func setupLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}}
	if home, err := os.UserHomeDir(); err == nil {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(home, ".mediasort", "mediasort.log"),
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // 天
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
}

// emitReport 遵守输出契约：
// - stdout 是 TTY：打印人类可读摘要；失败明细走 stderr
// - stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）
func emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：planned=%d succeeded=%d skipped=%d unclassified=%d failed=%d degraded=%d",
		rr.Summary.Planned, rr.Summary.Succeeded, rr.Summary.SkippedConflict,
		rr.Summary.Unclassified, rr.Summary.Failed, rr.Summary.Degraded,
	)

	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.Src
			if key == "" {
				key = "<run>"
			}
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summary)
}

func reportForConfigError(c *cli.Context, act domain.Action, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = config.ErrCodeInvalid
	}
	rr := domain.RunReport{
		Input:      c.String("input"),
		Output:     c.String("output"),
		Action:     act,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.FileResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
