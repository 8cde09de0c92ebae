package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/mediasort/internal/infra/fsx"
	"github.com/John-Robertt/mediasort/internal/parse"
)

const (
	// ErrCodeNotFound 表示无法定位配置文件（通常是拿不到 home 目录且未指定 --config）。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultProvider 是首选 provider 的内置默认值。
	DefaultProvider = "tvdb"
	// DefaultConcurrency 是并发的内置默认值（当配置未指定时）。
	DefaultConcurrency = 4
	// DefaultLookupTimeout 是单次元数据查询的超时默认值。
	DefaultLookupTimeout = 20 * time.Second
)

// defaultTOML 是首次运行时写入的配置模板。
// 它必须能被本包原样解析：字段齐全，用户只需要填 API key。
const defaultTOML = `# mediasort 配置文件。
# 首次运行自动生成；至少要把 tvdb_api_key 换成自己的 key（https://thetvdb.com/api-information）。

# TVDB v4 API key。留着占位符也能运行：查询会失败并降级为按原始文件名整理。
tvdb_api_key = "<ENTER HERE THE TVDB API KEY>"

# 处理这些扩展名的文件（不含点，大小写不敏感）。
extensions = ["mkv", "srr"]

# 电视剧文件名规则（按顺序尝试；命名组 name/season/episode 必须齐全）。
tv_regex = ['(?<name>.*) [Ss](?<season>[0-9]+)[Ee](?<episode>[0-9]+)']

# 电影文件名规则（按顺序尝试；命名组 name/year 必须齐全，年份至少 4 位数字）。
movie_regex = ['(?<name>.*) (?<year>[0-9]+) ']

# 匹配规则前按顺序应用的字面替换（from, to）。
replacements = [[".", " "]]

# 目录名精确匹配这些值时整棵子树跳过。
ignored_dirs = ["Sample", "sample", "Samples", "samples"]

# 可选项（注释掉则用默认值）：
# concurrency = 4              # 并发处理的文件数，范围 [1, 32]
# strict_resolve = false       # true：多个同分候选视为查询失败而不是取第一个
# provider = "tvdb"            # 首选元数据源：tvdb 或 imdb（imdb 不需要 key）
# lookup_timeout_seconds = 20  # 单次查询超时（秒）
`

// FileConfig 对应 config.toml 的解析结构。
// 必填字段用指针/切片区分“缺失”与“显式空值”。
type FileConfig struct {
	TVDBAPIKey   *string    `toml:"tvdb_api_key"`
	Extensions   []string   `toml:"extensions"`
	TVRegex      []string   `toml:"tv_regex"`
	MovieRegex   []string   `toml:"movie_regex"`
	Replacements [][]string `toml:"replacements"`
	IgnoredDirs  []string   `toml:"ignored_dirs"`

	Concurrency          *int    `toml:"concurrency"`
	StrictResolve        *bool   `toml:"strict_resolve"`
	Provider             *string `toml:"provider"`
	LookupTimeoutSeconds *int    `toml:"lookup_timeout_seconds"`
}

// Effective 是校验并补默认值后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
// 正则在这里就已编译完成：编译失败必须发生在处理任何文件之前。
type Effective struct {
	APIKey       string
	Extensions   []string
	Rules        parse.Rules
	Replacements []parse.Replacement
	IgnoredDirs  []string

	Concurrency   int
	StrictResolve bool
	Provider      string
	LookupTimeout time.Duration
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：无法定位配置文件：%v", e.Code, e.Err)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// DefaultPath 返回配置文件的默认位置：~/.mediasort/config.toml。
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mediasort", "config.toml"), nil
}

// Load 读取、校验并编译配置。
//
// 发现规则（固定）：
// 1) path 非空：读取该文件
// 2) path 为空：读取 ~/.mediasort/config.toml
//
// 文件不存在时把 defaultTOML 原子写入该位置并继续用它加载；
// 写入失败只影响下一次运行的便利性，本次仍用内置模板继续。
func Load(path string) (Effective, error) {
	if strings.TrimSpace(path) == "" {
		p, err := DefaultPath()
		if err != nil {
			return Effective{}, &Error{Code: ErrCodeNotFound, Err: err}
		}
		path = p
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
		// 首次运行：落一份模板，用户下次只需要改 key。
		_ = fsx.WriteFileAtomicNoOverwrite(filepath.Dir(path), filepath.Base(path), []byte(defaultTOML))
		b = []byte(defaultTOML)
	}

	var fc FileConfig
	if err := toml.Unmarshal(b, &fc); err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return build(path, fc)
}

func build(path string, fc FileConfig) (Effective, error) {
	invalid := func(err error) (Effective, error) {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	if fc.TVDBAPIKey == nil {
		return invalid(fmt.Errorf("缺少必填字段 tvdb_api_key"))
	}
	if fc.Extensions == nil {
		return invalid(fmt.Errorf("缺少必填字段 extensions"))
	}
	if fc.TVRegex == nil {
		return invalid(fmt.Errorf("缺少必填字段 tv_regex"))
	}
	if fc.MovieRegex == nil {
		return invalid(fmt.Errorf("缺少必填字段 movie_regex"))
	}
	if fc.Replacements == nil {
		return invalid(fmt.Errorf("缺少必填字段 replacements"))
	}
	if fc.IgnoredDirs == nil {
		return invalid(fmt.Errorf("缺少必填字段 ignored_dirs"))
	}

	replacements := make([]parse.Replacement, 0, len(fc.Replacements))
	for i, pair := range fc.Replacements {
		if len(pair) != 2 {
			return invalid(fmt.Errorf("replacements[%d] 必须是 [from, to] 二元组，实际有 %d 个元素", i, len(pair)))
		}
		if pair[0] == "" {
			return invalid(fmt.Errorf("replacements[%d] 的 from 不能为空", i))
		}
		replacements = append(replacements, parse.Replacement{From: pair[0], To: pair[1]})
	}

	rules, err := parse.Compile(fc.TVRegex, fc.MovieRegex)
	if err != nil {
		return invalid(err)
	}

	provider := DefaultProvider
	if fc.Provider != nil {
		provider = strings.ToLower(strings.TrimSpace(*fc.Provider))
	}
	switch provider {
	case "tvdb", "imdb":
	default:
		return invalid(fmt.Errorf("provider 只能是 tvdb 或 imdb，实际是 %q", provider))
	}

	concurrency := DefaultConcurrency
	if fc.Concurrency != nil {
		concurrency = *fc.Concurrency
	}
	// 范围约定 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	timeout := DefaultLookupTimeout
	if fc.LookupTimeoutSeconds != nil {
		if *fc.LookupTimeoutSeconds < 1 {
			return invalid(fmt.Errorf("lookup_timeout_seconds 必须 >= 1，实际是 %d", *fc.LookupTimeoutSeconds))
		}
		timeout = time.Duration(*fc.LookupTimeoutSeconds) * time.Second
	}

	strict := false
	if fc.StrictResolve != nil {
		strict = *fc.StrictResolve
	}

	return Effective{
		APIKey:        strings.TrimSpace(*fc.TVDBAPIKey),
		Extensions:    append([]string(nil), fc.Extensions...),
		Rules:         rules,
		Replacements:  replacements,
		IgnoredDirs:   append([]string(nil), fc.IgnoredDirs...),
		Concurrency:   concurrency,
		StrictResolve: strict,
		Provider:      provider,
		LookupTimeout: timeout,
	}, nil
}
