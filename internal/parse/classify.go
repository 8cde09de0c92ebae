package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/mediasort/internal/domain"
)

// Rules 是预编译后的有序规则链（tv 在前、movie 在后）。
//
// 约束：
// - 所有 pattern 必须在任何文件被处理之前编译成功（编译失败是致命配置错误）
// - 同一列表内严格按配置顺序、首个命中者胜出
// - tv 规则永远优先于 movie 规则（与两表的书写顺序无关）：
//   名称里带年份的剧集远多于相反的情况
type Rules struct {
	TV    []*regexp.Regexp
	Movie []*regexp.Regexp
}

// Compile 编译两组规则并校验必需的命名捕获组。
// 返回的 error 带有 pattern 原文与位置，供配置层映射为 config_invalid。
func Compile(tvPatterns, moviePatterns []string) (Rules, error) {
	tv, err := compileList("tv_regex", tvPatterns, []string{"name", "season", "episode"})
	if err != nil {
		return Rules{}, err
	}
	movie, err := compileList("movie_regex", moviePatterns, []string{"name", "year"})
	if err != nil {
		return Rules{}, err
	}
	return Rules{TV: tv, Movie: movie}, nil
}

func compileList(field string, patterns []string, groups []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%s[%d] 编译失败 %q：%w", field, i, p, err)
		}
		for _, g := range groups {
			if re.SubexpIndex(g) < 0 {
				return nil, fmt.Errorf("%s[%d] 缺少命名捕获组 %q：%q", field, i, g, p)
			}
		}
		out = append(out, re)
	}
	return out, nil
}

// UnclassifiedError 表示归一化后的名字没有命中任何规则。
// 这不是故障而是稳态结果：文件被报告并跳过后续阶段。
type UnclassifiedError struct {
	Name string
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("没有规则命中 %q；文件将被跳过（如需处理请在配置中补充 tv_regex/movie_regex）", e.Name)
}

// Classify 对归一化后的名字依次尝试 tv、movie 规则。
//
// 命中条件：pattern 匹配成功且所有必需命名组非空、数字可按十进制解析
// （允许前导零）；year 至少 4 位。条件不满足时继续尝试下一条规则，
// 全部落空则返回 *UnclassifiedError。
func Classify(name string, rules Rules) (domain.Classification, error) {
	for _, re := range rules.TV {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		show := group(re, m, "name")
		season, okS := groupInt(re, m, "season")
		episode, okE := groupInt(re, m, "episode")
		if show == "" || !okS || !okE {
			continue
		}
		return domain.Classification{
			Kind:    domain.KindTV,
			Name:    show,
			Season:  season,
			Episode: episode,
		}, nil
	}

	for _, re := range rules.Movie {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		title := group(re, m, "name")
		yearStr := rawGroup(re, m, "year")
		year, okY := groupInt(re, m, "year")
		if title == "" || !okY || len(yearStr) < 4 {
			continue
		}
		return domain.Classification{
			Kind: domain.KindMovie,
			Name: title,
			Year: year,
		}, nil
	}

	return domain.Classification{}, &UnclassifiedError{Name: name}
}

func rawGroup(re *regexp.Regexp, m []string, name string) string {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(m) {
		return ""
	}
	return m[idx]
}

func group(re *regexp.Regexp, m []string, name string) string {
	return strings.TrimSpace(rawGroup(re, m, name))
}

func groupInt(re *regexp.Regexp, m []string, name string) (int, bool) {
	s := rawGroup(re, m, name)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
