package plan

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/mediasort/internal/domain"
)

// Build 由分类结果 + 解析出的元数据确定性地合成目标路径（纯函数，不触碰文件系统）。
//
// 布局（Plex 约定）：
// - tv：   <output>/<Show>/Season <SS>/<Show> - S<SS>E<EE>.<ext>
// - movie：<output>/<Name> (<Year>)/<Name> (<Year>).<ext>
// season/episode 补零到至少 2 位。名称先经 Sanitize 再拼接。
func Build(outputRoot string, cls domain.Classification, res domain.Resolved, ext string, action domain.Action) domain.Destination {
	title := strings.TrimSpace(res.Title)
	if title == "" {
		title = strings.TrimSpace(cls.Name)
	}
	title = Sanitize(title)

	var rel string
	switch cls.Kind {
	case domain.KindTV:
		season := fmt.Sprintf("%02d", cls.Season)
		episode := fmt.Sprintf("%02d", cls.Episode)
		rel = filepath.Join(
			title,
			"Season "+season,
			fmt.Sprintf("%s - S%sE%s%s", title, season, episode, ext),
		)
	case domain.KindMovie:
		year := res.Year
		if year == 0 {
			year = cls.Year
		}
		dir := fmt.Sprintf("%s (%d)", title, year)
		rel = filepath.Join(dir, dir+ext)
	}

	return domain.Destination{
		AbsPath: filepath.Join(outputRoot, rel),
		// EnsureDir 幂等，非 test 模式一律要求执行前确保父目录存在。
		NeedsDir: action != domain.ActionTest,
		Action:   action,
	}
}

// Sanitize 把路径分隔符与目标平台保留字符替换为安全占位符。
//
// 幂等：对已清洗的名字再次清洗是 no-op（占位符 '_' 本身合法）。
func Sanitize(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
	return strings.TrimSpace(sanitized)
}
