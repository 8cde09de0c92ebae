package parse

import "strings"

// Replacement 是一条字面量替换（from -> to），不涉及正则。
type Replacement struct {
	From string
	To   string
}

// Normalize 按配置顺序对文件名主干应用替换表。
//
// 语义（硬约束）：
// - 每条替换对"当前值"做一次完整遍历（所有非重叠出现一次替换）
// - 替换对不会被重复应用；后面替换产生的文本不会被前面的替换重新扫描
// - 纯函数：相同输入 + 相同配置 => 相同输出
func Normalize(stem string, replacements []Replacement) string {
	for _, r := range replacements {
		if r.From == "" {
			// 空 from 会让 ReplaceAll 在每个 rune 间插入 to；配置层已拒绝，这里兜底跳过。
			continue
		}
		stem = strings.ReplaceAll(stem, r.From, r.To)
	}
	return stem
}
