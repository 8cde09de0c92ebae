package domain

// Candidate 描述一次遍历得到的候选媒体文件（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - Ext 保留最后一个 '.' 之后的部分（含点、已小写），扩展名过滤大小写不敏感
// - 一个 Candidate 只被流水线消费一次
type Candidate struct {
	AbsPath string
	RelPath string // 相对输入根；根本身是文件时等于文件名
	Base    string // 去扩展名后的文件名
	Ext     string // ".mkv"
	Depth   int    // 根为 0
}
