package domain

// Kind 标记媒体类别（tv / movie）。
type Kind string

const (
	KindTV    Kind = "tv"
	KindMovie Kind = "movie"
)

// Classification 是分类阶段的结果（tagged union：Kind 决定哪些字段有效）。
//
// 约束：
// - Kind==KindTV：Name/Season/Episode 有效，Year 无意义
// - Kind==KindMovie：Name/Year 有效，Season/Episode 无意义
// - 未分类不会产生 Classification（parse 包返回 *UnclassifiedError）
type Classification struct {
	Kind    Kind
	Name    string // 从文件名提取的原始名称（已应用替换表）
	Season  int
	Episode int
	Year    int
}

// Resolved 是元数据解析结果；Degraded=true 表示 provider 查询失败/无结果，
// Title/Year 回退为 Classification 中提取的原始字段。
type Resolved struct {
	Title    string
	ID       string // provider 侧标识（如 tvdb id）；degraded 时为空
	Year     int
	Score    float64
	Provider string // 最终命中的 provider name；degraded 时为空
	Degraded bool
}

// Action 是对单个文件执行的动作（整个 run 固定一种）。
type Action string

const (
	ActionTest    Action = "test"
	ActionMove    Action = "move"
	ActionCopy    Action = "copy"
	ActionSymlink Action = "symlink"
)

// ParseAction 校验动作字符串。
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionTest, ActionMove, ActionCopy, ActionSymlink:
		return Action(s), true
	default:
		return "", false
	}
}

// Destination 是纯派生的目标描述：上游任何值变化都应重算，绝不原地修改。
type Destination struct {
	AbsPath  string
	NeedsDir bool // 父目录尚不存在，执行前需要创建
	Action   Action
}
