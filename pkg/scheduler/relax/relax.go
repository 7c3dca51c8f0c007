// Package relax 实现四级约束缓和状态机
//
// 层级只升不降：每个边界对应一个转移增量，模型构建方根据增量
// 决定纳入哪些约束与惩罚项，层级 3 额外触发一次破坏性的输入裁剪。
package relax

import (
	"fmt"
	"sort"

	"github.com/zhiban/zhiban/pkg/model"
)

// Level 缓和层级
type Level int

const (
	// Level0 全部约束与惩罚项生效
	Level0 Level = iota
	// Level1 放弃双班差距均衡项
	Level1
	// Level2 替补使用惩罚降至低位，允许兜底补位
	Level2
	// Level3 裁剪休假申请后重建模型
	Level3

	numLevels
)

// MaxTrim 层级 3 单次裁剪的休假申请数
const MaxTrim = 2

func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Delta 当前层级对下一次模型构建的全部影响
type Delta struct {
	Level Level
	// DropDoubleDutyGap 为 true 时不构建双班次数差距项（层级 ≥1）
	DropDoubleDutyGap bool
	// ReliefDivisor 替补惩罚权重的除数，10^level，随层级升高惩罚快速塌缩
	ReliefDivisor int64
	// TrimLeave 为 true 时在重建前先裁剪休假申请（层级 3）
	TrimLeave bool
}

func deltaFor(l Level) Delta {
	divisor := int64(1)
	for i := Level0; i < l; i++ {
		divisor *= 10
	}
	return Delta{
		Level:             l,
		DropDoubleDutyGap: l >= Level1,
		ReliefDivisor:     divisor,
		TrimLeave:         l == Level3,
	}
}

var transitions = map[Level]string{
	Level1: "放弃双班差距均衡后重试",
	Level2: "降低替补使用惩罚后重试",
	Level3: "裁剪部分休假申请后重试",
}

var outcomeText = map[model.Outcome]string{
	model.OutcomeInfeasible: "证明无解",
	model.OutcomeUnknown:    "预算耗尽未获证明",
}

// Controller 缓和状态机
// 一次求解会话内层级单调递增，终止于首个可行解或层级 3 失败
type Controller struct {
	level     Level
	notes     []string
	exhausted bool
}

// NewController 创建状态机，初始层级 0
func NewController() *Controller {
	return &Controller{}
}

// Level 当前层级
func (c *Controller) Level() Level { return c.level }

// Delta 当前层级的构建增量
func (c *Controller) Delta() Delta { return deltaFor(c.level) }

// Exhausted 是否已终态失败
func (c *Controller) Exhausted() bool { return c.exhausted }

// Notes 已累积的缓和说明，按发生顺序
func (c *Controller) Notes() []string { return c.notes }

// Advance 当前层级失败后推进状态机
// 把本层级的归类结果写入说明轨迹；层级 3 失败后返回 false 并进入终态
func (c *Controller) Advance(outcome model.Outcome) bool {
	why := outcomeText[outcome]
	if why == "" {
		why = string(outcome)
	}

	if c.level >= Level3 {
		c.notes = append(c.notes, fmt.Sprintf("层级 %d %s，全部缓和层级已用尽", c.level, why))
		c.exhausted = true
		return false
	}

	next := c.level + 1
	c.notes = append(c.notes, fmt.Sprintf("层级 %d %s，%s", c.level, why, transitions[next]))
	c.level = next
	return true
}

// Note 追加一条缓和说明（例如裁剪记录）
func (c *Controller) Note(note string) {
	c.notes = append(c.notes, note)
}

// TrimLeave 层级 3 的确定性休假裁剪
//
// 找出休假申请最多的员工（并列时取下标最小者）；其申请数大于
// MaxTrim 时按日期从早到晚移除恰好 MaxTrim 条，否则不做任何修改。
// 返回保留集合与被移除集合，输入切片不被修改。
func TrimLeave(requests []model.LeaveRequest) (kept, removed []model.LeaveRequest) {
	byEmployee := make(map[int][]int)
	for _, r := range requests {
		byEmployee[r.Employee] = append(byEmployee[r.Employee], r.Day)
	}

	target, most := -1, 0
	for e, days := range byEmployee {
		if len(days) > most || (len(days) == most && target >= 0 && e < target) {
			target, most = e, len(days)
		}
	}
	if target < 0 || most <= MaxTrim {
		return append([]model.LeaveRequest(nil), requests...), nil
	}

	days := byEmployee[target]
	sort.Ints(days)
	drop := make(map[int]bool, MaxTrim)
	for _, d := range days[:MaxTrim] {
		drop[d] = true
	}

	for _, r := range requests {
		if r.Employee == target && drop[r.Day] {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Day < removed[j].Day })
	return kept, removed
}

// TrimNote 生成裁剪记录的可读说明
func TrimNote(p *model.Problem, removed []model.LeaveRequest) string {
	if len(removed) == 0 {
		return ""
	}
	name := p.Employees[removed[0].Employee].Name
	days := ""
	for i, r := range removed {
		if i > 0 {
			days += "、"
		}
		days += fmt.Sprintf("第%d日", r.Day+1)
	}
	return fmt.Sprintf("休假裁剪: %s 的 %s 休假申请改为可排班", name, days)
}
