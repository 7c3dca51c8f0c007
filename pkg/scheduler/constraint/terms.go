// Package constraint 将值班排班问题翻译为 CP-SAT 约束模型
package constraint

import (
	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"
)

// TermKind 软惩罚项类别，封闭集合
type TermKind string

const (
	// TermRelief 替补员工被使用的天数惩罚
	TermRelief TermKind = "relief_usage"
	// TermLeaveViolation 被裁剪休假申请未兑现的惩罚
	TermLeaveViolation TermKind = "leave_violation"
	// TermDoubleDuty 隔一日再值班（值-非番-值）的出现惩罚
	TermDoubleDuty TermKind = "double_duty"
	// TermDoubleDutyGap 各员工双班次数最大最小差距惩罚，仅层级 0
	TermDoubleDutyGap TermKind = "double_duty_gap"
	// TermCrossPeriod 跨期双班惩罚，上期倒数第二日值班且层级 ≥1 时生效
	TermCrossPeriod TermKind = "cross_period_double_duty"
	// TermPreference 偏好项惩罚，权重随输入给定
	TermPreference TermKind = "preference"
)

// Term 软惩罚项：类型 + 强类型载荷 + 违规计数表达式
// 不适用的载荷字段为 -1
type Term struct {
	Kind     TermKind
	Weight   int64
	Employee int
	Day      int
	Duty     int

	arg cpmodel.LinearArgument
}

// Value 在求解结果中读取该项的违规计数
func (t Term) Value(res *cmpb.CpSolverResponse) int64 {
	return cpmodel.SolutionIntegerValue(res, t.arg)
}

// Cost 该项对目标函数的贡献
func (t Term) Cost(res *cmpb.CpSolverResponse) int64 {
	return t.Weight * t.Value(res)
}

// HardKind 硬约束类别
type HardKind string

const (
	// HardExclusive 每员工每日恰好一个班种
	HardExclusive HardKind = "exclusive"
	// HardCoverage 每值班班种每日恰好一人（隔日值守班种按奇偶为 1/0）
	HardCoverage HardKind = "coverage"
	// HardRestAfterDuty 值班翌日强制非番
	HardRestAfterDuty HardKind = "rest_after_duty"
	// HardOffNeedsDuty 非番前一日必须值班
	HardOffNeedsDuty HardKind = "off_needs_duty"
	// HardNoDoubleOff 禁止连续非番
	HardNoDoubleOff HardKind = "no_double_off"
	// HardNoTripleDouble 禁止 d、d+2、d+4 三日连环值班，仅层级 0
	HardNoTripleDouble HardKind = "no_triple_double"
	// HardLeaveRequest 休假申请强制兑现（未被裁剪的部分）
	HardLeaveRequest HardKind = "leave_request"
	// HardForbiddenDay 禁排日强制休假
	HardForbiddenDay HardKind = "forbidden_day"
	// HardPriorityBan 优先度 0 的班种绝对禁止
	HardPriorityBan HardKind = "priority_ban"
	// HardCrossRest 上期最后一日值班 → 第 0 日强制非番，全层级
	HardCrossRest HardKind = "cross_period_rest"
	// HardCrossDutyBan 上期倒数第二日值班 → 第 0 日禁止值班，仅层级 0
	HardCrossDutyBan HardKind = "cross_period_duty_ban"
)

// Hard 硬约束描述记录，供诊断与层级单调性检查使用
// 不适用的载荷字段为 -1
type Hard struct {
	Kind     HardKind
	Employee int
	Day      int
	Duty     int
}
