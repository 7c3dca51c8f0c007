package model

import "time"

// Assignment 求解得到的排班矩阵
type Assignment struct {
	Days      int         `json:"days"`
	DutyCount int         `json:"duty_count"`
	Shifts    [][]ShiftID `json:"shifts"` // [员工][日] → 班种
}

// NewAssignment 创建空排班矩阵
func NewAssignment(nEmployees, days, dutyCount int) *Assignment {
	shifts := make([][]ShiftID, nEmployees)
	for e := range shifts {
		shifts[e] = make([]ShiftID, days)
	}
	return &Assignment{Days: days, DutyCount: dutyCount, Shifts: shifts}
}

// ShiftAt 某员工某日的班种
func (a *Assignment) ShiftAt(employee, day int) ShiftID {
	return a.Shifts[employee][day]
}

// OnDuty 某员工某日是否在值班班种上
func (a *Assignment) OnDuty(employee, day int) bool {
	return int(a.Shifts[employee][day]) < a.DutyCount
}

// Rows 按员工返回班种名序列，供导出层使用
func (a *Assignment) Rows(p *Problem) map[string][]string {
	rows := make(map[string][]string, len(a.Shifts))
	for e := range a.Shifts {
		row := make([]string, a.Days)
		for d := 0; d < a.Days; d++ {
			row[d] = p.ShiftName(a.Shifts[e][d])
		}
		rows[p.Employees[e].Name] = row
	}
	return rows
}

// Outcome 单次求解尝试的归类结果
type Outcome string

const (
	OutcomeFeasible   Outcome = "feasible"   // 最优或可行
	OutcomeInfeasible Outcome = "infeasible" // 证明无解
	OutcomeUnknown    Outcome = "unknown"    // 预算耗尽未获证明，按无解推进
)

// Attempt 每个缓和层级的一次尝试记录
type Attempt struct {
	Level    int           `json:"level"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// FailureReason 终态失败原因
type FailureReason string

const (
	// FailureInfeasible 所有层级均无解
	FailureInfeasible FailureReason = "infeasible_at_every_level"
	// FailureNothingToTrim 层级 3 没有可裁剪的休假申请
	FailureNothingToTrim FailureReason = "no_leave_requests_to_trim"
)

// CrossCheck 跨期规则复核的单员工结论
type CrossCheck struct {
	Employee   string   `json:"employee"`
	Passed     []string `json:"passed,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// OK 该员工是否全部通过
func (c CrossCheck) OK() bool { return len(c.Violations) == 0 }

// Result 一次求解会话的结构化输出
// Notes 是逐级缓和说明，属于一等输出而非日志
type Result struct {
	Success       bool           `json:"success"`
	Level         int            `json:"level"`
	Assignment    *Assignment    `json:"assignment,omitempty"`
	Objective     int64          `json:"objective"`
	Notes         []string       `json:"notes"`
	Attempts      []Attempt      `json:"attempts"`
	Trimmed       []LeaveRequest `json:"trimmed,omitempty"`
	CrossChecks   []CrossCheck   `json:"cross_checks,omitempty"`
	FailureReason FailureReason  `json:"failure_reason,omitempty"`
}
