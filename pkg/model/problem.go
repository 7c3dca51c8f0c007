// Package model 定义值班表引擎的核心数据模型
package model

import (
	"fmt"

	"github.com/zhiban/zhiban/pkg/errors"
)

// ShiftID 班种编号
// 0..nDuties-1 为值班班种，之后依次是休假和非番（值班翌日的强制轮休）
type ShiftID int

// TrailingKey 上一排班期末尾事实的键
// Offset 只允许 -1（期末最后一天）和 -2（倒数第二天）
type TrailingKey struct {
	Employee int `json:"employee"`
	Offset   int `json:"offset"`
}

// TrailingDuties 上期末尾值班事实
// true 表示该员工在对应偏移日有值班
type TrailingDuties map[TrailingKey]bool

// WorkedAt 查询某员工在指定偏移日是否值班，未录入视为未值班
func (t TrailingDuties) WorkedAt(employee, offset int) bool {
	if t == nil {
		return false
	}
	return t[TrailingKey{Employee: employee, Offset: offset}]
}

// Employee 员工
type Employee struct {
	Name string `json:"name"`
	// Relief 标记替补（助勤）角色，用于兜底补位，使用时计入软惩罚
	Relief bool `json:"relief,omitempty"`
	// DutyPriorities 班种名 → 优先度 (3=最优先 2=普通 1=可行 0=不可)
	// 0 会转换为硬禁止，其余按配置权重转换为偏好惩罚
	DutyPriorities map[string]int `json:"duty_priorities,omitempty"`
}

// Preference 偏好项：权重为正表示该分配应受罚，为负表示应奖励
type Preference struct {
	Employee int   `json:"employee"`
	Day      int   `json:"day"`
	Duty     int   `json:"duty"`
	Weight   int64 `json:"weight"`
}

// LeaveRequest 休假申请（员工×日）
type LeaveRequest struct {
	Employee int `json:"employee"`
	Day      int `json:"day"`
}

// ForbiddenDay 禁排日：该日强制休假，不参与缓和裁剪
type ForbiddenDay struct {
	Employee int `json:"employee"`
	Day      int `json:"day"`
}

// AlternatingDuty 隔日值守班种配置
// 第 d 天当 (Offset+d) 为偶数时该班种配置 1 人，否则 0 人
// 调用方负责把基准日期换算为 Offset
type AlternatingDuty struct {
	Duty   int `json:"duty"`
	Offset int `json:"offset"`
}

// Problem 一次求解的完整输入，构造后不可变
// 引擎内部不会修改任何字段（层级 3 的休假裁剪作用于副本）
type Problem struct {
	Employees     []Employee       `json:"employees"`
	Days          int              `json:"days"`
	DutyNames     []string         `json:"duty_names"`
	LeaveName     string           `json:"leave_name,omitempty"`
	Preferences   []Preference     `json:"preferences,omitempty"`
	LeaveRequests []LeaveRequest   `json:"leave_requests,omitempty"`
	ForbiddenDays []ForbiddenDay   `json:"forbidden_days,omitempty"`
	Trailing      TrailingDuties   `json:"trailing,omitempty"`
	Alternating   []AlternatingDuty `json:"alternating,omitempty"`
}

// NumEmployees 员工数
func (p *Problem) NumEmployees() int { return len(p.Employees) }

// NumDuties 值班班种数
func (p *Problem) NumDuties() int { return len(p.DutyNames) }

// NumShifts 总班种数（值班 + 休假 + 非番）
func (p *Problem) NumShifts() int { return len(p.DutyNames) + 2 }

// LeaveShift 休假班种编号
func (p *Problem) LeaveShift() ShiftID { return ShiftID(len(p.DutyNames)) }

// OffShift 非番班种编号
func (p *Problem) OffShift() ShiftID { return ShiftID(len(p.DutyNames) + 1) }

// ReliefIndex 替补员工下标，没有配置时返回 -1
func (p *Problem) ReliefIndex() int {
	for i, e := range p.Employees {
		if e.Relief {
			return i
		}
	}
	return -1
}

// ShiftName 班种编号对应的显示名
func (p *Problem) ShiftName(s ShiftID) string {
	switch {
	case int(s) < len(p.DutyNames):
		return p.DutyNames[s]
	case s == p.LeaveShift():
		if p.LeaveName != "" {
			return p.LeaveName
		}
		return "休假"
	case s == p.OffShift():
		return "非番"
	}
	return "?"
}

// Validate 配置校验，任何一处不合法都在求解前直接失败
func (p *Problem) Validate() error {
	if len(p.Employees) == 0 {
		return errors.New(errors.CodeConfigInvalid, "员工列表为空")
	}
	if len(p.DutyNames) == 0 {
		return errors.New(errors.CodeConfigInvalid, "值班班种列表为空")
	}
	if p.Days <= 0 {
		return errors.New(errors.CodeConfigInvalid, "排班天数必须大于 0")
	}

	seen := make(map[string]bool, len(p.Employees))
	for i, e := range p.Employees {
		if e.Name == "" {
			return errors.New(errors.CodeConfigInvalid, fmt.Sprintf("员工 %d 缺少名称", i))
		}
		if seen[e.Name] {
			return errors.New(errors.CodeConfigInvalid, fmt.Sprintf("员工名称重复: %s", e.Name))
		}
		seen[e.Name] = true
		for duty, prio := range e.DutyPriorities {
			if prio < 0 || prio > 3 {
				return errors.New(errors.CodeConfigInvalid,
					fmt.Sprintf("员工 %s 对 %s 的优先度 %d 超出 0..3", e.Name, duty, prio))
			}
			if !p.hasDuty(duty) {
				return errors.New(errors.CodeConfigInvalid,
					fmt.Sprintf("员工 %s 的优先度引用了未知班种 %s", e.Name, duty))
			}
		}
	}

	for _, pref := range p.Preferences {
		if err := p.checkCell(pref.Employee, pref.Day, "偏好项"); err != nil {
			return err
		}
		if pref.Duty < 0 || pref.Duty >= p.NumShifts() {
			return errors.New(errors.CodeConfigInvalid,
				fmt.Sprintf("偏好项班种编号 %d 越界", pref.Duty))
		}
	}
	for _, lr := range p.LeaveRequests {
		if err := p.checkCell(lr.Employee, lr.Day, "休假申请"); err != nil {
			return err
		}
	}
	for _, fd := range p.ForbiddenDays {
		if err := p.checkCell(fd.Employee, fd.Day, "禁排日"); err != nil {
			return err
		}
	}
	for key := range p.Trailing {
		if key.Offset != -1 && key.Offset != -2 {
			return errors.New(errors.CodeConfigInvalid,
				fmt.Sprintf("上期事实偏移 %d 非法，只允许 -1 和 -2", key.Offset))
		}
		if key.Employee < 0 || key.Employee >= len(p.Employees) {
			return errors.New(errors.CodeConfigInvalid,
				fmt.Sprintf("上期事实员工下标 %d 越界", key.Employee))
		}
	}
	for _, alt := range p.Alternating {
		if alt.Duty < 0 || alt.Duty >= p.NumDuties() {
			return errors.New(errors.CodeConfigInvalid,
				fmt.Sprintf("隔日值守班种编号 %d 越界", alt.Duty))
		}
	}
	return nil
}

func (p *Problem) hasDuty(name string) bool {
	for _, d := range p.DutyNames {
		if d == name {
			return true
		}
	}
	return false
}

func (p *Problem) checkCell(employee, day int, what string) error {
	if employee < 0 || employee >= len(p.Employees) {
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("%s员工下标 %d 越界", what, employee))
	}
	if day < 0 || day >= p.Days {
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("%s日期下标 %d 越界", what, day))
	}
	return nil
}
