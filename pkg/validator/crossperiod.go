// Package validator 排班结果的求解后校验
package validator

import (
	"fmt"

	"github.com/zhiban/zhiban/pkg/model"
)

// CheckCrossPeriod 对照上期值班事实复核排班表首日衔接。
// 仅针对携带上期事实的员工产出记录；跨期双班在高松弛层级下
// 是被允许的结果，这里如实报告为违规由调用方结合层级解读。
func CheckCrossPeriod(p *model.Problem, a *model.Assignment) []model.CrossCheck {
	if a == nil {
		return nil
	}
	var checks []model.CrossCheck
	for e, emp := range p.Employees {
		workedLast := p.Trailing.WorkedAt(e, -1)
		workedSecond := p.Trailing.WorkedAt(e, -2)
		if !workedLast && !workedSecond {
			continue
		}
		check := model.CrossCheck{Employee: emp.Name}
		day0 := a.ShiftAt(e, 0)

		if workedLast {
			if day0 == p.OffShift() {
				check.Passed = append(check.Passed, "上期最后一日值班，第 0 日已安排非番")
			} else {
				check.Violations = append(check.Violations,
					fmt.Sprintf("上期最后一日值班，第 0 日却为 %s", p.ShiftName(day0)))
			}
		}
		if workedSecond {
			if a.OnDuty(e, 0) {
				check.Violations = append(check.Violations,
					fmt.Sprintf("上期倒数第二日值班，第 0 日再次值 %s 形成跨期双班", p.ShiftName(day0)))
			} else {
				check.Passed = append(check.Passed, "上期倒数第二日值班，第 0 日未再值班")
			}
		}
		checks = append(checks, check)
	}
	return checks
}

// CheckAssignment 复核排班表是否满足全部硬性规则，返回违规描述。
// 求解器产出的排班表应当为空结果，该检查主要服务于外部导入的排班表。
func CheckAssignment(p *model.Problem, a *model.Assignment) []string {
	var issues []string
	nDuty := p.NumDuties()

	altOffset := make(map[int]int, len(p.Alternating))
	for _, alt := range p.Alternating {
		altOffset[alt.Duty] = alt.Offset
	}

	// 值班覆盖，隔日值守班种按奇偶判定当日需求
	for d := 0; d < p.Days; d++ {
		for s := 0; s < nDuty; s++ {
			need := 1
			if off, ok := altOffset[s]; ok && ((off+d)%2+2)%2 != 0 {
				need = 0
			}
			count := 0
			for e := 0; e < p.NumEmployees(); e++ {
				if a.ShiftAt(e, d) == model.ShiftID(s) {
					count++
				}
			}
			if count != need {
				issues = append(issues,
					fmt.Sprintf("第 %d 日班种 %s 有 %d 人值守", d, p.DutyNames[s], count))
			}
		}
	}

	// 值班翌日非番与连续非番
	for e := 0; e < p.NumEmployees(); e++ {
		for d := 0; d+1 < p.Days; d++ {
			if a.OnDuty(e, d) && a.ShiftAt(e, d+1) != p.OffShift() {
				issues = append(issues,
					fmt.Sprintf("%s 第 %d 日值班后第 %d 日未非番", p.Employees[e].Name, d, d+1))
			}
			if a.ShiftAt(e, d) == p.OffShift() && a.ShiftAt(e, d+1) == p.OffShift() {
				issues = append(issues,
					fmt.Sprintf("%s 第 %d 日起连续非番", p.Employees[e].Name, d))
			}
		}
	}

	// 禁排日
	for _, f := range p.ForbiddenDays {
		if a.ShiftAt(f.Employee, f.Day) != p.LeaveShift() {
			issues = append(issues,
				fmt.Sprintf("%s 第 %d 日为禁排日却未休假", p.Employees[f.Employee].Name, f.Day))
		}
	}
	return issues
}
