package constraint

import (
	"github.com/zhiban/zhiban/pkg/model"
	"github.com/zhiban/zhiban/pkg/scheduler/relax"
)

// CrossPlan 由上期值班事实折算出的本期第 0 日约束安排
type CrossPlan struct {
	// ForceOffDay0 上期最后一日值班的员工，第 0 日强制非番
	ForceOffDay0 []int
	// BanDutyDay0 上期倒数第二日值班的员工，层级 0 时第 0 日禁止值班
	BanDutyDay0 []int
	// PenalizeDay0 同上但层级 ≥1，禁令降级为跨期双班软惩罚
	PenalizeDay0 []int
}

// PlanCrossPeriod 根据上期事实与当前松弛层级决定第 0 日的衔接处理。
// 纯函数，不触碰模型构建器。
func PlanCrossPeriod(nEmployees int, trailing model.TrailingDuties, delta relax.Delta) CrossPlan {
	var plan CrossPlan
	for e := 0; e < nEmployees; e++ {
		if trailing.WorkedAt(e, -1) {
			plan.ForceOffDay0 = append(plan.ForceOffDay0, e)
			continue
		}
		if trailing.WorkedAt(e, -2) {
			if delta.Level == relax.Level0 {
				plan.BanDutyDay0 = append(plan.BanDutyDay0, e)
			} else {
				plan.PenalizeDay0 = append(plan.PenalizeDay0, e)
			}
		}
	}
	return plan
}
