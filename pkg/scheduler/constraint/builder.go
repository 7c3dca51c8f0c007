package constraint

import (
	"fmt"

	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"

	apperrors "github.com/zhiban/zhiban/pkg/errors"
	"github.com/zhiban/zhiban/pkg/model"
	"github.com/zhiban/zhiban/pkg/scheduler/relax"
)

// Weights 目标函数各软项的基础权重
type Weights struct {
	Relief        int64
	Leave         int64
	DoubleDuty    int64
	DoubleDutyGap int64
	CrossPeriod   int64
	// Priority 优先度 1~3 对应的偏好惩罚，0 为硬禁止不在此表
	Priority map[int]int64
}

// DefaultWeights 生产默认权重
func DefaultWeights() Weights {
	return Weights{
		Relief:        10,
		Leave:         50,
		DoubleDuty:    15,
		DoubleDutyGap: 30,
		CrossPeriod:   20,
		Priority:      map[int]int64{1: 10, 2: 5, 3: 0},
	}
}

// Model 一次构建产出的完整 CP-SAT 模型与诊断信息
type Model struct {
	Proto *cmpb.CpModelProto
	// Vars [员工][日][班种] 指派布尔变量
	Vars [][][]cpmodel.BoolVar
	// Hard 本层级生效的全部硬约束记录
	Hard []Hard
	// Terms 本层级进入目标函数的全部软项
	Terms []Term
	// DoubleDutyCounts 各员工双班次数变量（含跨期双班）
	DoubleDutyCounts []cpmodel.IntVar
}

// TermsOf 按类别筛选软项
func (m *Model) TermsOf(kind TermKind) []Term {
	var out []Term
	for _, t := range m.Terms {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// PenaltyOf 某类别软项在结果中的总代价
func (m *Model) PenaltyOf(res *cmpb.CpSolverResponse, kind TermKind) int64 {
	var total int64
	for _, t := range m.Terms {
		if t.Kind == kind {
			total += t.Cost(res)
		}
	}
	return total
}

// ExtractAssignment 从求解结果还原排班表
func (m *Model) ExtractAssignment(res *cmpb.CpSolverResponse, p *model.Problem) *model.Assignment {
	a := model.NewAssignment(len(m.Vars), p.Days, p.NumDuties())
	for e := range m.Vars {
		for d := range m.Vars[e] {
			for s, v := range m.Vars[e][d] {
				if cpmodel.SolutionBooleanValue(res, v) {
					a.Shifts[e][d] = model.ShiftID(s)
					break
				}
			}
		}
	}
	return a
}

// Builder 按松弛层级把排班问题翻译为 CP-SAT 模型。
// 同一输入重复构建产出等价模型，构建过程不修改问题本身。
type Builder struct {
	weights Weights
}

// NewBuilder 创建约束构建器
func NewBuilder(w Weights) *Builder {
	return &Builder{weights: w}
}

// Build 构建一次求解所需的完整模型。
// leave 为当前仍按硬约束兑现的休假申请，trimmed 为已裁剪、降级为软惩罚的申请。
func (b *Builder) Build(p *model.Problem, leave, trimmed []model.LeaveRequest, delta relax.Delta) (*Model, error) {
	cp := cpmodel.NewCpModelBuilder()
	m := &Model{}

	nEmp := p.NumEmployees()
	nDuty := p.NumDuties()
	nShift := p.NumShifts()
	leaveShift := int(p.LeaveShift())
	offShift := int(p.OffShift())

	// 指派变量
	m.Vars = make([][][]cpmodel.BoolVar, nEmp)
	for e := 0; e < nEmp; e++ {
		m.Vars[e] = make([][]cpmodel.BoolVar, p.Days)
		for d := 0; d < p.Days; d++ {
			m.Vars[e][d] = make([]cpmodel.BoolVar, nShift)
			for s := 0; s < nShift; s++ {
				m.Vars[e][d][s] = cp.NewBoolVar().WithName(fmt.Sprintf("w_%d_%d_%d", e, d, s))
			}
		}
	}

	// 每员工每日恰好一个班种
	for e := 0; e < nEmp; e++ {
		for d := 0; d < p.Days; d++ {
			cp.AddExactlyOne(m.Vars[e][d]...)
			m.Hard = append(m.Hard, Hard{Kind: HardExclusive, Employee: e, Day: d, Duty: -1})
		}
	}

	// 值班班种覆盖。隔日值守班种按 (Offset+日) 奇偶决定当日需求为 1 或 0
	altOffset := make(map[int]int, len(p.Alternating))
	for _, alt := range p.Alternating {
		altOffset[alt.Duty] = alt.Offset
	}
	for d := 0; d < p.Days; d++ {
		for s := 0; s < nDuty; s++ {
			need := int64(1)
			if off, ok := altOffset[s]; ok {
				if ((off+d)%2+2)%2 != 0 {
					need = 0
				}
			}
			cp.AddEquality(columnSum(m.Vars, d, s), cp.NewConstant(need))
			m.Hard = append(m.Hard, Hard{Kind: HardCoverage, Employee: -1, Day: d, Duty: s})
		}
	}

	// 值班翌日强制非番
	for e := 0; e < nEmp; e++ {
		for d := 0; d+1 < p.Days; d++ {
			for s := 0; s < nDuty; s++ {
				cp.AddImplication(m.Vars[e][d][s], m.Vars[e][d+1][offShift])
				m.Hard = append(m.Hard, Hard{Kind: HardRestAfterDuty, Employee: e, Day: d, Duty: s})
			}
		}
	}

	// 非番必须紧随值班；第 0 日的非番由跨期衔接决定
	for e := 0; e < nEmp; e++ {
		for d := 1; d < p.Days; d++ {
			cp.AddGreaterOrEqual(dutySum(m.Vars[e][d-1], nDuty), m.Vars[e][d][offShift])
			m.Hard = append(m.Hard, Hard{Kind: HardOffNeedsDuty, Employee: e, Day: d, Duty: -1})
		}
	}

	// 禁止连续非番
	for e := 0; e < nEmp; e++ {
		for d := 0; d+1 < p.Days; d++ {
			pair := cpmodel.NewLinearExpr().Add(m.Vars[e][d][offShift]).Add(m.Vars[e][d+1][offShift])
			cp.AddLinearConstraint(pair, 0, 1)
			m.Hard = append(m.Hard, Hard{Kind: HardNoDoubleOff, Employee: e, Day: d, Duty: -1})
		}
	}

	// 跨期衔接：上期事实折算到第 0 日
	plan := PlanCrossPeriod(nEmp, p.Trailing, delta)
	for _, e := range plan.ForceOffDay0 {
		cp.AddEquality(m.Vars[e][0][offShift], cp.NewConstant(1))
		m.Hard = append(m.Hard, Hard{Kind: HardCrossRest, Employee: e, Day: 0, Duty: -1})
	}
	for _, e := range plan.BanDutyDay0 {
		for s := 0; s < nDuty; s++ {
			cp.AddEquality(m.Vars[e][0][s], cp.NewConstant(0))
			m.Hard = append(m.Hard, Hard{Kind: HardCrossDutyBan, Employee: e, Day: 0, Duty: s})
		}
	}
	crossIndicator := make(map[int]cpmodel.BoolVar, len(plan.PenalizeDay0))
	for _, e := range plan.PenalizeDay0 {
		ind := cp.NewBoolVar().WithName(fmt.Sprintf("cross_dd_%d", e))
		cp.AddEquality(dutySum(m.Vars[e][0], nDuty), cp.NewConstant(1)).OnlyEnforceIf(ind)
		cp.AddEquality(dutySum(m.Vars[e][0], nDuty), cp.NewConstant(0)).OnlyEnforceIf(ind.Not())
		crossIndicator[e] = ind
		m.Terms = append(m.Terms, Term{
			Kind: TermCrossPeriod, Weight: b.weights.CrossPeriod,
			Employee: e, Day: 0, Duty: -1, arg: ind,
		})
	}

	// 禁排日强制休假
	for _, f := range p.ForbiddenDays {
		cp.AddEquality(m.Vars[f.Employee][f.Day][leaveShift], cp.NewConstant(1))
		m.Hard = append(m.Hard, Hard{Kind: HardForbiddenDay, Employee: f.Employee, Day: f.Day, Duty: -1})
	}

	// 休假申请硬兑现
	for _, r := range leave {
		cp.AddEquality(m.Vars[r.Employee][r.Day][leaveShift], cp.NewConstant(1))
		m.Hard = append(m.Hard, Hard{Kind: HardLeaveRequest, Employee: r.Employee, Day: r.Day, Duty: -1})
	}

	// 已裁剪的休假申请降级为软惩罚
	for _, r := range trimmed {
		viol := cp.NewBoolVar().WithName(fmt.Sprintf("leave_viol_%d_%d", r.Employee, r.Day))
		cp.AddEquality(m.Vars[r.Employee][r.Day][leaveShift], cp.NewConstant(0)).OnlyEnforceIf(viol)
		cp.AddEquality(m.Vars[r.Employee][r.Day][leaveShift], cp.NewConstant(1)).OnlyEnforceIf(viol.Not())
		m.Terms = append(m.Terms, Term{
			Kind: TermLeaveViolation, Weight: b.weights.Leave,
			Employee: r.Employee, Day: r.Day, Duty: -1, arg: viol,
		})
	}

	// 班种优先度：0 为硬禁止，1~2 为软惩罚，3 无代价
	for e, emp := range p.Employees {
		for s, name := range p.DutyNames {
			prio, ok := emp.DutyPriorities[name]
			if !ok {
				continue
			}
			if prio == 0 {
				for d := 0; d < p.Days; d++ {
					cp.AddEquality(m.Vars[e][d][s], cp.NewConstant(0))
				}
				m.Hard = append(m.Hard, Hard{Kind: HardPriorityBan, Employee: e, Day: -1, Duty: s})
				continue
			}
			w := b.weights.Priority[prio]
			if w == 0 {
				continue
			}
			cnt := cpmodel.NewLinearExpr()
			for d := 0; d < p.Days; d++ {
				cnt.Add(m.Vars[e][d][s])
			}
			m.Terms = append(m.Terms, Term{
				Kind: TermPreference, Weight: w,
				Employee: e, Day: -1, Duty: s, arg: cnt,
			})
		}
	}

	// 显式偏好项，权重随输入给定，可正可负
	for _, pref := range p.Preferences {
		m.Terms = append(m.Terms, Term{
			Kind: TermPreference, Weight: pref.Weight,
			Employee: pref.Employee, Day: pref.Day, Duty: pref.Duty,
			arg: m.Vars[pref.Employee][pref.Day][pref.Duty],
		})
	}

	// 当日是否值班的标志变量
	dutyFlag := make([][]cpmodel.BoolVar, nEmp)
	for e := 0; e < nEmp; e++ {
		dutyFlag[e] = make([]cpmodel.BoolVar, p.Days)
		for d := 0; d < p.Days; d++ {
			f := cp.NewBoolVar().WithName(fmt.Sprintf("duty_%d_%d", e, d))
			cp.AddEquality(f, dutySum(m.Vars[e][d], nDuty))
			dutyFlag[e][d] = f
		}
	}

	// 双班（值-非番-值）检测与惩罚
	doubleDuty := make([][]cpmodel.BoolVar, nEmp)
	for e := 0; e < nEmp; e++ {
		for d := 0; d+2 < p.Days; d++ {
			pair := cpmodel.NewLinearExpr().Add(dutyFlag[e][d]).Add(dutyFlag[e][d+2])
			ind := cp.NewBoolVar().WithName(fmt.Sprintf("dd_%d_%d", e, d))
			cp.AddEquality(pair, cp.NewConstant(2)).OnlyEnforceIf(ind)
			cp.AddLessOrEqual(pair, cp.NewConstant(1)).OnlyEnforceIf(ind.Not())
			doubleDuty[e] = append(doubleDuty[e], ind)
			m.Terms = append(m.Terms, Term{
				Kind: TermDoubleDuty, Weight: b.weights.DoubleDuty,
				Employee: e, Day: d, Duty: -1, arg: ind,
			})
		}
	}

	// 层级 0 禁止 d、d+2、d+4 三日连环值班
	if delta.Level == relax.Level0 {
		for e := 0; e < nEmp; e++ {
			for d := 0; d+4 < p.Days; d++ {
				triple := cpmodel.NewLinearExpr().
					Add(dutyFlag[e][d]).Add(dutyFlag[e][d+2]).Add(dutyFlag[e][d+4])
				cp.AddLessOrEqual(triple, cp.NewConstant(2))
				m.Hard = append(m.Hard, Hard{Kind: HardNoTripleDouble, Employee: e, Day: d, Duty: -1})
			}
		}
	}

	// 各员工双班次数，跨期双班计入
	m.DoubleDutyCounts = make([]cpmodel.IntVar, nEmp)
	maxDD := int64(p.Days/2 + 1)
	for e := 0; e < nEmp; e++ {
		cnt := cp.NewIntVar(0, maxDD)
		sum := cpmodel.NewLinearExpr()
		for _, ind := range doubleDuty[e] {
			sum.Add(ind)
		}
		if ind, ok := crossIndicator[e]; ok {
			sum.Add(ind)
		}
		cp.AddEquality(cnt, sum)
		m.DoubleDutyCounts[e] = cnt
	}

	// 双班差距均衡，层级 ≥1 放弃
	if !delta.DropDoubleDutyGap && nEmp > 0 {
		maxVar := cp.NewIntVar(0, maxDD)
		minVar := cp.NewIntVar(0, maxDD)
		counts := make([]cpmodel.LinearArgument, nEmp)
		for e, c := range m.DoubleDutyCounts {
			counts[e] = c
		}
		cp.AddMaxEquality(maxVar, counts...)
		cp.AddMinEquality(minVar, counts...)
		gap := cpmodel.NewLinearExpr().Add(maxVar).AddTerm(minVar, -1)
		m.Terms = append(m.Terms, Term{
			Kind: TermDoubleDutyGap, Weight: b.weights.DoubleDutyGap,
			Employee: -1, Day: -1, Duty: -1, arg: gap,
		})
	}

	// 替补使用惩罚，权重随层级按 10 的幂衰减，下限 1
	if relief := p.ReliefIndex(); relief >= 0 {
		w := b.weights.Relief / delta.ReliefDivisor
		if w < 1 {
			w = 1
		}
		used := cpmodel.NewLinearExpr()
		for d := 0; d < p.Days; d++ {
			used.Add(dutyFlag[relief][d])
		}
		m.Terms = append(m.Terms, Term{
			Kind: TermRelief, Weight: w,
			Employee: relief, Day: -1, Duty: -1, arg: used,
		})
	}

	// 目标函数：全部软项的加权和
	obj := cpmodel.NewLinearExpr()
	for _, t := range m.Terms {
		obj.AddTerm(t.arg, t.Weight)
	}
	cp.Minimize(obj)

	proto, err := cp.Model()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "构建 CP-SAT 模型失败")
	}
	m.Proto = proto
	return m, nil
}

// dutySum 某员工某日全部值班班种变量之和
func dutySum(row []cpmodel.BoolVar, nDuty int) *cpmodel.LinearExpr {
	sum := cpmodel.NewLinearExpr()
	for s := 0; s < nDuty; s++ {
		sum.Add(row[s])
	}
	return sum
}

// columnSum 某日某班种全体员工变量之和
func columnSum(vars [][][]cpmodel.BoolVar, day, shift int) *cpmodel.LinearExpr {
	sum := cpmodel.NewLinearExpr()
	for e := range vars {
		sum.Add(vars[e][day][shift])
	}
	return sum
}
