// Package stats 提供排班结果统计分析功能
package stats

import (
	"math"
	"sort"

	"github.com/zhiban/zhiban/pkg/model"
)

// EmployeeStat 员工统计
type EmployeeStat struct {
	Name           string         `json:"name"`
	DutyDays       int            `json:"duty_days"`
	DutyByShift    map[string]int `json:"duty_by_shift"`
	OffDays        int            `json:"off_days"`
	LeaveDays      int            `json:"leave_days"`
	DoubleDuties   int            `json:"double_duties"`
	LeaveRequested int            `json:"leave_requested"`
	LeaveHonored   int            `json:"leave_honored"`
	Deviation      float64        `json:"deviation"` // 值班天数与平均值的偏差百分比
}

// Metrics 一期排班的公平性与负荷指标
type Metrics struct {
	DutyGini      float64        `json:"duty_gini"` // 值班分配基尼系数 (0=完全公平)
	DutyVariance  float64        `json:"duty_variance"`
	DutyStdDev    float64        `json:"duty_std_dev"`
	AvgDutyDays   float64        `json:"avg_duty_days"`
	MaxDutyDays   int            `json:"max_duty_days"`
	MinDutyDays   int            `json:"min_duty_days"`
	DoubleDutyGap int            `json:"double_duty_gap"` // 双班次数最大最小差
	EmployeeStats []EmployeeStat `json:"employee_stats"`
	FairnessScore float64        `json:"fairness_score"` // 综合公平性评分 (0-100)
}

// Analyzer 排班结果分析器
type Analyzer struct{}

// NewAnalyzer 创建分析器
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze 统计一期排班。trimmed 为求解中被裁剪的休假申请，
// 用于计算休假兑现数。
func (s *Analyzer) Analyze(p *model.Problem, a *model.Assignment, trimmed []model.LeaveRequest) *Metrics {
	if a == nil || p.NumEmployees() == 0 {
		return &Metrics{FairnessScore: 100}
	}

	nDuty := p.NumDuties()
	stats := make([]EmployeeStat, p.NumEmployees())
	for e, emp := range p.Employees {
		stat := EmployeeStat{
			Name:        emp.Name,
			DutyByShift: make(map[string]int, nDuty),
		}
		for d := 0; d < p.Days; d++ {
			switch shift := a.ShiftAt(e, d); {
			case int(shift) < nDuty:
				stat.DutyDays++
				stat.DutyByShift[p.DutyNames[shift]]++
			case shift == p.LeaveShift():
				stat.LeaveDays++
			default:
				stat.OffDays++
			}
		}
		for d := 0; d+2 < p.Days; d++ {
			if a.OnDuty(e, d) && a.OnDuty(e, d+2) {
				stat.DoubleDuties++
			}
		}
		stats[e] = stat
	}

	// 休假申请兑现统计，含被裁剪部分
	requested := append([]model.LeaveRequest(nil), p.LeaveRequests...)
	requested = append(requested, trimmed...)
	for _, r := range requested {
		stats[r.Employee].LeaveRequested++
		if a.ShiftAt(r.Employee, r.Day) == p.LeaveShift() {
			stats[r.Employee].LeaveHonored++
		}
	}

	dutyDays := make([]float64, len(stats))
	for i, stat := range stats {
		dutyDays[i] = float64(stat.DutyDays)
	}
	avg := mean(dutyDays)
	variance := varianceOf(dutyDays, avg)
	for i := range stats {
		if avg > 0 {
			stats[i].Deviation = (float64(stats[i].DutyDays) - avg) / avg * 100
		}
	}

	maxDuty, minDuty := stats[0].DutyDays, stats[0].DutyDays
	maxDD, minDD := stats[0].DoubleDuties, stats[0].DoubleDuties
	for _, stat := range stats[1:] {
		if stat.DutyDays > maxDuty {
			maxDuty = stat.DutyDays
		}
		if stat.DutyDays < minDuty {
			minDuty = stat.DutyDays
		}
		if stat.DoubleDuties > maxDD {
			maxDD = stat.DoubleDuties
		}
		if stat.DoubleDuties < minDD {
			minDD = stat.DoubleDuties
		}
	}

	gini := giniOf(dutyDays)
	return &Metrics{
		DutyGini:      gini,
		DutyVariance:  variance,
		DutyStdDev:    math.Sqrt(variance),
		AvgDutyDays:   avg,
		MaxDutyDays:   maxDuty,
		MinDutyDays:   minDuty,
		DoubleDutyGap: maxDD - minDD,
		EmployeeStats: stats,
		FairnessScore: fairnessScore(gini, math.Sqrt(variance), avg),
	}
}

// mean 计算平均值
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// varianceOf 计算方差
func varianceOf(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

// giniOf 计算基尼系数
func giniOf(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	gini := 0.0
	for i, v := range sorted {
		gini += (2*float64(i+1) - float64(n) - 1) * v
	}
	gini = gini / (float64(n) * sum)
	return math.Max(0, math.Min(1, gini))
}

// fairnessScore 综合公平性评分
func fairnessScore(gini, stdDev, avg float64) float64 {
	const (
		giniWeight = 0.7
		cvWeight   = 0.3
	)
	giniScore := (1 - gini) * 100
	cvScore := 100.0
	if avg > 0 {
		cv := stdDev / avg
		cvScore = math.Max(0, 100-cv*200)
	}
	score := giniWeight*giniScore + cvWeight*cvScore
	return math.Max(0, math.Min(100, score))
}
