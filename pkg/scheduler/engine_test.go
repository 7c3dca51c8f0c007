package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"

	apperrors "github.com/zhiban/zhiban/pkg/errors"
	"github.com/zhiban/zhiban/pkg/model"
	"github.com/zhiban/zhiban/pkg/scheduler/solver"
	"github.com/zhiban/zhiban/pkg/validator"
)

// scriptedBackend 按脚本依次返回结局，记录每次调用参数
type scriptedBackend struct {
	outcomes []model.Outcome
	calls    int
	budgets  []time.Duration
	workers  []int
}

func (s *scriptedBackend) Solve(_ context.Context, _ *cmpb.CpModelProto, budget time.Duration, workers int) (*solver.Response, error) {
	if s.calls >= len(s.outcomes) {
		panic("脚本已耗尽")
	}
	out := s.outcomes[s.calls]
	s.calls++
	s.budgets = append(s.budgets, budget)
	s.workers = append(s.workers, workers)
	return &solver.Response{Outcome: out}, nil
}

func stubConfig() Config {
	cfg := DefaultConfig()
	cfg.Budget = 3 * time.Second
	return cfg
}

func stubProblem() *model.Problem {
	return &model.Problem{
		Days:      7,
		DutyNames: []string{"甲直", "乙直"},
		Employees: []model.Employee{
			{Name: "张三"}, {Name: "李四"}, {Name: "王五"},
			{Name: "赵六"}, {Name: "孙七", Relief: true},
		},
	}
}

func TestSolveExhaustsAllLevels(t *testing.T) {
	backend := &scriptedBackend{outcomes: []model.Outcome{
		model.OutcomeInfeasible,
		model.OutcomeUnknown,
		model.OutcomeInfeasible,
		model.OutcomeInfeasible,
	}}
	e := New(stubConfig(), backend)
	p := stubProblem()
	p.LeaveRequests = []model.LeaveRequest{
		{Employee: 0, Day: 1}, {Employee: 0, Day: 3}, {Employee: 0, Day: 5},
	}

	result, err := e.Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("逐层失败应返回结果而非错误: %v", err)
	}
	if result.Success {
		t.Fatal("不应成功")
	}
	if result.FailureReason != model.FailureInfeasible {
		t.Fatalf("失败原因 = %q", result.FailureReason)
	}
	if backend.calls != 4 {
		t.Fatalf("求解尝试次数 = %d, want 4", backend.calls)
	}
	if len(result.Attempts) != 4 {
		t.Fatalf("尝试记录数 = %d", len(result.Attempts))
	}
	for i, a := range result.Attempts {
		if a.Level != i {
			t.Fatalf("第 %d 次尝试层级 = %d", i, a.Level)
		}
	}
	// 层级 3 应已裁剪最早 2 条休假申请
	if len(result.Trimmed) != 2 {
		t.Fatalf("裁剪数 = %d", len(result.Trimmed))
	}
	if result.Trimmed[0].Day != 1 || result.Trimmed[1].Day != 3 {
		t.Fatalf("裁剪日序错误: %+v", result.Trimmed)
	}
	// 三次降级说明 + 一条裁剪说明 + 一条层级用尽说明
	if len(result.Notes) != 5 {
		t.Fatalf("说明数 = %d: %v", len(result.Notes), result.Notes)
	}
	for _, d := range backend.budgets {
		if d != 3*time.Second {
			t.Fatalf("每次尝试预算 = %v", d)
		}
	}
}

func TestSolveNothingToTrim(t *testing.T) {
	backend := &scriptedBackend{outcomes: []model.Outcome{
		model.OutcomeInfeasible,
		model.OutcomeInfeasible,
		model.OutcomeInfeasible,
	}}
	e := New(stubConfig(), backend)
	p := stubProblem()
	// 每人至多 2 条，没有可裁剪对象
	p.LeaveRequests = []model.LeaveRequest{
		{Employee: 0, Day: 1}, {Employee: 0, Day: 4},
		{Employee: 2, Day: 2},
	}

	result, err := e.Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success || result.FailureReason != model.FailureNothingToTrim {
		t.Fatalf("结果 = %+v", result)
	}
	if backend.calls != 3 {
		t.Fatalf("层级 3 不应再求解, calls = %d", backend.calls)
	}
}

func TestSolveRejectsInvalidProblem(t *testing.T) {
	backend := &scriptedBackend{}
	e := New(stubConfig(), backend)
	broken := []func(*model.Problem){
		func(p *model.Problem) { p.Days = 0 },
		func(p *model.Problem) { p.Employees = nil },
		func(p *model.Problem) { p.DutyNames = nil },
	}
	for _, mutate := range broken {
		p := stubProblem()
		mutate(p)
		if _, err := e.Solve(context.Background(), p); !apperrors.Is(err, apperrors.CodeConfigInvalid) {
			t.Fatalf("err = %v", err)
		}
	}
	if backend.calls != 0 {
		t.Fatal("非法输入不应触发求解")
	}
}

func TestSolveCancelled(t *testing.T) {
	backend := &scriptedBackend{}
	e := New(stubConfig(), backend)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Solve(ctx, stubProblem())
	if !apperrors.Is(err, apperrors.CodeTimeout) {
		t.Fatalf("err = %v", err)
	}
}

// 以下用真实 CP-SAT 后端验证端到端行为，模型规模很小，秒内可解。

func realEngine() *Engine {
	cfg := DefaultConfig()
	cfg.Budget = 10 * time.Second
	return New(cfg, solver.NewCPSat())
}

func TestSolveBasicRoster(t *testing.T) {
	p := stubProblem()
	p.LeaveRequests = []model.LeaveRequest{{Employee: 1, Day: 3}}
	p.Trailing = model.TrailingDuties{{Employee: 0, Offset: -1}: true}

	result, err := realEngine().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("求解失败: %+v", result)
	}
	if result.Level != 0 {
		t.Fatalf("层级 = %d, want 0", result.Level)
	}
	if len(result.Attempts) != 1 {
		t.Fatalf("尝试数 = %d", len(result.Attempts))
	}
	if issues := validator.CheckAssignment(p, result.Assignment); len(issues) != 0 {
		t.Fatalf("排班违规: %v", issues)
	}
	// 上期末值班者第 0 日必为非番
	if got := result.Assignment.ShiftAt(0, 0); got != p.OffShift() {
		t.Fatalf("员工 0 第 0 日班次 = %d, want 非番", got)
	}
	// 休假申请硬兑现
	if got := result.Assignment.ShiftAt(1, 3); got != p.LeaveShift() {
		t.Fatalf("员工 1 第 3 日班次 = %d, want 休假", got)
	}
	for _, c := range result.CrossChecks {
		if !c.OK() {
			t.Fatalf("跨期校验失败: %+v", c)
		}
	}
}

// 4 人 2 班种下每日轮转被完全锁死，任何排法都出现隔日三连班，
// 层级 0 必然无解，层级 1 放开三连禁令后可解。
func TestSolveRelaxesTripleDoubleBan(t *testing.T) {
	p := &model.Problem{
		Days:      6,
		DutyNames: []string{"甲直", "乙直"},
		Employees: []model.Employee{
			{Name: "张三"}, {Name: "李四"}, {Name: "王五"}, {Name: "赵六"},
		},
	}

	result, err := realEngine().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("求解失败: %+v", result)
	}
	if result.Level != 1 {
		t.Fatalf("层级 = %d, want 1", result.Level)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("尝试数 = %d", len(result.Attempts))
	}
	if result.Attempts[0].Outcome != model.OutcomeInfeasible {
		t.Fatalf("层级 0 结局 = %q", result.Attempts[0].Outcome)
	}
	if issues := validator.CheckAssignment(p, result.Assignment); len(issues) != 0 {
		t.Fatalf("排班违规: %v", issues)
	}
	if len(result.Notes) != 1 || !strings.Contains(result.Notes[0], "层级") {
		t.Fatalf("说明 = %v", result.Notes)
	}
}

// 三人单班种轮转无需任何代价，目标值应为 0
func TestSolveThreeManRotation(t *testing.T) {
	p := &model.Problem{
		Days:      7,
		DutyNames: []string{"甲直"},
		Employees: []model.Employee{{Name: "张三"}, {Name: "李四"}, {Name: "王五"}},
	}

	result, err := realEngine().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Level != 0 {
		t.Fatalf("结果 = %+v", result)
	}
	if result.Objective != 0 {
		t.Fatalf("目标值 = %d, want 0", result.Objective)
	}
	if issues := validator.CheckAssignment(p, result.Assignment); len(issues) != 0 {
		t.Fatalf("排班违规: %v", issues)
	}
}

// 全员前 20 日均申请休假，层级 0~2 无解；层级 3 裁剪申请最多者
// （并列取下标最小）最早 2 日后重试，裁剪须记入说明
func TestSolveTrimRecordedOnHeavyLeave(t *testing.T) {
	p := &model.Problem{
		Days:      30,
		DutyNames: []string{"甲直"},
		Employees: []model.Employee{
			{Name: "张三"}, {Name: "李四"}, {Name: "王五"}, {Name: "赵六"}, {Name: "孙七"},
		},
	}
	for e := 0; e < 5; e++ {
		for d := 0; d < 20; d++ {
			p.LeaveRequests = append(p.LeaveRequests, model.LeaveRequest{Employee: e, Day: d})
		}
	}

	result, err := realEngine().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Trimmed) != 2 {
		t.Fatalf("裁剪数 = %d", len(result.Trimmed))
	}
	for i, r := range result.Trimmed {
		if r.Employee != 0 || r.Day != i {
			t.Fatalf("裁剪记录 = %+v", result.Trimmed)
		}
	}
	trimNoted := false
	for _, n := range result.Notes {
		if strings.Contains(n, "休假裁剪") {
			trimNoted = true
		}
	}
	if !trimNoted {
		t.Fatalf("说明未记录裁剪: %v", result.Notes)
	}
	// 其余员工仍整段休假，裁剪后依旧无解
	if result.Success || result.FailureReason != model.FailureInfeasible {
		t.Fatalf("结果 = %+v", result)
	}
}

// 单人无法满足每日值班加次日休整，所有层级均无解
func TestSolveInfeasibleEverywhere(t *testing.T) {
	p := &model.Problem{
		Days:      4,
		DutyNames: []string{"甲直"},
		Employees: []model.Employee{{Name: "张三"}},
		LeaveRequests: []model.LeaveRequest{
			{Employee: 0, Day: 0}, {Employee: 0, Day: 1}, {Employee: 0, Day: 2},
		},
	}

	result, err := realEngine().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("不应成功")
	}
	if result.FailureReason != model.FailureInfeasible {
		t.Fatalf("失败原因 = %q", result.FailureReason)
	}
	if len(result.Attempts) != 4 {
		t.Fatalf("尝试数 = %d", len(result.Attempts))
	}
	if len(result.Trimmed) != 2 {
		t.Fatalf("裁剪数 = %d", len(result.Trimmed))
	}
}
