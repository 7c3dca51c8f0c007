package relax

import (
	"reflect"
	"testing"

	"github.com/zhiban/zhiban/pkg/model"
)

func TestDeltaPerLevel(t *testing.T) {
	tests := []struct {
		level   Level
		dropGap bool
		divisor int64
		trim    bool
	}{
		{Level0, false, 1, false},
		{Level1, true, 10, false},
		{Level2, true, 100, false},
		{Level3, true, 1000, true},
	}
	for _, tt := range tests {
		d := deltaFor(tt.level)
		if d.DropDoubleDutyGap != tt.dropGap {
			t.Errorf("%v DropDoubleDutyGap = %v", tt.level, d.DropDoubleDutyGap)
		}
		if d.ReliefDivisor != tt.divisor {
			t.Errorf("%v ReliefDivisor = %d, want %d", tt.level, d.ReliefDivisor, tt.divisor)
		}
		if d.TrimLeave != tt.trim {
			t.Errorf("%v TrimLeave = %v", tt.level, d.TrimLeave)
		}
	}
}

func TestControllerAdvances(t *testing.T) {
	c := NewController()
	if c.Level() != Level0 {
		t.Fatalf("初始层级 = %v", c.Level())
	}

	for want := Level1; want <= Level3; want++ {
		if !c.Advance(model.OutcomeInfeasible) {
			t.Fatalf("升至 %v 失败", want)
		}
		if c.Level() != want {
			t.Fatalf("层级 = %v, want %v", c.Level(), want)
		}
	}
	// 层级 3 再失败即终态
	if c.Advance(model.OutcomeInfeasible) {
		t.Fatal("层级 3 失败后不应继续推进")
	}
	if !c.Exhausted() {
		t.Fatal("应进入耗尽状态")
	}
	if len(c.Notes()) != 3 {
		t.Fatalf("应有 3 条缓和说明, got %d", len(c.Notes()))
	}
}

func TestControllerUnknownTreatedAsFailure(t *testing.T) {
	c := NewController()
	if !c.Advance(model.OutcomeUnknown) {
		t.Fatal("未知结果应与无解同样推进层级")
	}
	if c.Level() != Level1 {
		t.Fatalf("层级 = %v", c.Level())
	}
}

func TestTrimLeavePicksHeaviestRequester(t *testing.T) {
	requests := []model.LeaveRequest{
		{Employee: 0, Day: 3},
		{Employee: 1, Day: 9},
		{Employee: 1, Day: 2},
		{Employee: 1, Day: 5},
		{Employee: 0, Day: 6},
	}
	kept, removed := TrimLeave(requests)

	// 员工 1 申请最多，裁掉其最早两日
	want := []model.LeaveRequest{{Employee: 1, Day: 2}, {Employee: 1, Day: 5}}
	if !reflect.DeepEqual(removed, want) {
		t.Fatalf("removed = %v, want %v", removed, want)
	}
	if len(kept) != 3 {
		t.Fatalf("kept = %v", kept)
	}
	for _, r := range removed {
		for _, k := range kept {
			if k == r {
				t.Fatalf("被裁剪的申请 %v 仍在保留集中", r)
			}
		}
	}
}

func TestTrimLeaveDeterministicOnTies(t *testing.T) {
	requests := []model.LeaveRequest{
		{Employee: 2, Day: 1},
		{Employee: 2, Day: 4},
		{Employee: 2, Day: 8},
		{Employee: 0, Day: 0},
		{Employee: 0, Day: 2},
		{Employee: 0, Day: 5},
	}
	// 并列时取下标最小的员工，重复调用结果一致
	_, first := TrimLeave(requests)
	for i := 0; i < 10; i++ {
		_, again := TrimLeave(requests)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("裁剪结果不稳定: %v vs %v", first, again)
		}
	}
	for _, r := range first {
		if r.Employee != 0 {
			t.Fatalf("并列时应选员工 0, got %v", first)
		}
	}
}

func TestTrimLeaveInputUntouched(t *testing.T) {
	requests := []model.LeaveRequest{
		{Employee: 0, Day: 1},
		{Employee: 0, Day: 2},
		{Employee: 0, Day: 3},
	}
	snapshot := append([]model.LeaveRequest(nil), requests...)
	TrimLeave(requests)
	if !reflect.DeepEqual(requests, snapshot) {
		t.Fatal("TrimLeave 修改了输入切片")
	}
}

func TestTrimLeaveNothingToTrim(t *testing.T) {
	// 每人申请数都不超过 MaxTrim 时不裁剪
	requests := []model.LeaveRequest{
		{Employee: 0, Day: 1},
		{Employee: 1, Day: 2},
		{Employee: 1, Day: 4},
	}
	kept, removed := TrimLeave(requests)
	if len(removed) != 0 {
		t.Fatalf("不应裁剪, removed = %v", removed)
	}
	if len(kept) != 3 {
		t.Fatalf("kept = %v", kept)
	}

	kept, removed = TrimLeave(nil)
	if len(removed) != 0 || len(kept) != 0 {
		t.Fatal("空申请集应原样返回")
	}
}
