package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zhiban/zhiban/internal/repository"
	apperrors "github.com/zhiban/zhiban/pkg/errors"
	"github.com/zhiban/zhiban/pkg/scheduler"
	"github.com/zhiban/zhiban/pkg/scheduler/solver"
)

// memRosterRepo 内存仓储，测试持久化路径
type memRosterRepo struct {
	rosters  map[uuid.UUID]*repository.Roster
	attempts map[uuid.UUID][]repository.RosterAttempt
}

func newMemRosterRepo() *memRosterRepo {
	return &memRosterRepo{
		rosters:  make(map[uuid.UUID]*repository.Roster),
		attempts: make(map[uuid.UUID][]repository.RosterAttempt),
	}
}

func (m *memRosterRepo) Create(_ context.Context, roster *repository.Roster, attempts []repository.RosterAttempt) error {
	m.rosters[roster.ID] = roster
	m.attempts[roster.ID] = attempts
	return nil
}

func (m *memRosterRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Roster, []repository.RosterAttempt, error) {
	r, ok := m.rosters[id]
	if !ok {
		return nil, nil, apperrors.New(apperrors.CodeNotFound, "排班结果不存在")
	}
	return r, m.attempts[id], nil
}

func (m *memRosterRepo) List(_ context.Context, _ repository.ListFilter) ([]*repository.Roster, int, error) {
	var out []*repository.Roster
	for _, r := range m.rosters {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *memRosterRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.rosters, id)
	return nil
}

func testHandler(repo repository.RosterRepositoryInterface) *RosterHandler {
	cfg := scheduler.DefaultConfig()
	cfg.Budget = 10 * time.Second
	return NewRosterHandler(scheduler.New(cfg, solver.NewCPSat()), repo)
}

func postJSON(t *testing.T, handle http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	handle(rec, req)
	return rec
}

func generateRequestFixture() GenerateRequest {
	return GenerateRequest{
		Days:      7,
		DutyNames: []string{"甲直", "乙直"},
		Employees: []EmployeeInput{
			{Name: "张三"}, {Name: "李四"}, {Name: "王五"},
			{Name: "赵六"}, {Name: "孙七", Relief: true},
		},
		LeaveRequests: []CellInput{{Employee: 1, Day: 3}},
		Trailing:      []TrailingInput{{Employee: 0, Offset: -1}},
	}
}

func TestGenerateSuccess(t *testing.T) {
	repo := newMemRosterRepo()
	h := testHandler(repo)

	rec := postJSON(t, h.Generate, generateRequestFixture())
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Level != 0 {
		t.Fatalf("响应 = %+v", resp)
	}
	if len(resp.Roster) != 5 {
		t.Fatalf("排班表行数 = %d", len(resp.Roster))
	}
	for name, row := range resp.Roster {
		if len(row) != 7 {
			t.Fatalf("%s 的排班天数 = %d", name, len(row))
		}
	}
	if resp.Metrics == nil {
		t.Fatal("成功响应应附带统计指标")
	}
	if resp.RosterID == "" {
		t.Fatal("启用持久化时应返回排班编号")
	}
	id, err := uuid.Parse(resp.RosterID)
	if err != nil {
		t.Fatalf("排班编号非法: %v", err)
	}
	stored, attempts, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Success || len(stored.Assignment) != 5 || len(attempts) != 1 {
		t.Fatalf("持久化结果 = %+v, attempts = %d", stored, len(attempts))
	}
}

func TestGenerateInfeasibleReturns422(t *testing.T) {
	h := testHandler(nil)
	req := GenerateRequest{
		Days:      4,
		DutyNames: []string{"甲直"},
		Employees: []EmployeeInput{{Name: "张三"}},
	}

	rec := postJSON(t, h.Generate, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("状态码 = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success || resp.FailureReason == "" {
		t.Fatalf("响应 = %+v", resp)
	}
	if len(resp.Attempts) == 0 {
		t.Fatal("失败响应应携带逐层尝试记录")
	}
}

func TestGenerateRejectsBadRequest(t *testing.T) {
	h := testHandler(nil)

	rec := postJSON(t, h.Generate, GenerateRequest{Days: -1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d", rec.Code)
	}
	var body struct {
		Code   string                 `json:"code"`
		Fields map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != string(apperrors.CodeValidationFail) {
		t.Fatalf("错误码 = %s", body.Code)
	}
	for _, field := range []string{"days", "employees", "duty_names"} {
		if _, ok := body.Fields[field]; !ok {
			t.Fatalf("缺少字段错误 %s: %v", field, body.Fields)
		}
	}
}

func TestGenerateRejectsNonPost(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Generate(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d", rec.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	h := testHandler(nil)
	off, leave := 3, 2
	req := ValidateRequest{
		GenerateRequest: GenerateRequest{
			Days:      4,
			DutyNames: []string{"甲直", "乙直"},
			Employees: []EmployeeInput{
				{Name: "张三"}, {Name: "李四"}, {Name: "王五"}, {Name: "赵六"},
			},
		},
		Assignment: [][]int{
			{0, off, 0, off},
			{1, off, 1, off},
			{leave, 0, off, 0},
			{leave, 1, off, 1},
		},
	}

	rec := postJSON(t, h.Validate, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp ValidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid || len(resp.Issues) != 0 {
		t.Fatalf("合规排班表复核 = %+v", resp)
	}

	// 挖掉一个值班形成覆盖缺口
	req.Assignment[0][2] = leave
	rec = postJSON(t, h.Validate, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Valid || len(resp.Issues) == 0 {
		t.Fatalf("违规排班表复核 = %+v", resp)
	}
}

func TestValidateRejectsDimensionMismatch(t *testing.T) {
	h := testHandler(nil)
	req := ValidateRequest{
		GenerateRequest: GenerateRequest{
			Days:      2,
			DutyNames: []string{"甲直"},
			Employees: []EmployeeInput{{Name: "张三"}, {Name: "李四"}},
		},
		Assignment: [][]int{{0, 2}},
	}
	rec := postJSON(t, h.Validate, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("状态码 = %d", rec.Code)
	}
}

func TestGetWithoutPersistence(t *testing.T) {
	h := testHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/?id="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d", rec.Code)
	}
}

func TestListWithPersistence(t *testing.T) {
	repo := newMemRosterRepo()
	h := testHandler(repo)
	postJSON(t, h.Generate, generateRequestFixture())

	req := httptest.NewRequest(http.MethodGet, "/?limit=10", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("状态码 = %d", rec.Code)
	}
	var body struct {
		Total   int                  `json:"total"`
		Rosters []*repository.Roster `json:"rosters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || len(body.Rosters) != 1 {
		t.Fatalf("列表 = %+v", body)
	}
}
