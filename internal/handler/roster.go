// Package handler 提供HTTP请求处理器
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zhiban/zhiban/internal/metrics"
	"github.com/zhiban/zhiban/internal/repository"
	"github.com/zhiban/zhiban/pkg/errors"
	"github.com/zhiban/zhiban/pkg/model"
	"github.com/zhiban/zhiban/pkg/scheduler"
	"github.com/zhiban/zhiban/pkg/stats"
	"github.com/zhiban/zhiban/pkg/validator"
)

// RosterHandler 排班处理器
type RosterHandler struct {
	engine   *scheduler.Engine
	rosters  repository.RosterRepositoryInterface
	analyzer *stats.Analyzer
}

// NewRosterHandler 创建排班处理器。rosters 为 nil 时不持久化结果。
func NewRosterHandler(engine *scheduler.Engine, rosters repository.RosterRepositoryInterface) *RosterHandler {
	return &RosterHandler{
		engine:   engine,
		rosters:  rosters,
		analyzer: stats.NewAnalyzer(),
	}
}

// EmployeeInput 员工输入
type EmployeeInput struct {
	Name           string         `json:"name"`
	Relief         bool           `json:"relief,omitempty"`
	DutyPriorities map[string]int `json:"duty_priorities,omitempty"`
}

// CellInput 员工×日 的单元输入
type CellInput struct {
	Employee int `json:"employee"`
	Day      int `json:"day"`
}

// PreferenceInput 偏好输入
type PreferenceInput struct {
	Employee int   `json:"employee"`
	Day      int   `json:"day"`
	Duty     int   `json:"duty"`
	Weight   int64 `json:"weight"`
}

// TrailingInput 上期值班事实输入，偏移 -1 或 -2
type TrailingInput struct {
	Employee int `json:"employee"`
	Offset   int `json:"offset"`
}

// AlternatingInput 隔日值守班种输入
type AlternatingInput struct {
	Duty   int `json:"duty"`
	Offset int `json:"offset"`
}

// GenerateRequest 排班生成请求
type GenerateRequest struct {
	Days          int                `json:"days"`
	DutyNames     []string           `json:"duty_names"`
	LeaveName     string             `json:"leave_name,omitempty"`
	Employees     []EmployeeInput    `json:"employees"`
	LeaveRequests []CellInput        `json:"leave_requests,omitempty"`
	ForbiddenDays []CellInput        `json:"forbidden_days,omitempty"`
	Preferences   []PreferenceInput  `json:"preferences,omitempty"`
	Trailing      []TrailingInput    `json:"trailing,omitempty"`
	Alternating   []AlternatingInput `json:"alternating,omitempty"`
}

// GenerateResponse 排班生成响应
type GenerateResponse struct {
	Success       bool                `json:"success"`
	RosterID      string              `json:"roster_id,omitempty"`
	Level         int                 `json:"level"`
	Objective     int64               `json:"objective"`
	Notes         []string            `json:"notes"`
	Attempts      []model.Attempt     `json:"attempts"`
	Roster        map[string][]string `json:"roster,omitempty"`
	Trimmed       []model.LeaveRequest `json:"trimmed,omitempty"`
	CrossChecks   []model.CrossCheck  `json:"cross_checks,omitempty"`
	Metrics       *stats.Metrics      `json:"metrics,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	Duration      string              `json:"duration"`
}

// problemFromRequest 把请求体装配为排班问题
func problemFromRequest(req *GenerateRequest) *model.Problem {
	p := &model.Problem{
		Days:      req.Days,
		DutyNames: req.DutyNames,
		LeaveName: req.LeaveName,
		Trailing:  make(model.TrailingDuties),
	}
	for _, e := range req.Employees {
		p.Employees = append(p.Employees, model.Employee{
			Name:           e.Name,
			Relief:         e.Relief,
			DutyPriorities: e.DutyPriorities,
		})
	}
	for _, r := range req.LeaveRequests {
		p.LeaveRequests = append(p.LeaveRequests, model.LeaveRequest{Employee: r.Employee, Day: r.Day})
	}
	for _, f := range req.ForbiddenDays {
		p.ForbiddenDays = append(p.ForbiddenDays, model.ForbiddenDay{Employee: f.Employee, Day: f.Day})
	}
	for _, pref := range req.Preferences {
		p.Preferences = append(p.Preferences, model.Preference{
			Employee: pref.Employee, Day: pref.Day, Duty: pref.Duty, Weight: pref.Weight,
		})
	}
	for _, t := range req.Trailing {
		p.Trailing[model.TrailingKey{Employee: t.Employee, Offset: t.Offset}] = true
	}
	for _, a := range req.Alternating {
		p.Alternating = append(p.Alternating, model.AlternatingDuty{Duty: a.Duty, Offset: a.Offset})
	}
	return p
}

// Generate 生成一期排班
func (h *RosterHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if verr := validateGenerateRequest(&req); verr != nil {
		respondError(w, verr)
		return
	}

	p := problemFromRequest(&req)
	start := time.Now()
	result, err := h.engine.Solve(r.Context(), p)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	duration := time.Since(start)
	for _, a := range result.Attempts {
		metrics.RecordSolveAttempt(a.Level, string(a.Outcome), a.Duration)
	}
	metrics.RecordSolveSession(result.Level, result.Success, result.Objective, len(result.Trimmed))

	resp := GenerateResponse{
		Success:       result.Success,
		Level:         result.Level,
		Objective:     result.Objective,
		Notes:         result.Notes,
		Attempts:      result.Attempts,
		Trimmed:       result.Trimmed,
		CrossChecks:   result.CrossChecks,
		FailureReason: string(result.FailureReason),
		Duration:      duration.String(),
	}
	if result.Success {
		resp.Roster = result.Assignment.Rows(p)
		m := h.analyzer.Analyze(p, result.Assignment, result.Trimmed)
		resp.Metrics = m
		metrics.SetFairnessGini(m.DutyGini)
	}

	if h.rosters != nil {
		roster, attempts := repository.NewRoster(p.Days, result)
		if err := h.rosters.Create(r.Context(), roster, attempts); err != nil {
			respondError(w, toAppError(err))
			return
		}
		resp.RosterID = roster.ID.String()
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, resp)
}

// validateGenerateRequest 请求体的表层校验，深层校验由问题模型负责
func validateGenerateRequest(req *GenerateRequest) *errors.AppError {
	ve := &errors.ValidationErrors{}
	if req.Days <= 0 {
		ve.Add("days", "排班天数必须为正")
	}
	if len(req.Employees) == 0 {
		ve.Add("employees", "员工列表不能为空")
	}
	if len(req.DutyNames) == 0 {
		ve.Add("duty_names", "值班班种不能为空")
	}
	for i, t := range req.Trailing {
		if t.Offset != -1 && t.Offset != -2 {
			ve.Add("trailing", "上期事实偏移只能是 -1 或 -2: 第 "+strconv.Itoa(i)+" 项")
		}
	}
	if ve.HasErrors() {
		return ve.ToAppError()
	}
	return nil
}

// ValidateRequest 排班复核请求
type ValidateRequest struct {
	GenerateRequest
	// Assignment [员工][日] 班种编号
	Assignment [][]int `json:"assignment"`
}

// ValidateResponse 排班复核响应
type ValidateResponse struct {
	Valid       bool               `json:"valid"`
	Issues      []string           `json:"issues,omitempty"`
	CrossChecks []model.CrossCheck `json:"cross_checks,omitempty"`
}

// Validate 复核一份外部排班表
func (h *RosterHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, errors.New(errors.CodeInvalidInput, "仅支持POST方法"))
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "解析请求失败"))
		return
	}
	if verr := validateGenerateRequest(&req.GenerateRequest); verr != nil {
		respondError(w, verr)
		return
	}

	p := problemFromRequest(&req.GenerateRequest)
	if err := p.Validate(); err != nil {
		respondError(w, toAppError(err))
		return
	}
	if len(req.Assignment) != p.NumEmployees() {
		respondError(w, errors.New(errors.CodeInvalidInput, "排班表行数与员工数不符"))
		return
	}
	a := model.NewAssignment(p.NumEmployees(), p.Days, p.NumDuties())
	for e, row := range req.Assignment {
		if len(row) != p.Days {
			respondError(w, errors.New(errors.CodeInvalidInput, "排班表列数与天数不符"))
			return
		}
		for d, s := range row {
			if s < 0 || s >= p.NumShifts() {
				respondError(w, errors.New(errors.CodeInvalidInput, "排班表含非法班种编号"))
				return
			}
			a.Shifts[e][d] = model.ShiftID(s)
		}
	}

	issues := validator.CheckAssignment(p, a)
	crossChecks := validator.CheckCrossPeriod(p, a)
	valid := len(issues) == 0
	for _, c := range crossChecks {
		if !c.OK() {
			valid = false
		}
	}

	respondJSON(w, http.StatusOK, ValidateResponse{
		Valid:       valid,
		Issues:      issues,
		CrossChecks: crossChecks,
	})
}

// Get 按编号查询历史排班
func (h *RosterHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.rosters == nil {
		respondError(w, errors.New(errors.CodeNotFound, "未启用排班持久化"))
		return
	}
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的排班编号"))
		return
	}
	roster, attempts, err := h.rosters.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"roster":   roster,
		"attempts": attempts,
	})
}

// List 分页列出历史排班
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.rosters == nil {
		respondError(w, errors.New(errors.CodeNotFound, "未启用排班持久化"))
		return
	}
	filter := repository.DefaultListFilter()
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter = filter.WithLimit(n)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter = filter.WithOffset(n)
		}
	}
	if v := r.URL.Query().Get("success"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter = filter.WithSuccess(b)
		}
	}
	rosters, total, err := h.rosters.List(r.Context(), filter)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":   total,
		"rosters": rosters,
	})
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, err *errors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"code":    err.Code,
		"message": err.Message,
		"details": err.Details,
		"fields":  err.Fields,
	})
}

// toAppError 归一化为 AppError
func toAppError(err error) *errors.AppError {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr
	}
	if err == context.DeadlineExceeded {
		return errors.New(errors.CodeTimeout, "排班计算超时")
	}
	if err == context.Canceled {
		return errors.New(errors.CodeInternal, "排班请求已取消")
	}
	return errors.Wrap(err, errors.CodeInternal, "排班失败")
}
