// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/zhiban/zhiban/pkg/errors"
	"github.com/zhiban/zhiban/pkg/model"
)

// Roster 一期排班的持久化记录
type Roster struct {
	ID            uuid.UUID  `json:"id"`
	Days          int        `json:"days"`
	RelaxLevel    int        `json:"relax_level"`
	Objective     int64      `json:"objective"`
	Success       bool       `json:"success"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Notes         []string   `json:"notes"`
	Assignment    [][]int    `json:"assignment,omitempty"` // [员工][日] 班种编号
	CreatedAt     time.Time  `json:"created_at"`
}

// RosterAttempt 单次松弛层级的求解尝试记录
type RosterAttempt struct {
	RosterID   uuid.UUID `json:"roster_id"`
	RelaxLevel int       `json:"relax_level"`
	Outcome    string    `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
}

// NewRoster 由求解结果构造持久化记录
func NewRoster(days int, result *model.Result) (*Roster, []RosterAttempt) {
	r := &Roster{
		ID:            uuid.New(),
		Days:          days,
		RelaxLevel:    result.Level,
		Objective:     result.Objective,
		Success:       result.Success,
		FailureReason: string(result.FailureReason),
		Notes:         result.Notes,
		CreatedAt:     time.Now().UTC(),
	}
	if result.Assignment != nil {
		r.Assignment = make([][]int, len(result.Assignment.Shifts))
		for e, row := range result.Assignment.Shifts {
			r.Assignment[e] = make([]int, len(row))
			for d, shift := range row {
				r.Assignment[e][d] = int(shift)
			}
		}
	}
	attempts := make([]RosterAttempt, 0, len(result.Attempts))
	for _, a := range result.Attempts {
		attempts = append(attempts, RosterAttempt{
			RosterID:   r.ID,
			RelaxLevel: a.Level,
			Outcome:    string(a.Outcome),
			DurationMS: a.Duration.Milliseconds(),
		})
	}
	return r, attempts
}

// RosterRepositoryInterface 排班结果仓储接口
type RosterRepositoryInterface interface {
	Create(ctx context.Context, roster *Roster, attempts []RosterAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*Roster, []RosterAttempt, error)
	List(ctx context.Context, filter ListFilter) ([]*Roster, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RosterRepository 排班结果仓储实现
type RosterRepository struct {
	db DB
}

// NewRosterRepository 创建排班结果仓储
func NewRosterRepository(db DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// Create 写入排班结果与逐层尝试记录
func (r *RosterRepository) Create(ctx context.Context, roster *Roster, attempts []RosterAttempt) error {
	notes, err := json.Marshal(roster.Notes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "序列化求解轨迹失败")
	}
	var assignment []byte
	if roster.Assignment != nil {
		assignment, err = json.Marshal(roster.Assignment)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "序列化排班表失败")
		}
	}

	query := `
		INSERT INTO rosters (id, days, relax_level, objective, success, failure_reason, notes, assignment, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		roster.ID, roster.Days, roster.RelaxLevel, roster.Objective,
		roster.Success, roster.FailureReason, notes, assignment, roster.CreatedAt,
	); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "写入排班记录失败")
	}

	for _, a := range attempts {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO roster_attempts (roster_id, relax_level, outcome, duration_ms)
			VALUES ($1, $2, $3, $4)`,
			a.RosterID, a.RelaxLevel, a.Outcome, a.DurationMS,
		); err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "写入求解尝试记录失败")
		}
	}
	return nil
}

// GetByID 按编号读取排班记录及其尝试轨迹
func (r *RosterRepository) GetByID(ctx context.Context, id uuid.UUID) (*Roster, []RosterAttempt, error) {
	roster := &Roster{}
	var failureReason sql.NullString
	var notes, assignment []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, days, relax_level, objective, success, failure_reason, notes, assignment, created_at
		FROM rosters WHERE id = $1`, id,
	).Scan(&roster.ID, &roster.Days, &roster.RelaxLevel, &roster.Objective,
		&roster.Success, &failureReason, &notes, &assignment, &roster.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("排班记录 %s 不存在", id))
	}
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "读取排班记录失败")
	}
	roster.FailureReason = failureReason.String
	if err := json.Unmarshal(notes, &roster.Notes); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeInternal, "解析求解轨迹失败")
	}
	if len(assignment) > 0 {
		if err := json.Unmarshal(assignment, &roster.Assignment); err != nil {
			return nil, nil, apperrors.Wrap(err, apperrors.CodeInternal, "解析排班表失败")
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT roster_id, relax_level, outcome, duration_ms
		FROM roster_attempts WHERE roster_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "读取求解尝试记录失败")
	}
	defer rows.Close()

	var attempts []RosterAttempt
	for rows.Next() {
		var a RosterAttempt
		if err := rows.Scan(&a.RosterID, &a.RelaxLevel, &a.Outcome, &a.DurationMS); err != nil {
			return nil, nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "扫描求解尝试记录失败")
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "遍历求解尝试记录失败")
	}
	return roster, attempts, nil
}

// List 分页列出排班记录
func (r *RosterRepository) List(ctx context.Context, filter ListFilter) ([]*Roster, int, error) {
	where := ""
	args := []interface{}{}
	if filter.Success != nil {
		where = "WHERE success = $1"
		args = append(args, *filter.Success)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rosters "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "统计排班记录失败")
	}

	orderBy := filter.OrderBy
	if orderBy != "created_at" && orderBy != "relax_level" && orderBy != "objective" {
		orderBy = "created_at"
	}
	dir := "DESC"
	if filter.OrderDir == "asc" {
		dir = "ASC"
	}
	query := fmt.Sprintf(`
		SELECT id, days, relax_level, objective, success, failure_reason, notes, created_at
		FROM rosters %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		where, orderBy, dir, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询排班记录失败")
	}
	defer rows.Close()

	var rosters []*Roster
	for rows.Next() {
		roster := &Roster{}
		var failureReason sql.NullString
		var notes []byte
		if err := rows.Scan(&roster.ID, &roster.Days, &roster.RelaxLevel, &roster.Objective,
			&roster.Success, &failureReason, &notes, &roster.CreatedAt); err != nil {
			return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "扫描排班记录失败")
		}
		roster.FailureReason = failureReason.String
		if err := json.Unmarshal(notes, &roster.Notes); err != nil {
			return nil, 0, apperrors.Wrap(err, apperrors.CodeInternal, "解析求解轨迹失败")
		}
		rosters = append(rosters, roster)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "遍历排班记录失败")
	}
	return rosters, total, nil
}

// Delete 删除排班记录，尝试轨迹随外键级联删除
func (r *RosterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM rosters WHERE id = $1", id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "删除排班记录失败")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("排班记录 %s 不存在", id))
	}
	return nil
}
