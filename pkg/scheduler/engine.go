// Package scheduler 排班求解驱动：校验输入、逐层松弛求解、产出结果
package scheduler

import (
	"context"
	"time"

	apperrors "github.com/zhiban/zhiban/pkg/errors"
	"github.com/zhiban/zhiban/pkg/logger"
	"github.com/zhiban/zhiban/pkg/model"
	"github.com/zhiban/zhiban/pkg/scheduler/constraint"
	"github.com/zhiban/zhiban/pkg/scheduler/relax"
	"github.com/zhiban/zhiban/pkg/scheduler/solver"
	"github.com/zhiban/zhiban/pkg/validator"
)

// Config 求解驱动配置
type Config struct {
	// Budget 单次求解尝试的时间预算
	Budget time.Duration
	// Workers CP-SAT 并行工作线程数，0 使用求解器默认值
	Workers int
	Weights constraint.Weights
}

// DefaultConfig 生产默认配置
func DefaultConfig() Config {
	return Config{
		Budget:  30 * time.Second,
		Workers: 0,
		Weights: constraint.DefaultWeights(),
	}
}

// Engine 排班求解引擎。单次 Solve 内部串行，多个 Solve 可并发调用。
type Engine struct {
	cfg     Config
	builder *constraint.Builder
	backend solver.Backend
	log     *logger.SolveLogger
}

// New 创建求解引擎
func New(cfg Config, backend solver.Backend) *Engine {
	return &Engine{
		cfg:     cfg,
		builder: constraint.NewBuilder(cfg.Weights),
		backend: backend,
		log:     logger.NewSolveLogger(),
	}
}

// Solve 求解一期排班。不可行时逐层松弛重试，全部层级失败返回
// Success=false 的结果并注明失败原因；输入非法或求解器故障返回错误。
func (e *Engine) Solve(ctx context.Context, p *model.Problem) (*model.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	e.log.StartSolve(p.NumEmployees(), p.Days, p.NumDuties())
	start := time.Now()

	ctrl := relax.NewController()
	leave := append([]model.LeaveRequest(nil), p.LeaveRequests...)
	var trimmed []model.LeaveRequest
	result := &model.Result{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeTimeout, "排班求解被取消")
		}

		delta := ctrl.Delta()
		if delta.TrimLeave && len(trimmed) == 0 {
			kept, removed := relax.TrimLeave(leave)
			if len(removed) == 0 {
				result.Notes = ctrl.Notes()
				result.FailureReason = model.FailureNothingToTrim
				e.log.SolveFailed(string(result.FailureReason), time.Since(start))
				return result, nil
			}
			leave, trimmed = kept, removed
			ctrl.Note(relax.TrimNote(p, removed))
		}

		cm, err := e.builder.Build(p, leave, trimmed, delta)
		if err != nil {
			return nil, err
		}

		attemptStart := time.Now()
		resp, err := e.backend.Solve(ctx, cm.Proto, e.cfg.Budget, e.cfg.Workers)
		if err != nil {
			return nil, err
		}
		attemptDur := time.Since(attemptStart)
		result.Attempts = append(result.Attempts, model.Attempt{
			Level:    int(delta.Level),
			Outcome:  resp.Outcome,
			Duration: attemptDur,
		})
		e.log.Attempt(int(delta.Level), string(resp.Outcome), attemptDur)

		if resp.Outcome == model.OutcomeFeasible {
			result.Success = true
			result.Level = int(delta.Level)
			result.Objective = resp.Objective
			result.Assignment = cm.ExtractAssignment(resp.Raw, p)
			result.Trimmed = trimmed
			result.Notes = ctrl.Notes()
			result.CrossChecks = validator.CheckCrossPeriod(p, result.Assignment)
			e.log.SolveComplete(result.Level, result.Objective, time.Since(start))
			return result, nil
		}

		if !ctrl.Advance(resp.Outcome) {
			result.Trimmed = trimmed
			result.Notes = ctrl.Notes()
			result.FailureReason = model.FailureInfeasible
			e.log.SolveFailed(string(result.FailureReason), time.Since(start))
			return result, nil
		}
		e.log.Relaxed(int(ctrl.Level()), ctrl.Notes()[len(ctrl.Notes())-1])
	}
}
