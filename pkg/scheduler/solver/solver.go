// Package solver 封装底层 CP-SAT 求解器
package solver

import (
	"context"
	"math"
	"time"

	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"
	sppb "github.com/google/or-tools/ortools/sat/proto/satparameters"
	"google.golang.org/protobuf/proto"

	apperrors "github.com/zhiban/zhiban/pkg/errors"
	"github.com/zhiban/zhiban/pkg/model"
)

// Response 一次求解的归一化结果
type Response struct {
	Outcome   model.Outcome
	Objective int64
	// Raw 底层求解器原始响应，供读取变量取值
	Raw *cmpb.CpSolverResponse
}

// Backend 求解后端。实现必须把底层状态归一化为三态结果：
// 可行（含最优）、不可行、未知（超时等）。模型无效按错误返回。
type Backend interface {
	Solve(ctx context.Context, in *cmpb.CpModelProto, budget time.Duration, workers int) (*Response, error)
}

// CPSat 基于 OR-Tools CP-SAT 的求解后端
type CPSat struct{}

// NewCPSat 创建 CP-SAT 后端
func NewCPSat() *CPSat {
	return &CPSat{}
}

// Solve 在给定时间预算内求解模型。ctx 取消会中断底层求解，
// 被中断的求解按未知结果返回。
func (s *CPSat) Solve(ctx context.Context, in *cmpb.CpModelProto, budget time.Duration, workers int) (*Response, error) {
	params := &sppb.SatParameters{
		MaxTimeInSeconds: proto.Float64(budget.Seconds()),
	}
	if workers > 0 {
		params.NumWorkers = proto.Int32(int32(workers))
	}

	interrupt := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			close(interrupt)
		case <-done:
		}
	}()

	res, err := cpmodel.SolveCpModelInterruptibleWithParameters(in, params, interrupt)
	if err != nil {
		return nil, apperrors.SolverFailure(err)
	}

	var outcome model.Outcome
	switch res.GetStatus() {
	case cmpb.CpSolverStatus_OPTIMAL, cmpb.CpSolverStatus_FEASIBLE:
		outcome = model.OutcomeFeasible
	case cmpb.CpSolverStatus_INFEASIBLE:
		outcome = model.OutcomeInfeasible
	case cmpb.CpSolverStatus_MODEL_INVALID:
		return nil, apperrors.New(apperrors.CodeSolverFailure, "CP-SAT 模型无效")
	default:
		outcome = model.OutcomeUnknown
	}

	return &Response{
		Outcome:   outcome,
		Objective: int64(math.Round(res.GetObjectiveValue())),
		Raw:       res,
	}, nil
}
