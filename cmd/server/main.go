// ZhiBan 值班表引擎服务
// 主程序入口

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/zhiban/zhiban/internal/config"
	"github.com/zhiban/zhiban/internal/database"
	"github.com/zhiban/zhiban/internal/handler"
	"github.com/zhiban/zhiban/internal/metrics"
	"github.com/zhiban/zhiban/internal/repository"
	"github.com/zhiban/zhiban/pkg/logger"
	"github.com/zhiban/zhiban/pkg/scheduler"
	"github.com/zhiban/zhiban/pkg/scheduler/constraint"
	"github.com/zhiban/zhiban/pkg/scheduler/solver"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: "console",
	})

	fmt.Printf("ZhiBan 值班表引擎 v%s\n", Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	// 数据库不可用时退化为无持久化运行
	var rosters repository.RosterRepositoryInterface
	if db, err := database.New(&cfg.Database); err != nil {
		logger.Warn().Err(err).Msg("数据库不可用，历史排班查询被停用")
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := db.Migrate(ctx); err != nil {
			cancel()
			logger.Error().Err(err).Msg("初始化表结构失败")
			os.Exit(1)
		}
		cancel()
		rosters = repository.NewRosterRepository(db)
	}

	// 求解引擎
	weights := constraint.DefaultWeights()
	weights.Relief = cfg.Solver.ReliefWeight
	weights.Leave = cfg.Solver.LeaveWeight
	weights.DoubleDuty = cfg.Solver.DoubleDutyWeight
	weights.DoubleDutyGap = cfg.Solver.GapWeight
	weights.CrossPeriod = cfg.Solver.CrossPeriodWeight
	engine := scheduler.New(scheduler.Config{
		Budget:  cfg.Solver.Budget,
		Workers: cfg.Solver.Workers,
		Weights: weights,
	}, solver.NewCPSat())

	rosterHandler := handler.NewRosterHandler(engine, rosters)

	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"zhiban"}`))
	})

	// 版本信息端点
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","build_time":"%s","git_commit":"%s"}`, Version, BuildTime, GitCommit)
	})

	// API 根路由
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"message": "ZhiBan 值班表引擎 API v1",
			"endpoints": {
				"roster": {
					"generate": "POST /api/v1/roster/generate",
					"validate": "POST /api/v1/roster/validate",
					"get": "GET /api/v1/roster/get?id=",
					"list": "GET /api/v1/roster/list"
				},
				"rules": "GET /api/v1/rules"
			}
		}`))
	})

	mux.HandleFunc("/api/v1/roster/generate", rosterHandler.Generate)
	mux.HandleFunc("/api/v1/roster/validate", rosterHandler.Validate)
	mux.HandleFunc("/api/v1/roster/get", rosterHandler.Get)
	mux.HandleFunc("/api/v1/roster/list", rosterHandler.List)

	// 规则说明 API
	mux.HandleFunc("/api/v1/rules", handleRules(weights))

	// Prometheus 指标端点
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// 中间件执行顺序：requestID -> rateLimit -> cors -> logging -> handler
	root := requestIDMiddleware(rateLimitMiddleware(corsMiddleware(loggingMiddleware(mux))))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.API.Timeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("url", fmt.Sprintf("http://localhost:%d", cfg.App.Port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}

	logger.Info().Msg("服务器已关闭")
}

// RuleInfo 单条规则说明
type RuleInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // hard/soft
	Description string `json:"description"`
	Weight      int64  `json:"weight,omitempty"`
	Levels      string `json:"levels"` // 生效层级
}

// handleRules 返回引擎实现的排班规则及生效层级
func handleRules(w constraint.Weights) http.HandlerFunc {
	rules := []RuleInfo{
		{Name: "exclusive", Type: "hard", Description: "每员工每日恰好一个班种", Levels: "0-3"},
		{Name: "coverage", Type: "hard", Description: "每值班班种每日恰好一人，隔日值守班种按奇偶", Levels: "0-3"},
		{Name: "rest_after_duty", Type: "hard", Description: "值班翌日强制非番", Levels: "0-3"},
		{Name: "off_needs_duty", Type: "hard", Description: "非番前一日必须值班", Levels: "0-3"},
		{Name: "no_double_off", Type: "hard", Description: "禁止连续非番", Levels: "0-3"},
		{Name: "no_triple_double", Type: "hard", Description: "禁止 d、d+2、d+4 三日连环值班", Levels: "0"},
		{Name: "leave_request", Type: "hard", Description: "休假申请强制兑现，层级 3 可裁剪 2 条降为软惩罚", Levels: "0-3"},
		{Name: "forbidden_day", Type: "hard", Description: "禁排日强制休假，不参与裁剪", Levels: "0-3"},
		{Name: "priority_ban", Type: "hard", Description: "优先度 0 的班种绝对禁止", Levels: "0-3"},
		{Name: "cross_period_rest", Type: "hard", Description: "上期最后一日值班则第 0 日非番", Levels: "0-3"},
		{Name: "cross_period_duty_ban", Type: "hard", Description: "上期倒数第二日值班则第 0 日禁止值班", Levels: "0"},
		{Name: "relief_usage", Type: "soft", Description: "替补使用惩罚，权重随层级按 10 的幂衰减", Weight: w.Relief, Levels: "0-3"},
		{Name: "leave_violation", Type: "soft", Description: "被裁剪休假未兑现惩罚", Weight: w.Leave, Levels: "3"},
		{Name: "double_duty", Type: "soft", Description: "隔一日再值班惩罚", Weight: w.DoubleDuty, Levels: "0-3"},
		{Name: "double_duty_gap", Type: "soft", Description: "双班次数差距均衡", Weight: w.DoubleDutyGap, Levels: "0"},
		{Name: "cross_period_double_duty", Type: "soft", Description: "跨期双班惩罚", Weight: w.CrossPeriod, Levels: "1-3"},
	}
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		json.NewEncoder(rw).Encode(map[string]interface{}{"rules": rules})
	}
}

// requestIDMiddleware 请求ID追踪中间件
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

// loggingMiddleware 日志中间件
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID, _ := r.Context().Value(requestIDKey{}).(string)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("duration", duration).
			Msg("请求处理")

		metrics.RecordRequestMetrics(r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// responseWriter 包装ResponseWriter以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RateLimiter 简单的令牌桶限流器
type RateLimiter struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter 创建限流器
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	return &RateLimiter{
		tokens:     requestsPerSecond,
		maxTokens:  requestsPerSecond * 2, // 允许突发流量
		refillRate: requestsPerSecond,
		lastRefill: time.Now(),
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

var globalRateLimiter = NewRateLimiter(100) // 默认 100 QPS

// rateLimitMiddleware 限流中间件
func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !globalRateLimiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   true,
				"code":    "RATE_LIMITED",
				"message": "请求过于频繁，请稍后重试",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware CORS中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
