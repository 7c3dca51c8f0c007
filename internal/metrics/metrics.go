// Package metrics 提供Prometheus监控指标
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Registry 指标注册表
type Registry struct {
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	mu         sync.RWMutex
}

// Counter 计数器
type Counter struct {
	Name   string
	Help   string
	Labels []string
	values map[string]float64
	mu     sync.RWMutex
}

// Gauge 仪表盘
type Gauge struct {
	Name   string
	Help   string
	Labels []string
	values map[string]float64
	mu     sync.RWMutex
}

// Histogram 直方图
type Histogram struct {
	Name    string
	Help    string
	Labels  []string
	Buckets []float64
	counts  map[string][]int
	sums    map[string]float64
	mu      sync.RWMutex
}

var (
	registry *Registry
	once     sync.Once
)

// GetRegistry 获取全局注册表
func GetRegistry() *Registry {
	once.Do(func() {
		registry = &Registry{
			counters:   make(map[string]*Counter),
			gauges:     make(map[string]*Gauge),
			histograms: make(map[string]*Histogram),
		}
		initDefaultMetrics()
	})
	return registry
}

// initDefaultMetrics 初始化默认指标
func initDefaultMetrics() {
	registry.NewCounter("zhiban_http_requests_total", "HTTP请求总数", []string{"method", "path", "status"})

	registry.NewHistogram("zhiban_http_request_duration_seconds", "HTTP请求延迟",
		[]string{"method", "path"},
		[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0})

	// 每个缓和层级的求解尝试
	registry.NewCounter("zhiban_solve_attempts_total", "各缓和层级求解尝试次数", []string{"level", "outcome"})

	registry.NewHistogram("zhiban_solve_duration_seconds", "单层级求解耗时",
		[]string{"level"},
		[]float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0})

	// 整次求解会话
	registry.NewCounter("zhiban_solve_sessions_total", "求解会话次数", []string{"status", "level"})

	registry.NewCounter("zhiban_leave_trimmed_total", "被裁剪的休假申请数", []string{})

	registry.NewGauge("zhiban_last_objective", "最近一次成功求解的目标函数值", []string{})

	registry.NewGauge("zhiban_fairness_gini", "最近一期排班的值班基尼系数", []string{})

	registry.NewGauge("zhiban_db_connections", "数据库连接数", []string{"state"})
}

// NewCounter 创建计数器
func (r *Registry) NewCounter(name, help string, labels []string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter := &Counter{
		Name:   name,
		Help:   help,
		Labels: labels,
		values: make(map[string]float64),
	}
	r.counters[name] = counter
	return counter
}

// NewGauge 创建仪表盘
func (r *Registry) NewGauge(name, help string, labels []string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	gauge := &Gauge{
		Name:   name,
		Help:   help,
		Labels: labels,
		values: make(map[string]float64),
	}
	r.gauges[name] = gauge
	return gauge
}

// NewHistogram 创建直方图
func (r *Registry) NewHistogram(name, help string, labels []string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	histogram := &Histogram{
		Name:    name,
		Help:    help,
		Labels:  labels,
		Buckets: buckets,
		counts:  make(map[string][]int),
		sums:    make(map[string]float64),
	}
	r.histograms[name] = histogram
	return histogram
}

// GetCounter 获取计数器
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge 获取仪表盘
func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// GetHistogram 获取直方图
func (r *Registry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// Inc 增加计数
func (c *Counter) Inc(labelValues ...string) {
	c.Add(1, labelValues...)
}

// Add 增加指定值
func (c *Counter) Add(value float64, labelValues ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[labelKey(labelValues)] += value
}

// Set 设置值
func (g *Gauge) Set(value float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[labelKey(labelValues)] = value
}

// Add 增加指定值
func (g *Gauge) Add(value float64, labelValues ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[labelKey(labelValues)] += value
}

// Observe 记录观测值
func (h *Histogram) Observe(value float64, labelValues ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := labelKey(labelValues)
	if _, exists := h.counts[key]; !exists {
		h.counts[key] = make([]int, len(h.Buckets)+1)
	}
	for i, bucket := range h.Buckets {
		if value <= bucket {
			h.counts[key][i]++
		}
	}
	h.counts[key][len(h.Buckets)]++ // +Inf
	h.sums[key] += value
}

// labelKey 生成标签键
func labelKey(labels []string) string {
	return strings.Join(labels, ",")
}

// formatLabels 格式化标签
func formatLabels(names []string, key string) string {
	vals := strings.Split(key, ",")
	parts := make([]string, len(names))
	for i, name := range names {
		val := ""
		if i < len(vals) {
			val = vals[i]
		}
		parts[i] = fmt.Sprintf("%s=%q", name, val)
	}
	return strings.Join(parts, ",")
}

// Handler 返回Prometheus文本格式的指标HTTP处理器
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		reg := GetRegistry()
		reg.mu.RLock()
		defer reg.mu.RUnlock()

		for _, counter := range reg.counters {
			fmt.Fprintf(w, "# HELP %s %s\n", counter.Name, counter.Help)
			fmt.Fprintf(w, "# TYPE %s counter\n", counter.Name)
			counter.mu.RLock()
			for key, value := range counter.values {
				writeSample(w, counter.Name, counter.Labels, key, value)
			}
			counter.mu.RUnlock()
		}

		for _, gauge := range reg.gauges {
			fmt.Fprintf(w, "# HELP %s %s\n", gauge.Name, gauge.Help)
			fmt.Fprintf(w, "# TYPE %s gauge\n", gauge.Name)
			gauge.mu.RLock()
			for key, value := range gauge.values {
				writeSample(w, gauge.Name, gauge.Labels, key, value)
			}
			gauge.mu.RUnlock()
		}

		for _, histogram := range reg.histograms {
			fmt.Fprintf(w, "# HELP %s %s\n", histogram.Name, histogram.Help)
			fmt.Fprintf(w, "# TYPE %s histogram\n", histogram.Name)
			histogram.mu.RLock()
			for key, counts := range histogram.counts {
				labels := formatLabels(histogram.Labels, key)
				cumulative := 0
				for i, bucket := range histogram.Buckets {
					cumulative += counts[i]
					writeBucket(w, histogram.Name, labels, fmt.Sprintf("%g", bucket), cumulative)
				}
				cumulative += counts[len(histogram.Buckets)]
				writeBucket(w, histogram.Name, labels, "+Inf", cumulative)
				if key == "" {
					fmt.Fprintf(w, "%s_sum %f\n", histogram.Name, histogram.sums[key])
					fmt.Fprintf(w, "%s_count %d\n", histogram.Name, cumulative)
				} else {
					fmt.Fprintf(w, "%s_sum{%s} %f\n", histogram.Name, labels, histogram.sums[key])
					fmt.Fprintf(w, "%s_count{%s} %d\n", histogram.Name, labels, cumulative)
				}
			}
			histogram.mu.RUnlock()
		}
	})
}

func writeSample(w http.ResponseWriter, name string, labels []string, key string, value float64) {
	if key == "" {
		fmt.Fprintf(w, "%s %f\n", name, value)
		return
	}
	fmt.Fprintf(w, "%s{%s} %f\n", name, formatLabels(labels, key), value)
}

func writeBucket(w http.ResponseWriter, name, labels, le string, cumulative int) {
	if labels == "" {
		fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, le, cumulative)
		return
	}
	fmt.Fprintf(w, "%s_bucket{%s,le=%q} %d\n", name, labels, le, cumulative)
}

// RecordRequestMetrics 记录请求指标
func RecordRequestMetrics(method, path string, status int, duration time.Duration) {
	reg := GetRegistry()
	if counter := reg.GetCounter("zhiban_http_requests_total"); counter != nil {
		counter.Inc(method, path, fmt.Sprintf("%d", status))
	}
	if histogram := reg.GetHistogram("zhiban_http_request_duration_seconds"); histogram != nil {
		histogram.Observe(duration.Seconds(), method, path)
	}
}

// RecordSolveAttempt 记录单层级求解尝试
func RecordSolveAttempt(level int, outcome string, duration time.Duration) {
	reg := GetRegistry()
	lv := fmt.Sprintf("%d", level)
	if counter := reg.GetCounter("zhiban_solve_attempts_total"); counter != nil {
		counter.Inc(lv, outcome)
	}
	if histogram := reg.GetHistogram("zhiban_solve_duration_seconds"); histogram != nil {
		histogram.Observe(duration.Seconds(), lv)
	}
}

// RecordSolveSession 记录整次求解会话的终态
func RecordSolveSession(level int, success bool, objective int64, trimmed int) {
	reg := GetRegistry()
	status := "success"
	if !success {
		status = "failure"
	}
	if counter := reg.GetCounter("zhiban_solve_sessions_total"); counter != nil {
		counter.Inc(status, fmt.Sprintf("%d", level))
	}
	if trimmed > 0 {
		if counter := reg.GetCounter("zhiban_leave_trimmed_total"); counter != nil {
			counter.Add(float64(trimmed))
		}
	}
	if success {
		if gauge := reg.GetGauge("zhiban_last_objective"); gauge != nil {
			gauge.Set(float64(objective))
		}
	}
}

// SetFairnessGini 设置最近一期排班的基尼系数
func SetFairnessGini(gini float64) {
	if gauge := GetRegistry().GetGauge("zhiban_fairness_gini"); gauge != nil {
		gauge.Set(gini)
	}
}

// SetDBConnections 设置连接池状态
func SetDBConnections(state string, n int) {
	if gauge := GetRegistry().GetGauge("zhiban_db_connections"); gauge != nil {
		gauge.Set(float64(n), state)
	}
}
