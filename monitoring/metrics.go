package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

const maxHistory = 1000

// Metric 指标
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

type seriesTotal struct {
	count uint64
	sum   float64
}

// MetricSummary 指标摘要. Count and the statistics cover the kept window.
type MetricSummary struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	Latest  float64   `json:"latest"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Average float64   `json:"average"`
	Updated time.Time `json:"updated"`
}

// MetricsCollector 指标收集器. Samples are kept per series (name plus
// labels); counters accumulate, gauges and histograms keep the most recent
// maxHistory observations. Histogram count and sum cover every observation
// since start, independent of the kept window.
type MetricsCollector struct {
	series      map[string][]*Metric
	totals      map[string]*seriesTotal
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		series:    make(map[string][]*Metric),
		totals:    make(map[string]*seriesTotal),
		startTime: time.Now(),
	}
}

// RecordMetric 记录指标
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	key := seriesKey(metric.Name, metric.Labels)
	history := mc.series[key]

	if metric.Type == MetricTypeHistogram {
		total, ok := mc.totals[key]
		if !ok {
			total = &seriesTotal{}
			mc.totals[key] = total
		}
		total.count++
		total.sum += metric.Value
	}

	if metric.Type == MetricTypeCounter && len(history) > 0 {
		metric.Value += history[len(history)-1].Value
		history[len(history)-1] = metric
		return
	}

	history = append(history, metric)
	// 限制历史大小
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	mc.series[key] = history
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeCounter, Value: value, Labels: labels})
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeGauge, Value: value, Labels: labels})
}

// RecordHistogram 记录直方图
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeHistogram, Value: value, Labels: labels})
}

// RecordPrediction records one prediction call: a counter per outcome, the
// call duration, and each target's probability on success.
func (mc *MetricsCollector) RecordPrediction(p Prediction) {
	mc.IncrCounter("healthguard_predictions_total", 1, map[string]string{"outcome": p.Outcome})
	mc.RecordHistogram("healthguard_prediction_duration_ms", float64(p.DurationMs), nil)
	for target, proba := range p.Probas {
		mc.RecordHistogram("healthguard_prediction_proba", proba, map[string]string{"target": target})
		if p.Positives[target] {
			mc.IncrCounter("healthguard_positive_total", 1, map[string]string{"target": target})
		}
	}
}

// GetMetric 获取指标 for one series.
func (mc *MetricsCollector) GetMetric(name string, labels map[string]string) ([]Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	history, ok := mc.series[seriesKey(name, labels)]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", seriesKey(name, labels))
	}

	// 返回副本
	result := make([]Metric, len(history))
	for i, m := range history {
		result[i] = *m
	}
	return result, nil
}

// GetMetricSummary 获取指标摘要
func (mc *MetricsCollector) GetMetricSummary(name string, labels map[string]string) (MetricSummary, error) {
	metrics, err := mc.GetMetric(name, labels)
	if err != nil {
		return MetricSummary{}, err
	}
	return summarize(seriesKey(name, labels), metrics), nil
}

// Summaries 所有序列的摘要, sorted by series.
func (mc *MetricsCollector) Summaries() []MetricSummary {
	mc.metricsLock.RLock()
	keys := make([]string, 0, len(mc.series))
	copies := make(map[string][]Metric, len(mc.series))
	for key, history := range mc.series {
		keys = append(keys, key)
		c := make([]Metric, len(history))
		for i, m := range history {
			c[i] = *m
		}
		copies[key] = c
	}
	mc.metricsLock.RUnlock()

	sort.Strings(keys)
	out := make([]MetricSummary, 0, len(keys))
	for _, key := range keys {
		out = append(out, summarize(key, copies[key]))
	}
	return out
}

func summarize(name string, metrics []Metric) MetricSummary {
	s := MetricSummary{Name: name, Count: len(metrics)}
	if len(metrics) == 0 {
		return s
	}
	s.Latest = metrics[len(metrics)-1].Value
	s.Updated = metrics[len(metrics)-1].Timestamp
	s.Min, s.Max = metrics[0].Value, metrics[0].Value
	sum := 0.0
	for _, m := range metrics {
		sum += m.Value
		if m.Value < s.Min {
			s.Min = m.Value
		}
		if m.Value > s.Max {
			s.Max = m.Value
		}
	}
	s.Average = sum / float64(len(metrics))
	return s
}

// ExportPrometheus 导出Prometheus文本格式. Counters and gauges export their
// latest value; histograms export cumulative _count and _sum.
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	byName := make(map[string][]string)
	for key, history := range mc.series {
		if len(history) == 0 {
			continue
		}
		name := history[0].Name
		byName[name] = append(byName[name], key)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		keys := byName[name]
		sort.Strings(keys)
		kind := mc.series[keys[0]][0].Type
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, promType(kind))
		for _, key := range keys {
			history := mc.series[key]
			labels := formatLabels(history[0].Labels)
			if kind == MetricTypeHistogram {
				total := mc.totals[key]
				fmt.Fprintf(&b, "%s_count%s %d\n", name, labels, total.count)
				fmt.Fprintf(&b, "%s_sum%s %g\n", name, labels, total.sum)
				continue
			}
			fmt.Fprintf(&b, "%s%s %g\n", name, labels, history[len(history)-1].Value)
		}
	}
	return b.String()
}

func promType(t MetricType) string {
	if t == MetricTypeHistogram {
		return "summary"
	}
	return string(t)
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]any{
		"uptime":     mc.GetUptime().Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc":       m.Alloc,
			"sys":         m.Sys,
			"heap_alloc":  m.HeapAlloc,
			"heap_inuse":  m.HeapInuse,
			"gc_count":    m.NumGC,
			"gc_pause_ns": m.PauseTotalNs,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
