package pipeline

import (
	"errors"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Submission 健康表单提交 (raw JSON payload)
type Submission map[string]any

// CleaningRule 清洗规则
type CleaningRule interface {
	Apply(Submission) (Submission, error)
	Name() string
}

// ValidationError is returned when a rule rejects a submission.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DataCleaner 数据清洗器
type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
}

// NewDataCleaner 创建数据清洗器. A nil logger discards rule failures.
func NewDataCleaner(logger *zap.Logger) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		rules:  make([]CleaningRule, 0),
		logger: logger,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}

	// 添加默认规则
	cleaner.AddRule(NewRequiredFieldsRule("age", "heightCm", "weightKg"))
	cleaner.AddRule(NewDiagnosisLabelRule())

	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean applies every rule in order and stops at the first rejection. The
// input submission is not modified.
func (dc *DataCleaner) Clean(sub Submission) (Submission, error) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()
	dc.stats.TotalProcessed++

	out := make(Submission, len(sub)+3)
	for k, v := range sub {
		out[k] = v
	}
	for _, rule := range dc.rules {
		cleaned, err := rule.Apply(out)
		if err != nil {
			dc.stats.Rejected++
			dc.stats.Issues[rule.Name()]++
			var ve *ValidationError
			if !errors.As(err, &ve) {
				dc.logger.Error("cleaning rule failed", zap.String("rule", rule.Name()), zap.Error(err))
			}
			return nil, err
		}
		if cleaned != nil {
			out = cleaned
		}
	}
	dc.stats.Passed++
	return out, nil
}

// GetStats 获取统计
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()
	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// RequiredFieldsRule 必填字段规则
type RequiredFieldsRule struct {
	Fields []string
}

func NewRequiredFieldsRule(fields ...string) *RequiredFieldsRule {
	return &RequiredFieldsRule{Fields: fields}
}

func (r *RequiredFieldsRule) Name() string {
	return "required_fields"
}

func (r *RequiredFieldsRule) Apply(sub Submission) (Submission, error) {
	for _, f := range r.Fields {
		if !Truthy(sub[f]) {
			return nil, &ValidationError{Rule: r.Name(), Message: requiredMessage(r.Fields)}
		}
	}
	return sub, nil
}

func requiredMessage(fields []string) string {
	switch len(fields) {
	case 0:
		return "required fields missing"
	case 1:
		return fields[0] + " is required"
	default:
		return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1] + " are required"
	}
}

// DiagnosisLabelRule 诊断标签规则: training labels default to the
// self-reported condition when the form does not set them.
type DiagnosisLabelRule struct {
	Defaults map[string]string // label -> source field
	order    []string
}

func NewDiagnosisLabelRule() *DiagnosisLabelRule {
	return &DiagnosisLabelRule{
		Defaults: map[string]string{
			"diagDiabetes":     "hasDiabetes",
			"diagHeartDisease": "hasHeartDisease",
			"diagCancer":       "familyCancer",
		},
		order: []string{"diagDiabetes", "diagHeartDisease", "diagCancer"},
	}
}

func (r *DiagnosisLabelRule) Name() string {
	return "diagnosis_labels"
}

func (r *DiagnosisLabelRule) Apply(sub Submission) (Submission, error) {
	for _, label := range r.order {
		if v, ok := sub[label]; ok {
			sub[label] = Truthy(v)
			continue
		}
		sub[label] = Truthy(sub[r.Defaults[label]])
	}
	return sub, nil
}

// Truthy follows JSON payload conventions: null, false, 0, NaN and "" are
// false; everything else is true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
