package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"healthguard/features"
)

// Label columns appended after the feature columns of the dataset.
var LabelColumns = []string{"diagDiabetes", "diagHeartDisease", "diagCancer"}

// CSVFields returns the dataset header: every schema slot followed by the
// diagnosis labels.
func CSVFields() []string {
	return append(features.DefaultSchema().Names(), LabelColumns...)
}

// CSVStorage 数据集存储: appends cleaned submissions to the training CSV.
type CSVStorage struct {
	path   string
	fields []string
	mu     sync.Mutex
}

func NewCSVStorage(path string) (*CSVStorage, error) {
	if path == "" {
		return nil, errors.New("csv path is required")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &CSVStorage{path: path, fields: CSVFields()}, nil
}

func (s *CSVStorage) Path() string {
	return s.path
}

// Exists reports whether any submission has been written yet.
func (s *CSVStorage) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Append writes one row. The header is written only when the file is new.
func (s *CSVStorage) Append(sub Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	headerNeeded := !s.Exists()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if headerNeeded {
		if err := w.Write(s.fields); err != nil {
			return err
		}
	}
	record := make([]string, len(s.fields))
	for i, field := range s.fields {
		record[i] = cell(sub[field])
	}
	if err := w.Write(record); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
