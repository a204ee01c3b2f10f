package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"healthguard/features"
)

// Dataset 训练数据集: one record per CSV row, keyed by cleaned header.
type Dataset struct {
	Header  []string
	Records []map[string]any
}

func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDataset(f)
}

// ReadDataset parses a CSV export. A byte order mark is stripped and header
// names are cleaned of stray quotes and whitespace. Cells stay strings;
// features.Normalize coerces them per slot.
func ReadDataset(r io.Reader) (*Dataset, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("dataset is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = features.CleanName(h)
	}

	ds := &Dataset{Header: header}
	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		ds.Records = append(ds.Records, row)
	}
	return ds, nil
}

// Rows normalizes every record against schema.
func (d *Dataset) Rows(schema features.Schema) []*features.Row {
	rows := make([]*features.Row, len(d.Records))
	for i, rec := range d.Records {
		rows[i] = features.Normalize(rec, schema)
	}
	return rows
}

// Labels reads a boolean label column.
func (d *Dataset) Labels(column string) ([]bool, error) {
	found := false
	for _, h := range d.Header {
		if h == column {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("label column %q not in dataset", column)
	}
	labels := make([]bool, len(d.Records))
	for i, rec := range d.Records {
		s, _ := rec[column].(string)
		s = strings.TrimSpace(s)
		if b, err := strconv.ParseBool(s); err == nil {
			labels[i] = b
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			labels[i] = f != 0
		}
	}
	return labels, nil
}
