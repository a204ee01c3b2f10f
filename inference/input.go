package inference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrNoInput        = errors.New("no input provided")
	ErrMalformedInput = errors.New("invalid json")
)

// recordSchema accepts one flat object of scalar values.
const recordSchema = `{
  "type": "object",
  "additionalProperties": {"type": ["string", "number", "boolean", "null"]}
}`

const recordSchemaURL = "schema://record.json"

var (
	compileOnce    sync.Once
	compiledRecord *jsonschema.Schema
	compileErr     error
)

func recordValidator() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		def, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(recordSchema)))
		if err != nil {
			compileErr = fmt.Errorf("parse record schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(recordSchemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledRecord, compileErr = c.Compile(recordSchemaURL)
	})
	return compiledRecord, compileErr
}

// DecodeRecord parses one input envelope. Byte order marks and UTF-16 input
// are transcoded to UTF-8 first.
func DecodeRecord(raw []byte) (map[string]any, error) {
	utf8Raw, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	utf8Raw = bytes.TrimSpace(utf8Raw)
	if len(utf8Raw) == 0 {
		return nil, ErrNoInput
	}

	var parsed any
	if err := json.Unmarshal(utf8Raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	validator, err := recordValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return parsed.(map[string]any), nil
}
