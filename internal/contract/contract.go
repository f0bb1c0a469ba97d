// Package contract is the admission gate for broker envelopes. A schema is compiled once per
// envelope kind at startup; payloads are checked against it before any typed decoding happens,
// so business code only ever sees values that passed the schema.
package contract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/apperrors"
	"github.com/kipp7/landslide-monitoring-v2-sub006/internal/model"
)

const schemaBaseURL = "https://schemas.landslide-monitor.local/kafka/"

type Kind string

const (
	KindDeviceCommandEvent Kind = "device_command_event"
	KindTelemetryDlq       Kind = "telemetry_dlq"
)

var schemaFiles = map[Kind]string{
	KindDeviceCommandEvent: "device-command-events.v1.schema.json",
	KindTelemetryDlq:       "telemetry-dlq.v1.schema.json",
}

func (k Kind) SchemaFile() (string, error) {
	file, ok := schemaFiles[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownEnvelope, k)
	}

	return file, nil
}

// Result is the outcome of a validation. Value is set only when Valid is true.
type Result[T any] struct {
	Valid  bool
	Value  *T
	Errors []string
}

type Validator[T any] struct {
	kind   Kind
	schema *jsonschema.Schema
}

func Load[T any](dir string, kind Kind) (*Validator[T], error) {
	file, err := kind.SchemaFile()
	if err != nil {
		return nil, err
	}

	doc, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", file, err)
	}

	return Compile[T](kind, doc)
}

func Compile[T any](kind Kind, doc []byte) (*Validator[T], error) {
	file, err := kind.SchemaFile()
	if err != nil {
		return nil, err
	}

	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", file, err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()

	url := schemaBaseURL + file
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", file, err)
	}

	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", file, err)
	}

	return &Validator[T]{kind: kind, schema: schema}, nil
}

func LoadCommandEvents(dir string) (*Validator[model.DeviceCommandEvent], error) {
	return Load[model.DeviceCommandEvent](dir, KindDeviceCommandEvent)
}

func LoadTelemetryDlq(dir string) (*Validator[model.TelemetryDlqEnvelope], error) {
	return Load[model.TelemetryDlqEnvelope](dir, KindTelemetryDlq)
}

func (v *Validator[T]) Kind() Kind {
	return v.kind
}

// Validate never fails on bad input; malformed JSON, schema violations and decode errors all
// come back as an invalid Result.
func (v *Validator[T]) Validate(payload []byte) Result[T] {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return invalid[T]("invalid json: " + err.Error())
	}

	if err := v.schema.Validate(instance); err != nil {
		return invalid[T](schemaErrors(err)...)
	}

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return invalid[T]("decode: " + err.Error())
	}

	return Result[T]{Valid: true, Value: &value}
}

// ValidateValue checks a value this process is about to emit.
func (v *Validator[T]) ValidateValue(value *T) Result[T] {
	payload, err := json.Marshal(value)
	if err != nil {
		return invalid[T]("encode: " + err.Error())
	}

	return v.Validate(payload)
}

func invalid[T any](errs ...string) Result[T] {
	return Result[T]{Errors: errs}
}

func schemaErrors(err error) []string {
	lines := strings.Split(err.Error(), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			out = append(out, line)
		}
	}

	if len(out) == 0 {
		out = append(out, err.Error())
	}

	return out
}

// Err renders the errors of an invalid result, for logging.
func (r Result[T]) Err() error {
	if r.Valid {
		return nil
	}

	return fmt.Errorf("%w: %s", apperrors.ErrSchemaInvalid, strings.Join(r.Errors, "; "))
}
