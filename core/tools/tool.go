// Package tools holds the capabilities the model can invoke mid-conversation
// and the orchestrator that runs them. A tool takes a JSON argument object and
// returns a JSON-serializable result; nothing else is asked of it.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

type Tool interface {
	Name() string
	Description() string
	// InputSchema is the JSON schema of the argument object, serialized.
	InputSchema() string
	Execute(ctx context.Context, arguments string) (any, error)
}

type typedTool[P any, R any] struct {
	name        string
	description string
	schema      string
	run         func(context.Context, P) (R, error)
}

// New creates a tool whose input schema is reflected from P. Arguments are
// validated by unmarshalling them into P before run is called.
func New[P any, R any](name, description string, run func(context.Context, P) (R, error)) Tool {
	return &typedTool[P, R]{
		name:        name,
		description: description,
		schema:      reflectSchema[P](),
		run:         run,
	}
}

func reflectSchema[P any]() string {
	reflector := jsonschema.Reflector{DoNotReference: true, Anonymous: true}

	var schema *jsonschema.Schema
	t := reflect.TypeOf((*P)(nil)).Elem()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	schema = reflector.ReflectFromType(t)
	schema.Version = ""

	schemaJSON, err := schema.MarshalJSON()
	if err != nil {
		return `{"type":"object"}`
	}
	return string(schemaJSON)
}

func (t *typedTool[P, R]) Name() string        { return t.name }
func (t *typedTool[P, R]) Description() string { return t.description }
func (t *typedTool[P, R]) InputSchema() string { return t.schema }

func (t *typedTool[P, R]) Execute(ctx context.Context, arguments string) (any, error) {
	var params P
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &params); err != nil {
			return nil, fmt.Errorf("%w for %q: %v", ErrInvalidArguments, t.name, err)
		}
	}

	return t.run(ctx, params)
}
