package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compiled schemas by their JSON text
var schemaCache sync.Map

// validateArguments checks args against the input schema of tool. Schemas
// that fail to compile are not enforced.
func validateArguments(tool mcp.Tool, args map[string]interface{}) error {
	schema, err := compileInputSchema(tool)
	if err != nil || schema == nil {
		return nil
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	instance, err := normalize(args)
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}

	problems := leafProblems(ve, nil)
	sort.Strings(problems)
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

func compileInputSchema(tool mcp.Tool) (*jsonschema.Schema, error) {
	raw := []byte(tool.RawInputSchema)
	if len(raw) == 0 {
		var err error
		raw, err = json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, err
		}
	}

	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// normalize converts args into the plain JSON values the validator expects.
func normalize(args map[string]interface{}) (interface{}, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func leafProblems(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		return append(out, describeProblem(ve))
	}
	for _, cause := range ve.Causes {
		out = leafProblems(cause, out)
	}
	return out
}

func describeProblem(ve *jsonschema.ValidationError) string {
	location := strings.TrimPrefix(ve.InstanceLocation, "/")
	if location == "" {
		return ve.Message
	}
	return fmt.Sprintf("argument %q: %s", location, ve.Message)
}
