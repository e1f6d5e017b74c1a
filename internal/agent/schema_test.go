package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestValidateArguments(t *testing.T) {
	tool := mcp.NewTool("create_order",
		mcp.WithString("customer", mcp.Required()),
		mcp.WithNumber("amount", mcp.Required()),
		mcp.WithBoolean("express"),
		mcp.WithArray("items"),
		mcp.WithObject("address"),
	)
	tool.InputSchema.Properties["quantity"] = map[string]interface{}{"type": "integer"}

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr []string
	}{
		{
			name: "valid",
			args: map[string]interface{}{
				"customer": "ACME",
				"amount":   12.5,
				"express":  true,
				"items":    []interface{}{"a"},
				"address":  map[string]interface{}{"city": "Berlin"},
				"quantity": 3.0,
			},
		},
		{
			name: "integer accepted as number",
			args: map[string]interface{}{"customer": "ACME", "amount": 12.0},
		},
		{
			name: "json.Number",
			args: map[string]interface{}{"customer": "ACME", "amount": json.Number("1.5"), "quantity": json.Number("2")},
		},
		{
			name: "unknown properties accepted",
			args: map[string]interface{}{"customer": "ACME", "amount": 1.0, "note": "fragile"},
		},
		{
			name:    "missing required",
			args:    map[string]interface{}{"amount": 1.0},
			wantErr: []string{"missing properties", "customer"},
		},
		{
			name:    "null required",
			args:    map[string]interface{}{"customer": nil, "amount": 1.0},
			wantErr: []string{`argument "customer"`},
		},
		{
			name:    "nil args",
			args:    nil,
			wantErr: []string{"customer", "amount"},
		},
		{
			name:    "wrong types",
			args:    map[string]interface{}{"customer": 7.0, "amount": "12", "express": "yes", "quantity": 1.5},
			wantErr: []string{
				`argument "customer": expected string`,
				`argument "amount": expected number`,
				`argument "express": expected boolean`,
				`argument "quantity": expected integer`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateArguments(tool, tt.args)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestValidateArgumentsRawSchema(t *testing.T) {
	tool := mcp.NewToolWithRawSchema("search", "Full text search", json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 3},
			"limit": {"type": "integer", "maximum": 50}
		},
		"required": ["query"]
	}`))

	if err := validateArguments(tool, map[string]interface{}{"query": "mcp", "limit": 10.0}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := validateArguments(tool, map[string]interface{}{"query": "go", "limit": 500.0})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{`argument "query"`, `argument "limit"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
}

func TestValidateArgumentsIgnoresBrokenSchema(t *testing.T) {
	tool := mcp.NewToolWithRawSchema("broken", "", json.RawMessage(`{"type": 12}`))
	if err := validateArguments(tool, map[string]interface{}{"x": 1.0}); err != nil {
		t.Errorf("broken schemas must not block calls, got %v", err)
	}
}
