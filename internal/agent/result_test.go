package agent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   Category
	}{
		{name: "success", result: mcp.NewToolResultText("ok"), want: ""},
		{name: "unknown tool", result: ErrorResult(CategoryUnknownTool, "No agent provides tool %q", "x"), want: CategoryUnknownTool},
		{name: "auth", result: ErrorResult(CategoryAuthExchangeFailure, "sign in"), want: CategoryAuthExchangeFailure},
		{name: "invalid arguments", result: ErrorResult(CategoryInvalidArguments, "bad"), want: CategoryInvalidArguments},
		{name: "uncategorized downstream error", result: mcp.NewToolResultError("boom"), want: CategoryExecutionFailure},
		{name: "unknown bracket", result: mcp.NewToolResultError("[teapot] short and stout"), want: CategoryExecutionFailure},
		{name: "nil", result: nil, want: CategoryExecutionFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.result); got != tt.want {
				t.Errorf("CategoryOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorResult(t *testing.T) {
	result := ErrorResult(CategoryUnknownTool, "No agent provides tool %q", "weather_forecast")

	if !result.IsError {
		t.Error("IsError = false")
	}
	text := ResultText(result)
	if !strings.HasPrefix(text, "[unknown_tool] ") {
		t.Errorf("text %q lacks category prefix", text)
	}
	if !strings.Contains(text, "weather_forecast") {
		t.Errorf("text %q lacks the tool name", text)
	}
}

func TestResultJSONRoundTrip(t *testing.T) {
	tests := []*mcp.CallToolResult{
		mcp.NewToolResultText("Hello, Ada!"),
		ErrorResult(CategoryExecutionFailure, "Tool lookup failed: timeout"),
		{
			Content: []mcp.Content{
				mcp.NewTextContent("line 1"),
				mcp.NewTextContent("line 2"),
			},
		},
	}

	for _, original := range tests {
		data, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		raw := json.RawMessage(data)
		decoded, err := mcp.ParseCallToolResult(&raw)
		if err != nil {
			t.Fatalf("ParseCallToolResult() error = %v", err)
		}

		if decoded.IsError != original.IsError {
			t.Errorf("IsError = %v, want %v", decoded.IsError, original.IsError)
		}
		if len(decoded.Content) != len(original.Content) {
			t.Fatalf("content blocks = %d, want %d", len(decoded.Content), len(original.Content))
		}
		if ResultText(decoded) != ResultText(original) {
			t.Errorf("text = %q, want %q", ResultText(decoded), ResultText(original))
		}
		if CategoryOf(decoded) != CategoryOf(original) {
			t.Errorf("category = %q, want %q", CategoryOf(decoded), CategoryOf(original))
		}
	}
}

func TestScope(t *testing.T) {
	var nilScope *Scope
	if nilScope.HasCallerToken() || nilScope.RequestID() != "" {
		t.Error("nil scope should be anonymous")
	}
	if _, ok := nilScope.Token("maps"); ok {
		t.Error("nil scope has no tokens")
	}

	a, b := NewScope("T1"), NewScope("T1")
	if a.RequestID() == "" || a.RequestID() == b.RequestID() {
		t.Errorf("request IDs should be unique: %q %q", a.RequestID(), b.RequestID())
	}

	a.SetInitError("maps", errString("consent_required"))
	if a.InitError("maps") == nil || len(a.Failures()) != 1 {
		t.Error("failure not recorded")
	}
	a.SetToken("maps", nil)
	if a.InitError("maps") != nil {
		t.Error("SetToken should clear the failure")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
