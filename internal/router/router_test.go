package router

import (
	"context"
	"testing"

	"github.com/giantswarm/mcp-toolrouter/internal/agent"
)

func TestListToolsIncludesHelloWorld(t *testing.T) {
	r := New(newFakeDispatcher("geocode", "orders"), nil)

	tools := r.ListTools(context.Background())
	if len(tools) != 3 {
		t.Fatalf("got %d tools, want 3", len(tools))
	}
	if tools[0].Name != HelloWorldTool || tools[1].Name != "geocode" || tools[2].Name != "orders" {
		t.Errorf("unexpected order: %s, %s, %s", tools[0].Name, tools[1].Name, tools[2].Name)
	}
	prop, ok := tools[0].InputSchema.Properties["name"].(map[string]interface{})
	if !ok || prop["type"] != "string" {
		t.Errorf("hello_world name property = %#v", tools[0].InputSchema.Properties["name"])
	}
	for _, required := range tools[0].InputSchema.Required {
		if required == "name" {
			t.Error("name must be optional")
		}
	}
}

// Scenario B: hello_world never reaches the manager.
func TestExecuteHelloWorld(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{name: "named", args: map[string]interface{}{"name": "Ada"}, want: "Hello, Ada!"},
		{name: "default", args: nil, want: "Hello, World!"},
		{name: "empty name", args: map[string]interface{}{"name": ""}, want: "Hello, World!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDispatcher("geocode")
			r := New(d, nil)

			result := r.Execute(context.Background(), callRequest(HelloWorldTool, tt.args), "T1")
			if result.IsError {
				t.Fatalf("unexpected error: %s", agent.ResultText(result))
			}
			if got := agent.ResultText(result); got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if calls, _ := d.dispatched(); len(calls) != 0 {
				t.Errorf("dispatcher was called: %v", calls)
			}
		})
	}
}

func TestExecuteHelloWorldRejectsNonStringName(t *testing.T) {
	r := New(newFakeDispatcher(), nil)
	result := r.Execute(context.Background(), callRequest(HelloWorldTool, map[string]interface{}{"name": 42}), "")
	if agent.CategoryOf(result) != agent.CategoryInvalidArguments {
		t.Errorf("CategoryOf() = %q", agent.CategoryOf(result))
	}
}

func TestExecuteDelegates(t *testing.T) {
	d := newFakeDispatcher("geocode")
	r := New(d, nil)

	result := r.Execute(context.Background(), callRequest("geocode", nil), "T1")
	if got := agent.ResultText(result); got != "ran geocode" {
		t.Errorf("result = %q", got)
	}
	calls, tokens := d.dispatched()
	if len(calls) != 1 || calls[0] != "geocode" || tokens[0] != "T1" {
		t.Errorf("dispatched %v with %v", calls, tokens)
	}

	result = r.Execute(context.Background(), callRequest("nope", nil), "")
	if !result.IsError || agent.CategoryOf(result) != agent.CategoryUnknownTool {
		t.Errorf("expected unknown_tool, got %#v", result)
	}
}

func TestHealthAndAgentsPassThrough(t *testing.T) {
	r := New(newFakeDispatcher(), nil)
	if h := r.Health(context.Background()); len(h) != 1 || h[0].AgentID != "maps" {
		t.Errorf("Health() = %+v", h)
	}
	if a := r.Agents(); len(a) != 1 || a[0].ID != "maps" {
		t.Errorf("Agents() = %+v", a)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer   abc", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestCallerTokenContext(t *testing.T) {
	ctx := context.Background()
	if CallerToken(ctx) != "" {
		t.Error("expected empty token")
	}
	if got := CallerToken(WithCallerToken(ctx, "T1")); got != "T1" {
		t.Errorf("CallerToken() = %q", got)
	}
}

var _ Dispatcher = (*fakeDispatcher)(nil)
