package agent

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Category classifies an error result. It is the first token of the result
// text, wrapped in brackets.
type Category string

const (
	CategoryUnknownTool         Category = "unknown_tool"
	CategoryExecutionFailure    Category = "execution_failure"
	CategoryAuthExchangeFailure Category = "auth_exchange_failure"
	CategoryInvalidArguments    Category = "invalid_arguments"
)

var categories = map[Category]bool{
	CategoryUnknownTool:         true,
	CategoryExecutionFailure:    true,
	CategoryAuthExchangeFailure: true,
	CategoryInvalidArguments:    true,
}

// ErrorResult builds an error result whose text starts with "[category] ".
func ErrorResult(category Category, format string, args ...interface{}) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", category, fmt.Sprintf(format, args...)))
}

// CategoryOf returns the category of an error result, or "" for a success.
// Downstream error results without a category count as execution failures.
func CategoryOf(result *mcp.CallToolResult) Category {
	if result == nil {
		return CategoryExecutionFailure
	}
	if !result.IsError {
		return ""
	}
	text := ResultText(result)
	if strings.HasPrefix(text, "[") {
		if end := strings.Index(text, "] "); end > 0 {
			if c := Category(text[1:end]); categories[c] {
				return c
			}
		}
	}
	return CategoryExecutionFailure
}

// ResultText joins the text blocks of a result.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}
