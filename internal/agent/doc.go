// Package agent implements the agents of the tool router.
//
// An agent owns a set of tools and executes them against one downstream
// service with the caller's delegated credentials. Base provides the shared
// behavior and delegates the downstream work to a Backend:
//
//   - MCPBackend: proxies to a downstream MCP server over streamable HTTP
//   - HTTPBackend: calls configured HTTP endpoints with the JSON arguments
//   - ToolSet: in-process tools with Go handlers
//
// Credentials are request-scoped. Initialize stores the delegated token for
// the call in a Scope, and Execute reads it from there. Agents never hold
// caller tokens.
//
// Execute never returns a Go error. Failures come back as error results whose
// text starts with a bracketed Category, see ErrorResult and CategoryOf.
package agent
