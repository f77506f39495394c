// Package tools provides the tool registry and execution framework.
//
// This file defines sentinel error types for tool execution.
package tools

import (
	"fmt"
	"sort"
	"strings"
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry. This indicates the model invented a
// tool name, not a transient execution failure. Callers should report
// the available tools back to the model rather than retrying.
type ErrToolUnavailable struct {
	ToolName  string
	Available []string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	names := append([]string(nil), e.Available...)
	sort.Strings(names)
	return fmt.Sprintf("tool %q is not available. Available tools: %s",
		e.ToolName, strings.Join(names, ", "))
}
