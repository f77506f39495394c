package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotLoaded is returned by analysis operations when no CSV file has
// been loaded. Tool handlers surface this to the LLM as a plain
// message rather than an error so the model can ask for a file.
var ErrNotLoaded = errors.New("no CSV data is currently loaded")

// ErrUnknownColumn is returned when an operation names a column that
// does not exist. It carries the available columns so the LLM can
// self-correct on the next tool call.
type ErrUnknownColumn struct {
	Column    string
	Available []string
}

// Error implements the error interface.
func (e *ErrUnknownColumn) Error() string {
	return fmt.Sprintf("column %q not found. Available columns: %s",
		e.Column, strings.Join(e.Available, ", "))
}
