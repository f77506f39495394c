package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// defaultConfigYAML is written by "tabq init" as a starting point.
var defaultConfigYAML = []byte(`# tabq configuration
#
# API keys may reference environment variables, e.g. ${OPENAI_API_KEY}.

listen:
  address: ""
  port: 8080

models:
  default: gpt-4o-mini
  ollama_url: http://localhost:11434
  available:
    - name: gpt-4o-mini
      provider: openai
    - name: gpt-4o
      provider: openai
    - name: claude-sonnet-4-20250514
      provider: anthropic

openai:
  api_key: ${OPENAI_API_KEY}

anthropic:
  api_key: ${ANTHROPIC_API_KEY}

dataset:
  # path: data/sales.csv     # optional CSV to load at startup
  max_file_size_mb: 100
  delimiter: ","
  max_result_rows: 10

memory:
  max_messages: 60

agent:
  max_tool_iterations: 5
  gate: true

data_dir: data
log_level: info
`)

// runInit initializes a tabq working directory with default files.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing tabq workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaultConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml, then run: tabq chat <file.csv>")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, 0o644)
}
