// Package toolspec describes the host tools that can be advertised to an
// agent at session creation. Input schemas are generated from Go struct tags
// so the declared shape and the executor's expectations cannot drift apart.
package toolspec

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/codetide/agent-bridge/wire"
)

// ReadFileParams is the input shape of the read_file tool.
type ReadFileParams struct {
	Path  string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Line  int    `json:"line,omitempty" jsonschema:"description=1-based first line to read"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read"`
}

// WriteFileParams is the input shape of the write_file tool.
type WriteFileParams struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Content string `json:"content" jsonschema:"required,description=Full file content to write"`
}

// ListDirectoryParams is the input shape of the list_directory tool.
type ListDirectoryParams struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list; defaults to the workspace root"`
}

// ShellExecParams is the input shape of the shell_exec tool.
type ShellExecParams struct {
	Command string `json:"command" jsonschema:"required,description=Shell command to execute in the workspace"`
}

// GrepParams is the input shape of the grep tool.
type GrepParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression to search for"`
	Path    string `json:"path,omitempty" jsonschema:"description=File or directory to search; defaults to the workspace root"`
}

// catalog maps tool names to their descriptions and schema generators.
var catalog = map[string]struct {
	description string
	schema      func() json.RawMessage
}{
	"read_file":      {"Read a text file from the workspace", schemaFor[ReadFileParams]},
	"write_file":     {"Write a text file in the workspace", schemaFor[WriteFileParams]},
	"list_directory": {"List directory entries in the workspace", schemaFor[ListDirectoryParams]},
	"shell_exec":     {"Run a shell command in the workspace", schemaFor[ShellExecParams]},
	"grep":           {"Search workspace files by regular expression", schemaFor[GrepParams]},
}

// Known reports whether name is a tool this host can describe.
func Known(name string) bool {
	_, ok := catalog[name]
	return ok
}

// Names returns every tool name in the catalog, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions builds wire tool definitions for the enabled tool names.
// Unknown names are skipped: an agent must never be promised a tool the
// executor cannot run.
func Definitions(enabled []string) []wire.ToolDefinition {
	defs := make([]wire.ToolDefinition, 0, len(enabled))
	for _, name := range enabled {
		entry, ok := catalog[name]
		if !ok {
			continue
		}
		defs = append(defs, wire.ToolDefinition{
			Name:        name,
			Description: entry.description,
			InputSchema: entry.schema(),
		})
	}
	return defs
}

// schemaFor generates an inline JSON schema from T's struct tags.
func schemaFor[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	data, err := json.Marshal(schema)
	if err != nil {
		// Only reachable with a type the reflector cannot walk.
		panic(fmt.Sprintf("toolspec: schema generation failed for %T: %v", zero, err))
	}
	return json.RawMessage(data)
}
