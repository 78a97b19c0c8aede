package toolspec

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnown(t *testing.T) {
	assert.True(t, Known("read_file"))
	assert.True(t, Known("shell_exec"))
	assert.False(t, Known("format_disk"))
	assert.False(t, Known(""))
}

func TestNamesSortedAndComplete(t *testing.T) {
	names := Names()
	require.Len(t, names, len(catalog))
	assert.True(t, sort.StringsAreSorted(names))
	for _, name := range names {
		assert.True(t, Known(name))
	}
}

func TestDefinitionsSkipsUnknown(t *testing.T) {
	defs := Definitions([]string{"read_file", "no_such_tool", "grep"})
	require.Len(t, defs, 2)
	assert.Equal(t, "read_file", defs[0].Name)
	assert.Equal(t, "grep", defs[1].Name)
}

func TestDefinitionsEmptyInput(t *testing.T) {
	assert.Empty(t, Definitions(nil))
	assert.Empty(t, Definitions([]string{}))
}

func TestSchemaShape(t *testing.T) {
	defs := Definitions([]string{"read_file"})
	require.Len(t, defs, 1)

	var schema struct {
		Type       string                     `json:"type"`
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(defs[0].InputSchema, &schema))

	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Required, "path")
	assert.Contains(t, schema.Properties, "path")
	assert.Contains(t, schema.Properties, "line")
	assert.Contains(t, schema.Properties, "limit")
	// Inline schemas only; an agent cannot be expected to chase $refs.
	assert.NotContains(t, string(defs[0].InputSchema), "$ref")
}

func TestEveryToolHasDescriptionAndSchema(t *testing.T) {
	defs := Definitions(Names())
	require.Len(t, defs, len(catalog))
	for _, def := range defs {
		assert.NotEmpty(t, def.Description, def.Name)
		assert.NotEmpty(t, def.InputSchema, def.Name)
		assert.True(t, json.Valid(def.InputSchema), def.Name)
	}
}
